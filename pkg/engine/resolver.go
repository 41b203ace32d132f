package engine

import (
	"errors"
	"io/fs"
	"path"
	"path/filepath"
	"slices"
	"strings"
)

// PathResolver maps logical unit references to concrete paths under one root.
// Resolved paths are slash-separated and relative to the root.
type PathResolver struct {
	root       fs.FS
	extensions []string
	cache      map[string]string
}

// NewPathResolver creates a resolver over root accepting the given extensions,
// listed without a leading dot and in lookup priority order.
func NewPathResolver(root fs.FS, extensions []string) *PathResolver {
	exts := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		exts = append(exts, strings.TrimPrefix(ext, "."))
	}
	return &PathResolver{
		root:       root,
		extensions: exts,
		cache:      make(map[string]string),
	}
}

// Extensions returns the declared extension allow-list.
func (r *PathResolver) Extensions() []string {
	return slices.Clone(r.extensions)
}

// Reset drops cached resolutions.
func (r *PathResolver) Reset() {
	clear(r.cache)
}

// Resolve resolves ref relative to the directory dir (itself relative to root).
// An empty dir means the root directory. A reference must name a unit: an
// empty ref or one that cleans to the current directory is not found.
func (r *PathResolver) Resolve(ref, dir string) (string, error) {
	if strings.TrimSpace(ref) == "" || path.Clean(filepath.ToSlash(ref)) == "." {
		return "", newError(ErrorKindNotFound, nil, "empty unit reference").WithPath(ref)
	}
	if isAbsoluteRef(ref) {
		return "", newError(ErrorKindAbsolutePath, nil, "absolute reference not allowed").WithPath(ref)
	}

	joined := path.Join(dir, filepath.ToSlash(ref))
	if cached, ok := r.cache[joined]; ok {
		return cached, nil
	}

	if joined == ".." || strings.HasPrefix(joined, "../") {
		return "", newError(ErrorKindOutsideRoot, nil, "reference escapes the root directory").WithPath(ref)
	}

	resolved, err := r.resolveExtension(joined)
	if err != nil {
		return "", err
	}

	r.cache[joined] = resolved
	return resolved, nil
}

// resolveExtension applies the extension allow-list to a cleaned reference.
func (r *PathResolver) resolveExtension(ref string) (string, error) {
	ext := path.Ext(ref)
	if ext == "" {
		for _, candidate := range r.extensions {
			p := ref + "." + candidate
			if r.exists(p) {
				return p, nil
			}
		}
		return "", newError(ErrorKindNotFoundWithExtensions, nil,
			"unit not found with any declared extension: %s", strings.Join(r.extensions, ", ")).WithPath(ref)
	}

	if !slices.Contains(r.extensions, ext[1:]) {
		return "", newError(ErrorKindUndeclaredExtension, nil, "unit has undeclared extension %s", ext).WithPath(ref)
	}
	if !r.exists(ref) {
		return "", newError(ErrorKindNotFound, nil, "unit not found").WithPath(ref)
	}
	return ref, nil
}

func (r *PathResolver) exists(p string) bool {
	info, err := fs.Stat(r.root, p)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// ReadUnit reads the bytes of a resolved unit.
func (r *PathResolver) ReadUnit(p string) ([]byte, error) {
	data, err := fs.ReadFile(r.root, p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, newError(ErrorKindNotFound, err, "unit not found").WithPath(p)
		}
		return nil, newError(ErrorKindEvaluation, err, "failed to read unit").WithPath(p)
	}
	return data, nil
}

func isAbsoluteRef(ref string) bool {
	if filepath.IsAbs(ref) || filepath.VolumeName(ref) != "" {
		return true
	}
	return strings.HasPrefix(ref, "/") || strings.HasPrefix(ref, `\`)
}
