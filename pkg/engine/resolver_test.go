package engine

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unitFS(files map[string]string) fstest.MapFS {
	fsys := make(fstest.MapFS, len(files))
	for name, body := range files {
		fsys[name] = &fstest.MapFile{Data: []byte(body)}
	}
	return fsys
}

func TestPathResolver_ExtensionOrder(t *testing.T) {
	fsys := unitFS(map[string]string{
		"x.md":    "",
		"x.py":    "",
		"only.py": "",
	})
	r := NewPathResolver(fsys, []string{"md", "py"})

	got, err := r.Resolve("x", "")
	require.NoError(t, err)
	assert.Equal(t, "x.md", got)

	got, err = r.Resolve("only", "")
	require.NoError(t, err)
	assert.Equal(t, "only.py", got)
}

func TestPathResolver_Errors(t *testing.T) {
	fsys := unitFS(map[string]string{
		"x.py":        "",
		".py":         "",
		"sub/y.py":    "",
		"sub/.py":     "",
		"dir.py/z.py": "",
	})

	tests := []struct {
		name string
		exts []string
		ref  string
		dir  string
		kind ErrorKind
	}{
		{name: "undeclared extension even if present", exts: []string{"md"}, ref: "x.py", kind: ErrorKindUndeclaredExtension},
		{name: "missing with extension", exts: []string{"py"}, ref: "missing.py", kind: ErrorKindNotFound},
		{name: "missing without extension", exts: []string{"md", "py"}, ref: "missing", kind: ErrorKindNotFoundWithExtensions},
		{name: "absolute", exts: []string{"py"}, ref: "/etc/passwd", kind: ErrorKindAbsolutePath},
		{name: "escapes root", exts: []string{"py"}, ref: "../x.py", kind: ErrorKindOutsideRoot},
		{name: "escapes root from subdir", exts: []string{"py"}, ref: "../../x.py", dir: "sub", kind: ErrorKindOutsideRoot},
		{name: "directory is not a unit", exts: []string{"py"}, ref: "dir.py", kind: ErrorKindNotFound},
		{name: "empty reference", exts: []string{"py"}, ref: "", kind: ErrorKindNotFound},
		{name: "empty reference in subdir", exts: []string{"py"}, ref: "", dir: "sub", kind: ErrorKindNotFound},
		{name: "current directory", exts: []string{"py"}, ref: ".", kind: ErrorKindNotFound},
		{name: "reference cleaning to the current directory", exts: []string{"py"}, ref: "sub/..", kind: ErrorKindNotFound},
		{name: "blank reference", exts: []string{"py"}, ref: "  ", kind: ErrorKindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewPathResolver(fsys, tt.exts)
			_, err := r.Resolve(tt.ref, tt.dir)
			require.Error(t, err)
			assert.True(t, IsKind(err, tt.kind), "want %s, got %v", tt.kind, err)
			assert.True(t, IsPathError(err))
		})
	}
}

func TestPathResolver_RelativeToDir(t *testing.T) {
	fsys := unitFS(map[string]string{
		"base.py":        "",
		"conf/app.py":    "",
		"conf/common.py": "",
	})
	r := NewPathResolver(fsys, []string{".py"})

	got, err := r.Resolve("common", "conf")
	require.NoError(t, err)
	assert.Equal(t, "conf/common.py", got)

	got, err = r.Resolve("../base", "conf")
	require.NoError(t, err)
	assert.Equal(t, "base.py", got)

	got, err = r.Resolve("./conf/../base.py", "")
	require.NoError(t, err)
	assert.Equal(t, "base.py", got)

	assert.Equal(t, []string{"py"}, r.Extensions())
}

func TestPathResolver_CacheIsIdempotent(t *testing.T) {
	fsys := unitFS(map[string]string{"x.py": ""})
	r := NewPathResolver(fsys, []string{"py"})

	first, err := r.Resolve("x", "")
	require.NoError(t, err)

	delete(fsys, "x.py")
	second, err := r.Resolve("x", "")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	r.Reset()
	_, err = r.Resolve("x", "")
	assert.True(t, IsKind(err, ErrorKindNotFoundWithExtensions))
}

func TestPathResolver_ReadUnit(t *testing.T) {
	r := NewPathResolver(unitFS(map[string]string{"x.py": "FOO = 1\n"}), []string{"py"})

	data, err := r.ReadUnit("x.py")
	require.NoError(t, err)
	assert.Equal(t, "FOO = 1\n", string(data))

	_, err = r.ReadUnit("nope.py")
	assert.True(t, IsKind(err, ErrorKindNotFound))
}
