// Package format serializes resolved configurations.
package format

import (
	"fmt"
	"io"
	"slices"
	"sort"

	"github.com/execconf/execconf/pkg/config"
	json "github.com/goccy/go-json"
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// Formatter writes a configuration to w.
type Formatter interface {
	Format(w io.Writer, cfg *config.Config) error
}

// Names of the built-in formatters.
const (
	JSON    = "json"
	YAML    = "yaml"
	MsgPack = "msgpack"
)

var registry = map[string]func() Formatter{
	JSON:    func() Formatter { return &JSONFormatter{Pretty: true} },
	YAML:    func() Formatter { return &YAMLFormatter{} },
	MsgPack: func() Formatter { return &MsgPackFormatter{} },
}

// New returns the formatter registered under name.
func New(name string) (Formatter, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown output type %q (available: %v)", name, Names())
	}
	return ctor(), nil
}

// Names returns the registered formatter names.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsBinary reports whether the named format produces non-text output.
func IsBinary(name string) bool {
	return slices.Contains([]string{MsgPack}, name)
}

// JSONFormatter writes JSON. Pretty output is indented by four spaces.
// Keys are always sorted.
type JSONFormatter struct {
	Pretty bool
}

// Format implements Formatter.
func (f *JSONFormatter) Format(w io.Writer, cfg *config.Config) error {
	var (
		out []byte
		err error
	)
	if f.Pretty {
		out, err = json.MarshalIndent(cfg.ToMap(), "", "    ")
	} else {
		out, err = json.Marshal(cfg.ToMap())
	}
	if err != nil {
		return fmt.Errorf("failed to encode json: %w", err)
	}
	out = append(out, '\n')
	_, err = w.Write(out)
	return err
}

// YAMLFormatter writes a YAML document.
type YAMLFormatter struct{}

// Format implements Formatter.
func (f *YAMLFormatter) Format(w io.Writer, cfg *config.Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg.ToMap()); err != nil {
		return fmt.Errorf("failed to encode yaml: %w", err)
	}
	return enc.Close()
}

// MsgPackFormatter writes MessagePack with map keys in sorted order.
type MsgPackFormatter struct{}

// Format implements Formatter.
func (f *MsgPackFormatter) Format(w io.Writer, cfg *config.Config) error {
	enc := msgpack.NewEncoder(w)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(cfg.ToMap()); err != nil {
		return fmt.Errorf("failed to encode msgpack: %w", err)
	}
	return nil
}
