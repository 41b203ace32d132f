package config

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ReplacementKey names the top-level binding holding replacement values.
const ReplacementKey = "EXEC_REPLACEMENT"

// ApplyReplacement removes the ReplacementKey binding from data and, when it
// is present, formats every string key and value with its "%(name)s"
// placeholders. "%%" renders a single percent sign. data is not modified.
func ApplyReplacement(data map[string]any) (map[string]any, error) {
	raw, ok := data[ReplacementKey]
	if !ok {
		return data, nil
	}

	out := make(map[string]any, len(data))
	for k, v := range data {
		if k != ReplacementKey {
			out[k] = v
		}
	}
	if raw == nil {
		return out, nil
	}

	repl, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s must be a mapping, got %T", ReplacementKey, raw)
	}

	formatted, err := replaceValue(out, repl)
	if err != nil {
		return nil, err
	}
	return formatted.(map[string]any), nil
}

func replaceValue(v any, repl map[string]any) (any, error) {
	switch val := v.(type) {
	case string:
		return formatPercent(val, repl)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			r, err := replaceValue(item, repl)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			key, err := formatPercent(k, repl)
			if err != nil {
				return nil, err
			}
			r, err := replaceValue(item, repl)
			if err != nil {
				return nil, err
			}
			out[key] = r
		}
		return out, nil
	default:
		return val, nil
	}
}

// formatPercent expands "%(name)v" placeholders where v is one of s, r, d, i, f.
func formatPercent(s string, repl map[string]any) (string, error) {
	if !strings.Contains(s, "%") {
		return s, nil
	}

	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '%' {
			sb.WriteByte(c)
			continue
		}
		if i+1 >= len(s) {
			return "", fmt.Errorf("incomplete format in %q", s)
		}
		switch s[i+1] {
		case '%':
			sb.WriteByte('%')
			i++
		case '(':
			end := strings.IndexByte(s[i+2:], ')')
			if end < 0 {
				return "", fmt.Errorf("unterminated placeholder in %q", s)
			}
			name := s[i+2 : i+2+end]
			verbAt := i + 2 + end + 1
			if verbAt >= len(s) {
				return "", fmt.Errorf("incomplete format in %q", s)
			}
			value, ok := repl[name]
			if !ok {
				return "", fmt.Errorf("replacement %q not defined", name)
			}
			rendered, err := renderVerb(s[verbAt], value)
			if err != nil {
				return "", fmt.Errorf("placeholder %q in %q: %w", name, s, err)
			}
			sb.WriteString(rendered)
			i = verbAt
		default:
			return "", fmt.Errorf("unsupported format character %q in %q", s[i+1], s)
		}
	}
	return sb.String(), nil
}

func renderVerb(verb byte, value any) (string, error) {
	switch verb {
	case 's':
		if str, ok := value.(string); ok {
			return str, nil
		}
		return pyRepr(value), nil
	case 'r':
		return pyRepr(value), nil
	case 'd', 'i':
		switch n := value.(type) {
		case int64:
			return fmt.Sprintf("%d", n), nil
		case float64:
			return fmt.Sprintf("%d", int64(n)), nil
		case bool:
			if n {
				return "1", nil
			}
			return "0", nil
		}
		return "", fmt.Errorf("%%%c requires a number, got %T", verb, value)
	case 'f':
		switch n := value.(type) {
		case int64:
			return fmt.Sprintf("%f", float64(n)), nil
		case float64:
			return fmt.Sprintf("%f", n), nil
		}
		return "", fmt.Errorf("%%f requires a number, got %T", value)
	default:
		return "", fmt.Errorf("unsupported format character %q", verb)
	}
}

// pyRepr renders value the way the unit language prints it: None, True and
// False, floats always with a fraction or exponent, quoted strings, and
// mappings with sorted keys.
func pyRepr(value any) string {
	switch v := value.(type) {
	case nil:
		return "None"
	case bool:
		if v {
			return "True"
		}
		return "False"
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return pyFloat(v)
	case string:
		return pyQuote(v)
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = pyRepr(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = pyQuote(k) + ": " + pyRepr(v[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprint(value)
	}
}

// pyFloat uses the shortest round-trip digits, switching to exponent form
// below 1e-4 and from 1e16 on.
func pyFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	if f != 0 {
		sci := strconv.FormatFloat(f, 'e', -1, 64)
		exp, err := strconv.Atoi(sci[strings.IndexByte(sci, 'e')+1:])
		if err == nil && (exp < -4 || exp >= 16) {
			return sci
		}
	}
	out := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(out, ".") {
		out += ".0"
	}
	return out
}

func pyQuote(s string) string {
	q := "'"
	if strings.Contains(s, "'") && !strings.Contains(s, `"`) {
		q = `"`
	}
	s = strings.ReplaceAll(s, `\`, `\\`)
	if q == "'" {
		s = strings.ReplaceAll(s, "'", `\'`)
	}
	s = strings.NewReplacer("\n", `\n`, "\r", `\r`, "\t", `\t`).Replace(s)
	return q + s + q
}
