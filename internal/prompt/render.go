// Package prompt renders a template's prompt spec before it is sent to the
// content generator. Embedded $(expr) expressions are evaluated as JavaScript
// against the job variables; \$( yields a literal "$(".
package prompt

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dop251/goja"
)

// Renderer evaluates prompt expressions. A fresh VM is created per call, so a
// Renderer is safe for concurrent use.
type Renderer struct {
	lib []string
}

// NewRenderer creates a Renderer. lib holds JavaScript snippets (helper
// functions) loaded into every VM before evaluation.
func NewRenderer(lib ...string) *Renderer {
	return &Renderer{lib: lib}
}

// Render expands every $(expr) in spec. Each key of vars is bound as a
// global in the VM, e.g. $(job.schedule_date) or $(slot.name.toUpperCase()).
func (r *Renderer) Render(spec string, vars map[string]any) (string, error) {
	matches := findExpressions(spec)
	if len(matches) == 0 {
		return unescape(spec), nil
	}

	vm, err := r.setupVM(vars)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	last := 0
	for _, m := range matches {
		out.WriteString(unescape(spec[last:m.start]))

		val, err := vm.RunString(m.expr)
		if err != nil {
			return "", fmt.Errorf("prompt expression $(%s): %w", m.expr, err)
		}
		if goja.IsUndefined(val) {
			return "", fmt.Errorf("prompt expression $(%s) is undefined", m.expr)
		}
		out.WriteString(toString(val.Export()))
		last = m.end
	}
	out.WriteString(unescape(spec[last:]))
	return out.String(), nil
}

func (r *Renderer) setupVM(vars map[string]any) (*goja.Runtime, error) {
	vm := goja.New()
	for i, lib := range r.lib {
		if _, err := vm.RunString(lib); err != nil {
			return nil, fmt.Errorf("prompt lib[%d]: %w", i, err)
		}
	}
	for k, v := range vars {
		if err := vm.Set(k, v); err != nil {
			return nil, fmt.Errorf("set %s: %w", k, err)
		}
	}
	return vm, nil
}

func unescape(s string) string {
	return strings.ReplaceAll(s, `\$(`, "$(")
}

type exprMatch struct {
	start int // index of "$("
	end   int // index after the closing ")"
	expr  string
}

// findExpressions finds unescaped $(...) spans, honouring nested parentheses.
// An unterminated "$(" is left as literal text.
func findExpressions(s string) []exprMatch {
	var matches []exprMatch
	i := 0
	for i < len(s)-1 {
		if s[i] == '$' && s[i+1] == '(' && (i == 0 || s[i-1] != '\\') {
			depth := 1
			j := i + 2
			for j < len(s) && depth > 0 {
				switch s[j] {
				case '(':
					depth++
				case ')':
					depth--
				}
				j++
			}
			if depth == 0 {
				matches = append(matches, exprMatch{start: i, end: j, expr: s[i+2 : j-1]})
				i = j
				continue
			}
		}
		i++
	}
	return matches
}

func toString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = toString(item)
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ordered := make(map[string]any, len(val))
		for _, k := range keys {
			ordered[k] = val[k]
		}
		data, _ := json.Marshal(ordered)
		return string(data)
	default:
		return fmt.Sprintf("%v", val)
	}
}
