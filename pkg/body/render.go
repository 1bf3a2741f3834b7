package body

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/ohler55/ojg"
	"github.com/ohler55/ojg/oj"
)

// renderOptions produce compact JSON with sorted object keys so
// diagnostics are stable.
var renderOptions = func() *ojg.Options {
	opts := ojg.DefaultOptions
	opts.Sort = true
	return &opts
}()

// RenderJSON renders a JSON-compatible value compactly with sorted keys.
func RenderJSON(v any) string {
	return oj.JSON(v, renderOptions)
}

// String renders v for diagnostics.
func (v Value) String() string {
	switch v.Kind {
	case KindNone:
		return "(empty)"
	case KindJSON:
		return RenderJSON(v.JSON)
	case KindText:
		return strconv.Quote(v.Text)
	case KindBlob:
		return fmt.Sprintf("Blob { type: %q, size: %d }", v.MediaType, len(v.Data))
	case KindURLEncoded:
		return "URLSearchParams " + RenderJSON(flatten(v.Params))
	case KindFormData:
		fields := make(map[string][]any, len(v.Form))
		for name, parts := range v.Form {
			for _, p := range parts {
				fields[name] = append(fields[name], renderPart(p))
			}
		}
		return "FormData " + RenderJSON(flatten(fields))
	default:
		return v.Kind.String()
	}
}

func renderPart(p Part) any {
	if !p.File {
		return p.Value
	}
	return fmt.Sprintf("File { name: %q, type: %q, size: %d }", p.Filename, p.ContentType, len(p.Data))
}

// flatten turns single-valued fields into scalars for compact rendering.
func flatten[T any](m map[string][]T) map[string]any {
	out := make(map[string]any, len(m))
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		values := m[k]
		if len(values) == 1 {
			out[k] = values[0]
			continue
		}
		list := make([]any, len(values))
		for i, v := range values {
			list[i] = v
		}
		out[k] = list
	}
	return out
}
