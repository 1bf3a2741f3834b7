package body

import (
	"bytes"
	"slices"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
)

// Equal reports whether received satisfies the expected body.
func Equal(expected, received Value) bool {
	switch expected.Kind {
	case KindNone:
		return received.Kind == KindNone
	case KindJSON:
		return received.Kind == KindJSON && cmp.Equal(normalizeNumbers(expected.JSON), normalizeNumbers(received.JSON))
	case KindFormData:
		return received.Kind == KindFormData && formEqual(expected.Form, received.Form)
	case KindURLEncoded:
		return received.Kind == KindURLEncoded && paramsEqual(expected.Params, received.Params)
	case KindBlob:
		return received.Kind == KindBlob &&
			expected.MediaType == received.MediaType &&
			bytes.Equal(expected.Data, received.Data)
	case KindText:
		switch received.Kind {
		case KindText:
			return expected.Text == received.Text
		case KindBlob:
			return utf8.Valid(received.Data) && string(received.Data) == expected.Text
		}
		return false
	default:
		return false
	}
}

// normalizeNumbers converts integers to float64 so that 1, 1.0 and 1e0
// compare equal, as they do in JSON.
func normalizeNumbers(v any) any {
	switch x := v.(type) {
	case int64:
		return float64(x)
	case int:
		return float64(x)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = normalizeNumbers(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalizeNumbers(e)
		}
		return out
	default:
		return v
	}
}

func paramsEqual(expected, received map[string][]string) bool {
	if len(expected) != len(received) {
		return false
	}
	for name, want := range expected {
		got, ok := received[name]
		if !ok || !sameMultiset(want, got) {
			return false
		}
	}
	return true
}

func sameMultiset(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := slices.Clone(a)
	bs := slices.Clone(b)
	slices.Sort(as)
	slices.Sort(bs)
	return slices.Equal(as, bs)
}

func formEqual(expected, received map[string][]Part) bool {
	if len(expected) != len(received) {
		return false
	}
	for name, want := range expected {
		got, ok := received[name]
		if !ok || len(want) != len(got) {
			return false
		}
		if !sameParts(want, got) {
			return false
		}
	}
	return true
}

// sameParts matches each expected part against a distinct received part.
func sameParts(want, got []Part) bool {
	used := make([]bool, len(got))
	for _, w := range want {
		found := false
		for i, g := range got {
			if !used[i] && partEqual(w, g) {
				used[i] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func partEqual(want, got Part) bool {
	if want.File != got.File {
		return false
	}
	if !want.File {
		return want.Value == got.Value
	}
	if want.Filename != "" && want.Filename != got.Filename {
		return false
	}
	return want.ContentType == got.ContentType && bytes.Equal(want.Data, got.Data)
}
