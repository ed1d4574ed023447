package querycache

import (
	"reflect"
	"strings"
	"unicode"
)

// modelName derives the model identifier from T's type name. Pointer and
// generic wrappers are stripped before snake_casing so the identifier is
// stable regardless of how the entity is parameterized.
func modelName[T any]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice {
		t = t.Elem()
	}

	name := t.Name()
	if name == "" {
		name = t.String()
	}
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = name[:i]
	}
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return toSnake(name)
}

// toSnake converts s to snake_case, stripping any punctuation that shows
// up in reflected type names. Punctuation in a model identifier would
// corrupt the colon-delimited key format.
func toSnake(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/2)

	runes := []rune(s)
	pendingSep := false

	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if b.Len() > 0 {
				if pendingSep {
					b.WriteByte('_')
				} else {
					prev := runes[i-1]
					nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
					if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
						b.WriteByte('_')
					}
				}
			}
			b.WriteRune(unicode.ToLower(r))
			pendingSep = false
		case unicode.IsLower(r) || unicode.IsDigit(r):
			if pendingSep {
				b.WriteByte('_')
			}
			b.WriteRune(r)
			pendingSep = false
		default:
			pendingSep = b.Len() > 0
		}
	}

	return strings.Trim(b.String(), "_")
}
