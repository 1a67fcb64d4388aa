package doclite

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"
)

// NamingConvention maps Go struct field names to JSON member names when a
// field carries no json tag.
type NamingConvention int

const (
	// AsIs keeps the Go field name unchanged.
	AsIs NamingConvention = iota
	// LowerCamel lowercases the leading run of capitals ("UserName" ->
	// "userName", "ID" -> "id").
	LowerCamel
	// SnakeCase inserts underscores at case boundaries ("UserName" ->
	// "user_name").
	SnakeCase
)

func (nc NamingConvention) apply(name string) string {
	switch nc {
	case LowerCamel:
		return lowerCamel(name)
	case SnakeCase:
		return snakeCase(name)
	default:
		return name
	}
}

func lowerCamel(name string) string {
	runes := []rune(name)
	for i := range runes {
		if !unicode.IsUpper(runes[i]) {
			break
		}
		// keep the last capital of an initialism when a word follows:
		// "JSONBody" -> "jsonBody", but "ID" -> "id"
		if i > 0 && i+1 < len(runes) && unicode.IsLower(runes[i+1]) {
			break
		}
		runes[i] = unicode.ToLower(runes[i])
	}
	return string(runes)
}

func snakeCase(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			boundary := i > 0 && (!unicode.IsUpper(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1])))
			if boundary {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Path is a dotted JSON path inside a stored document, without the leading
// "$." ("id", "address.city"). Table operations embed paths into SQL text, so
// a Path must not contain single quotes.
type Path string

func (p Path) jsonPath() string { return "$." + string(p) }

func (p Path) validate() error {
	if p == "" {
		return fmt.Errorf("doclite: empty path")
	}
	if strings.ContainsAny(string(p), "'\"") {
		return fmt.Errorf("doclite: path %q contains quote characters", p)
	}
	return nil
}

// PathOf derives the JSON path for a chain of struct fields on document type
// T, applying nc to untagged fields and honoring json tags. It fails when a
// named field does not exist or the chain descends through a non-struct.
func PathOf[T any](nc NamingConvention, fields ...string) (Path, error) {
	if len(fields) == 0 {
		return "", fmt.Errorf("doclite: PathOf requires at least one field")
	}
	t := reflect.TypeOf((*T)(nil)).Elem()
	segments := make([]string, 0, len(fields))
	for _, name := range fields {
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		if t.Kind() != reflect.Struct {
			return "", fmt.Errorf("doclite: field %q: %s is not a struct", name, t)
		}
		field, ok := t.FieldByName(name)
		if !ok {
			return "", fmt.Errorf("doclite: type %s has no field %q", t, name)
		}
		segments = append(segments, jsonName(field, nc))
		t = field.Type
	}
	return Path(strings.Join(segments, ".")), nil
}

// MustPathOf is PathOf for selectors known correct at compile time.
func MustPathOf[T any](nc NamingConvention, fields ...string) Path {
	p, err := PathOf[T](nc, fields...)
	if err != nil {
		panic(err)
	}
	return p
}

func jsonName(field reflect.StructField, nc NamingConvention) string {
	tag := field.Tag.Get("json")
	if tag != "" {
		name, _, _ := strings.Cut(tag, ",")
		if name != "" && name != "-" {
			return name
		}
	}
	return nc.apply(field.Name)
}
