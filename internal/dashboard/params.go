package dashboard

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Parameter types accepted by the metadata schema
const (
	ParamString  = "string"
	ParamNumber  = "number"
	ParamDate    = "date"
	ParamBoolean = "boolean"
	ParamArray   = "array"
)

// ParamSchema maps a parameter name to its declared shape
type ParamSchema map[string]*ParamSchemaEntry

// ParamSchemaEntry declares one query parameter
type ParamSchemaEntry struct {
	Type     string        `json:"type"`
	Required bool          `json:"required"`
	Enum     []interface{} `json:"enum,omitempty"`
	Minimum  *float64      `json:"minimum,omitempty"`
	Maximum  *float64      `json:"maximum,omitempty"`
	Items    *ParamItems   `json:"items,omitempty"`
	Default  interface{}   `json:"default,omitempty"`
}

// ParamItems declares the element shape of an array parameter
type ParamItems struct {
	Type    string        `json:"type"`
	Enum    []interface{} `json:"enum,omitempty"`
	Minimum *float64      `json:"minimum,omitempty"`
	Maximum *float64      `json:"maximum,omitempty"`
}

// ValidationError reports a parameter bundle that cannot satisfy the
// schema. The message is user-facing and recorded per slug.
type ValidationError struct {
	Param   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Date parameters named like a period start default to 30 days back;
// ones named like a period end default to today.
var (
	periodStartRe = regexp.MustCompile(`(?i)inicio|início|start|begin`)
	periodEndRe   = regexp.MustCompile(`(?i)fim|final|end`)
)

const isoDate = "2006-01-02"

// ResolveParams builds the effective parameter bundle for one query.
// For every declared name the value is chosen as provided > default >
// auto-default, then coerced to the declared type. Extra provided
// parameters pass through untouched; the caller logs them.
func ResolveParams(schema ParamSchema, defaults, provided map[string]interface{}, now time.Time) (map[string]interface{}, []string, error) {
	resolved := make(map[string]interface{}, len(schema)+len(provided))

	for name, entry := range schema {
		if entry == nil {
			entry = &ParamSchemaEntry{Type: ParamString}
		}

		value, ok := pick(name, entry, defaults, provided, now)
		if !ok {
			if entry.Required {
				return nil, nil, &ValidationError{
					Param:   name,
					Message: "Parâmetro obrigatório ausente: " + name,
				}
			}
			continue
		}

		coerced, err := coerce(name, entry, value)
		if err != nil {
			return nil, nil, err
		}
		resolved[name] = coerced
	}

	var extras []string
	for name, value := range provided {
		if _, declared := schema[name]; !declared {
			resolved[name] = value
			extras = append(extras, name)
		}
	}

	return resolved, extras, nil
}

// pick chooses the raw value in precedence order. The second return is
// false when no value could be determined.
func pick(name string, entry *ParamSchemaEntry, defaults, provided map[string]interface{}, now time.Time) (interface{}, bool) {
	if v, ok := provided[name]; ok && v != nil {
		return v, true
	}
	if entry.Default != nil {
		return entry.Default, true
	}
	if v, ok := defaults[name]; ok && v != nil {
		return v, true
	}
	return autoDefault(name, entry, now)
}

func autoDefault(name string, entry *ParamSchemaEntry, now time.Time) (interface{}, bool) {
	switch entry.Type {
	case ParamDate:
		if periodStartRe.MatchString(name) {
			return now.AddDate(0, 0, -30).Format(isoDate), true
		}
		// Period-end names and plain dates both default to today.
		return now.Format(isoDate), true
	case ParamNumber:
		if entry.Minimum != nil {
			return *entry.Minimum, true
		}
		if entry.Maximum != nil && *entry.Maximum < 1000 {
			return *entry.Maximum, true
		}
		return float64(0), true
	case ParamArray:
		if entry.Items != nil && len(entry.Items.Enum) > 0 {
			return append([]interface{}(nil), entry.Items.Enum...), true
		}
	}
	return nil, false
}

func coerce(name string, entry *ParamSchemaEntry, value interface{}) (interface{}, error) {
	switch entry.Type {
	case ParamNumber:
		return coerceNumber(name, value, entry.Minimum, entry.Maximum, entry.Enum)
	case ParamDate:
		return coerceDate(name, value)
	case ParamBoolean:
		return coerceBoolean(value), nil
	case ParamArray:
		return coerceArray(name, entry, value)
	default:
		return coerceString(name, value, entry.Enum)
	}
}

func coerceNumber(name string, value interface{}, minimum, maximum *float64, enum []interface{}) (interface{}, error) {
	var n float64
	switch v := value.(type) {
	case float64:
		n = v
	case float32:
		n = float64(v)
	case int:
		n = float64(v)
	case int64:
		n = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return nil, &ValidationError{Param: name, Message: fmt.Sprintf("Parâmetro '%s' deve ser numérico", name)}
		}
		n = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, &ValidationError{Param: name, Message: fmt.Sprintf("Parâmetro '%s' deve ser numérico", name)}
		}
		n = parsed
	default:
		return nil, &ValidationError{Param: name, Message: fmt.Sprintf("Parâmetro '%s' deve ser numérico", name)}
	}

	if minimum != nil && n < *minimum {
		return nil, &ValidationError{Param: name, Message: fmt.Sprintf("Parâmetro '%s' abaixo do mínimo permitido (%v)", name, *minimum)}
	}
	if maximum != nil && n > *maximum {
		return nil, &ValidationError{Param: name, Message: fmt.Sprintf("Parâmetro '%s' acima do máximo permitido (%v)", name, *maximum)}
	}
	if len(enum) > 0 && !enumContains(enum, n) {
		return nil, &ValidationError{Param: name, Message: fmt.Sprintf("Parâmetro '%s' fora dos valores permitidos", name)}
	}
	return n, nil
}

// coerceDate accepts YYYY-MM-DD directly, or anything the common
// timestamp layouts parse, and always emits YYYY-MM-DD.
func coerceDate(name string, value interface{}) (interface{}, error) {
	s, ok := value.(string)
	if !ok {
		s = fmt.Sprint(value)
	}
	s = strings.TrimSpace(s)

	if _, err := time.Parse(isoDate, s); err == nil {
		return s, nil
	}

	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"02/01/2006",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(isoDate), nil
		}
	}

	return nil, &ValidationError{Param: name, Message: fmt.Sprintf("Parâmetro '%s' não é uma data válida", name)}
}

func coerceBoolean(value interface{}) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		lower := strings.ToLower(strings.TrimSpace(v))
		return lower == "true" || lower == "1"
	case float64:
		return v != 0
	case int:
		return v != 0
	case int64:
		return v != 0
	case json.Number:
		n, err := v.Float64()
		return err == nil && n != 0
	default:
		return false
	}
}

func coerceString(name string, value interface{}, enum []interface{}) (interface{}, error) {
	s, ok := value.(string)
	if !ok {
		s = stringify(value)
	}
	if len(enum) > 0 && !enumContains(enum, s) {
		return nil, &ValidationError{Param: name, Message: fmt.Sprintf("Parâmetro '%s' fora dos valores permitidos", name)}
	}
	return s, nil
}

func coerceArray(name string, entry *ParamSchemaEntry, value interface{}) (interface{}, error) {
	var elements []interface{}
	switch v := value.(type) {
	case []interface{}:
		elements = v
	case []string:
		for _, s := range v {
			elements = append(elements, s)
		}
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil, &ValidationError{Param: name, Message: fmt.Sprintf("Parâmetro '%s' deve ser uma lista", name)}
		}
		for _, part := range strings.Split(trimmed, ",") {
			elements = append(elements, strings.TrimSpace(part))
		}
	default:
		return nil, &ValidationError{Param: name, Message: fmt.Sprintf("Parâmetro '%s' deve ser uma lista", name)}
	}

	if entry.Items == nil {
		return elements, nil
	}

	itemEntry := &ParamSchemaEntry{
		Type:    entry.Items.Type,
		Enum:    entry.Items.Enum,
		Minimum: entry.Items.Minimum,
		Maximum: entry.Items.Maximum,
	}
	out := make([]interface{}, 0, len(elements))
	for _, element := range elements {
		coerced, err := coerce(name, itemEntry, element)
		if err != nil {
			return nil, err
		}
		out = append(out, coerced)
	}
	return out, nil
}

func enumContains(enum []interface{}, value interface{}) bool {
	for _, allowed := range enum {
		if equalLiteral(allowed, value) {
			return true
		}
	}
	return false
}

// equalLiteral compares enum literals loosely: JSON decoding yields
// float64 for every number, but schema authors mix "1" and 1.
func equalLiteral(a, b interface{}) bool {
	if a == b {
		return true
	}
	return stringify(a) == stringify(b)
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
