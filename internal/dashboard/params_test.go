package dashboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func schemaEntry(t string, required bool) *ParamSchemaEntry {
	return &ParamSchemaEntry{Type: t, Required: required}
}

func TestResolveParams_RequiredMissing(t *testing.T) {
	schema := ParamSchema{
		"company": schemaEntry(ParamString, true),
	}

	_, _, err := ResolveParams(schema, nil, nil, time.Now())

	require.Error(t, err)
	assert.Equal(t, "Parâmetro obrigatório ausente: company", err.Error())
}

func TestResolveParams_DateAutoDefaults(t *testing.T) {
	schema := ParamSchema{
		"data_inicio": schemaEntry(ParamDate, false),
		"data_fim":    schemaEntry(ParamDate, false),
	}
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

	resolved, extras, err := ResolveParams(schema, nil, nil, now)

	require.NoError(t, err)
	assert.Empty(t, extras)
	assert.Equal(t, "2024-12-16", resolved["data_inicio"])
	assert.Equal(t, "2025-01-15", resolved["data_fim"])
}

func TestResolveParams_Precedence(t *testing.T) {
	schema := ParamSchema{
		"status": {Type: ParamString, Default: "schema"},
		"limit":  schemaEntry(ParamNumber, false),
	}
	defaults := map[string]interface{}{"status": "table", "limit": float64(10)}
	provided := map[string]interface{}{"limit": float64(25)}

	resolved, _, err := ResolveParams(schema, defaults, provided, time.Now())

	require.NoError(t, err)
	// Provided wins; the schema's own default outranks the defaults map.
	assert.Equal(t, float64(25), resolved["limit"])
	assert.Equal(t, "schema", resolved["status"])
}

func TestResolveParams_NumberCoercionAndBounds(t *testing.T) {
	min, max := 1.0, 100.0
	schema := ParamSchema{
		"limit": {Type: ParamNumber, Minimum: &min, Maximum: &max},
	}

	resolved, _, err := ResolveParams(schema, nil, map[string]interface{}{"limit": "42"}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, float64(42), resolved["limit"])

	_, _, err = ResolveParams(schema, nil, map[string]interface{}{"limit": float64(500)}, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acima do máximo")

	_, _, err = ResolveParams(schema, nil, map[string]interface{}{"limit": "not-a-number"}, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deve ser numérico")
}

func TestResolveParams_NumberAutoDefault(t *testing.T) {
	min := 5.0
	smallMax := 50.0
	hugeMax := 100000.0

	cases := []struct {
		name  string
		entry *ParamSchemaEntry
		want  float64
	}{
		{"minimum wins", &ParamSchemaEntry{Type: ParamNumber, Minimum: &min}, 5},
		{"small maximum", &ParamSchemaEntry{Type: ParamNumber, Maximum: &smallMax}, 50},
		{"huge maximum falls back to zero", &ParamSchemaEntry{Type: ParamNumber, Maximum: &hugeMax}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resolved, _, err := ResolveParams(ParamSchema{"n": tc.entry}, nil, nil, time.Now())
			require.NoError(t, err)
			assert.Equal(t, tc.want, resolved["n"])
		})
	}
}

func TestResolveParams_DateCoercion(t *testing.T) {
	schema := ParamSchema{"dia": schemaEntry(ParamDate, false)}

	cases := []struct {
		input string
		want  string
	}{
		{"2025-03-01", "2025-03-01"},
		{"2025-03-01T12:30:00Z", "2025-03-01"},
		{"2025-03-01 12:30:00", "2025-03-01"},
		{"01/03/2025", "2025-03-01"},
	}
	for _, tc := range cases {
		resolved, _, err := ResolveParams(schema, nil, map[string]interface{}{"dia": tc.input}, time.Now())
		require.NoError(t, err, tc.input)
		assert.Equal(t, tc.want, resolved["dia"], tc.input)
	}

	_, _, err := ResolveParams(schema, nil, map[string]interface{}{"dia": "yesterday"}, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "não é uma data válida")
}

func TestResolveParams_BooleanCoercion(t *testing.T) {
	schema := ParamSchema{"ativo": schemaEntry(ParamBoolean, false)}

	for input, want := range map[interface{}]bool{
		true:       true,
		"true":     true,
		"TRUE":     true,
		"1":        true,
		"no":       false,
		float64(0): false,
		float64(2): true,
	} {
		resolved, _, err := ResolveParams(schema, nil, map[string]interface{}{"ativo": input}, time.Now())
		require.NoError(t, err)
		assert.Equal(t, want, resolved["ativo"], "input %v", input)
	}
}

func TestResolveParams_StringEnum(t *testing.T) {
	schema := ParamSchema{
		"status": {Type: ParamString, Enum: []interface{}{"open", "closed"}},
	}

	resolved, _, err := ResolveParams(schema, nil, map[string]interface{}{"status": "open"}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "open", resolved["status"])

	_, _, err = ResolveParams(schema, nil, map[string]interface{}{"status": "pending"}, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fora dos valores permitidos")
}

func TestResolveParams_ArrayCoercion(t *testing.T) {
	schema := ParamSchema{
		"ids": {Type: ParamArray, Items: &ParamItems{Type: ParamNumber}},
	}

	resolved, _, err := ResolveParams(schema, nil, map[string]interface{}{"ids": []interface{}{"1", float64(2)}}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, []interface{}{float64(1), float64(2)}, resolved["ids"])

	// Comma-separated strings split into elements.
	resolved, _, err = ResolveParams(schema, nil, map[string]interface{}{"ids": "3, 4"}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, []interface{}{float64(3), float64(4)}, resolved["ids"])

	_, _, err = ResolveParams(schema, nil, map[string]interface{}{"ids": float64(7)}, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deve ser uma lista")
}

func TestResolveParams_ArrayEnumAutoDefault(t *testing.T) {
	schema := ParamSchema{
		"status": {Type: ParamArray, Items: &ParamItems{Type: ParamString, Enum: []interface{}{"a", "b"}}},
	}

	resolved, _, err := ResolveParams(schema, nil, nil, time.Now())
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a", "b"}, resolved["status"])
}

func TestResolveParams_ExtrasPassThrough(t *testing.T) {
	schema := ParamSchema{"known": schemaEntry(ParamString, false)}
	provided := map[string]interface{}{"known": "x", "mystery": 42}

	resolved, extras, err := ResolveParams(schema, nil, provided, time.Now())

	require.NoError(t, err)
	assert.Equal(t, []string{"mystery"}, extras)
	assert.Equal(t, 42, resolved["mystery"])
}
