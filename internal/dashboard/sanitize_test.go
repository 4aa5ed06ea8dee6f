package dashboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeValue_Integers(t *testing.T) {
	assert.Equal(t, int64(42), SanitizeValue(int64(42)))
	assert.Equal(t, int64(maxSafeInteger), SanitizeValue(int64(maxSafeInteger)))

	// Beyond 2^53-1 precision would be lost client-side; emit the digits.
	assert.Equal(t, "9007199254740993", SanitizeValue(int64(9007199254740993)))
	assert.Equal(t, "-9007199254740993", SanitizeValue(int64(-9007199254740993)))
}

func TestSanitizeValue_Timestamps(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)
	ts := time.Date(2025, 6, 1, 9, 30, 0, 0, loc)

	assert.Equal(t, "2025-06-01T12:30:00Z", SanitizeValue(ts))
}

func TestSanitizeValue_Bytes(t *testing.T) {
	// Text columns arrive as bytes from the driver.
	assert.Equal(t, "+55 11 99999-0000", SanitizeValue([]byte("+55 11 99999-0000")))

	// Numeric columns too; the decimal string is kept verbatim.
	assert.Equal(t, "1234.56", SanitizeValue([]byte("1234.56")))

	assert.Equal(t, "", SanitizeValue([]byte{}))
}

func TestSanitizeValue_JSONDocuments(t *testing.T) {
	expanded := SanitizeValue([]byte(`{"total": 10, "tags": ["a"]}`))
	assert.Equal(t, map[string]interface{}{
		"total": float64(10),
		"tags":  []interface{}{"a"},
	}, expanded)

	assert.Equal(t, []interface{}{float64(1), float64(2)}, SanitizeValue([]byte(`[1, 2]`)))

	// Malformed documents fall back to the raw string.
	assert.Equal(t, "{broken", SanitizeValue([]byte("{broken")))
}

func TestSanitizeRow_Recursion(t *testing.T) {
	ts := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	row := map[string]interface{}{
		"id":    int64(1),
		"saldo": []byte("10.50"),
		"meta": map[string]interface{}{
			"criado": ts,
			"ids":    []interface{}{int64(1 << 60)},
		},
		"nada": nil,
	}

	got := SanitizeRow(row)

	assert.Equal(t, map[string]interface{}{
		"id":    int64(1),
		"saldo": "10.50",
		"meta": map[string]interface{}{
			"criado": "2025-01-02T00:00:00Z",
			"ids":    []interface{}{"1152921504606846976"},
		},
		"nada": nil,
	}, got)
}
