package dashboard

import (
	"encoding/json"
	"strconv"
	"time"
)

// Query results mix big integers, timestamps, byte slices and nested
// JSON. Everything is normalised recursively to JSON-safe forms before
// leaving the gateway.

// maxSafeInteger is the largest integer a JSON consumer can hold without
// precision loss (2^53 - 1).
const maxSafeInteger = 1<<53 - 1

// SanitizeRows normalises every row of a result set
func SanitizeRows(rows []map[string]interface{}) []map[string]interface{} {
	out := make([]map[string]interface{}, len(rows))
	for i, row := range rows {
		out[i] = SanitizeRow(row)
	}
	return out
}

// SanitizeRow normalises a single row
func SanitizeRow(row map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(row))
	for key, value := range row {
		out[key] = SanitizeValue(value)
	}
	return out
}

// SanitizeValue normalises one value:
//   - int64 within the safe-integer range stays numeric, beyond it the
//     decimal string representation is emitted
//   - timestamps become ISO 8601 strings
//   - byte slices holding JSON documents are expanded, others become strings
//   - maps and slices are recursed structurally
func SanitizeValue(value interface{}) interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case int64:
		if v > maxSafeInteger || v < -maxSafeInteger {
			return strconv.FormatInt(v, 10)
		}
		return v
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case []byte:
		return sanitizeBytes(v)
	case map[string]interface{}:
		return SanitizeRow(v)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = SanitizeValue(item)
		}
		return out
	case []map[string]interface{}:
		return SanitizeRows(v)
	default:
		return v
	}
}

// sanitizeBytes handles driver values delivered as raw bytes: numeric
// columns, text and json/jsonb all arrive this way from lib/pq.
func sanitizeBytes(b []byte) interface{} {
	if len(b) == 0 {
		return ""
	}

	switch b[0] {
	case '{', '[':
		var doc interface{}
		if err := json.Unmarshal(b, &doc); err == nil {
			return SanitizeValue(doc)
		}
	}

	// Text and numeric columns both arrive as bytes; numerics therefore
	// travel as decimal strings, which JSON consumers hold losslessly.
	return string(b)
}
