package dashboard

import (
	"fmt"
	"regexp"
	"strconv"
)

// Statement is a compiled template: positional-placeholder SQL text plus
// the argument list bound at execution time.
type Statement struct {
	Text string
	Args []interface{}
	// ArrayArgs marks which positional indexes (1-based) carry arrays
	ArrayArgs map[int]bool
}

// TemplateError reports a template referencing a parameter the resolved
// bundle does not carry.
type TemplateError struct {
	Param string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("Parâmetro '%s' não foi informado", e.Param)
}

// placeholderRe matches {{name}} markers; whitespace inside the braces is
// tolerated.
var placeholderRe = regexp.MustCompile(`\{\{\s*([\p{L}_][\p{L}\p{N}_]*)\s*\}\}`)

// Compile rewrites every {{name}} marker in the template into a positional
// placeholder and collects the bound arguments. Repeated markers for the
// same name share one placeholder. Parameters present in the bundle but
// never referenced are not an error; the caller logs them.
func Compile(template string, params map[string]interface{}, schema ParamSchema) (*Statement, error) {
	stmt := &Statement{ArrayArgs: make(map[int]bool)}
	indexes := make(map[string]int)

	var compileErr error
	text := placeholderRe.ReplaceAllStringFunc(template, func(marker string) string {
		if compileErr != nil {
			return marker
		}

		name := placeholderRe.FindStringSubmatch(marker)[1]
		value, ok := params[name]
		if !ok {
			compileErr = &TemplateError{Param: name}
			return marker
		}

		index, seen := indexes[name]
		if !seen {
			stmt.Args = append(stmt.Args, value)
			index = len(stmt.Args)
			indexes[name] = index
			if isArrayParam(name, value, schema) {
				stmt.ArrayArgs[index] = true
			}
		}
		return "$" + strconv.Itoa(index)
	})
	if compileErr != nil {
		return nil, compileErr
	}

	for index := range stmt.ArrayArgs {
		text = rewriteArrayOperators(text, index)
	}

	stmt.Text = text
	return stmt, nil
}

// isArrayParam reports whether a placeholder binds an array: either the
// schema declares it so, or the resolved value is a list.
func isArrayParam(name string, value interface{}, schema ParamSchema) bool {
	if entry, ok := schema[name]; ok && entry != nil && entry.Type == ParamArray {
		return true
	}
	switch value.(type) {
	case []interface{}, []string, []float64:
		return true
	}
	return false
}

// rewriteArrayOperators turns `IN ($k)` into `= ANY($k)` and
// `NOT IN ($k)` into `<> ALL($k)` for one array-bound placeholder,
// preserving an optional cast suffix verbatim. SQL authors write natural
// IN lists; the driver binds the array as a single positional argument.
// Applying the rewrite twice is a no-op: the produced text contains no
// IN ( $k ) pattern anymore.
func rewriteArrayOperators(text string, index int) string {
	placeholder := regexp.QuoteMeta("$" + strconv.Itoa(index))
	// Cast suffix like ::int[] or ::text[] is kept as written.
	cast := `((?:\s*::[a-zA-Z0-9_\[\]]+)?)`

	// $$ is a literal dollar in the replacement; ${1} re-emits the cast.
	notInRe := regexp.MustCompile(`(?i)NOT\s+IN\s*\(\s*` + placeholder + cast + `\s*\)`)
	text = notInRe.ReplaceAllString(text, "<> ALL($$"+strconv.Itoa(index)+"${1})")

	inRe := regexp.MustCompile(`(?i)\bIN\s*\(\s*` + placeholder + cast + `\s*\)`)
	text = inRe.ReplaceAllString(text, "= ANY($$"+strconv.Itoa(index)+"${1})")

	return text
}
