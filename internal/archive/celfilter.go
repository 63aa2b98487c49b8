package archive

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/inflow-io/inflow/internal/workqueue"
)

// celFilter wraps a compiled CEL program evaluated against archived dead
// letters. When disabled, Eval always returns true.
type celFilter struct {
	prog    cel.Program
	enabled bool
}

func newCELFilter(expr string) (celFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return celFilter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("key", cel.StringType),
		cel.Variable("label", cel.StringType),
		cel.Variable("text", cel.StringType),
		cel.Variable("error", cel.StringType),
		cel.Variable("retry_count", cel.IntType),
		cel.Variable("created_at_ms", cel.IntType),
		// Parsed body when it is JSON, for field filtering
		cel.Variable("json", cel.DynType),
		// Current time in ms for windowed filters
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return celFilter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return celFilter{}, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return celFilter{}, iss2.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return celFilter{}, err
	}
	return celFilter{prog: prog, enabled: true}, nil
}

// Eval evaluates the compiled expression against an item. When disabled,
// returns true.
func (f celFilter) Eval(item workqueue.Item) bool {
	if !f.enabled {
		return true
	}
	var jsonObj any
	_ = json.Unmarshal([]byte(item.Body), &jsonObj)
	out, _, err := f.prog.Eval(map[string]any{
		"key":           item.Key,
		"label":         item.Label,
		"text":          item.Body,
		"error":         item.Error,
		"retry_count":   int64(item.RetryCount),
		"created_at_ms": item.CreatedAtMs,
		"json":          jsonObj,
		"now_ms":        time.Now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
