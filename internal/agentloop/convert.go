package agentloop

import (
	"encoding/json"
	"sort"

	"github.com/nexus-ptc/ptc/internal/lisp"
)

// goToLisp converts a plain Go value (typically decoded JSON, or the
// caller's context map) into a lisp.Value tree.
func goToLisp(v any) lisp.Value {
	switch t := v.(type) {
	case nil:
		return lisp.Nil{}
	case bool:
		return lisp.Bool(t)
	case string:
		return lisp.Str(t)
	case int:
		return lisp.Int(t)
	case int64:
		return lisp.Int(t)
	case float64:
		if t == float64(int64(t)) {
			return lisp.Int(int64(t))
		}
		return lisp.Float(t)
	case []any:
		items := make([]lisp.Value, len(t))
		for i, e := range t {
			items[i] = goToLisp(e)
		}
		return lisp.Vector{Items: items}
	case map[string]any:
		m := lisp.NewMap()
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			m = m.Set(lisp.Keyword(k), goToLisp(t[k]))
		}
		return m
	default:
		return lisp.Nil{}
	}
}

// lispToGo converts a lisp.Value back into plain Go data, the inverse
// of goToLisp, used to render tool results and JSON-mode return
// values.
func lispToGo(v lisp.Value) any {
	switch t := v.(type) {
	case lisp.Nil:
		return nil
	case lisp.Bool:
		return bool(t)
	case lisp.Str:
		return string(t)
	case lisp.Keyword:
		return string(t)
	case lisp.Int:
		return int64(t)
	case lisp.Float:
		return float64(t)
	case lisp.List:
		out := make([]any, len(t.Items))
		for i, e := range t.Items {
			out[i] = lispToGo(e)
		}
		return out
	case lisp.Vector:
		out := make([]any, len(t.Items))
		for i, e := range t.Items {
			out[i] = lispToGo(e)
		}
		return out
	case *lisp.Map:
		out := map[string]any{}
		t.Range(func(k, val lisp.Value) bool {
			out[keyName(k)] = lispToGo(val)
			return true
		})
		return out
	case *lisp.Set:
		items := t.Items()
		out := make([]any, len(items))
		for i, e := range items {
			out[i] = lispToGo(e)
		}
		return out
	default:
		return nil
	}
}

func jsonToLisp(raw []byte) (lisp.Value, error) {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	return goToLisp(decoded), nil
}
