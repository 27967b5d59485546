package signature

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nexus-ptc/ptc/internal/lisp"
)

// Warning records a non-fatal coercion performed during validation
// (spec 4.1: "'42'→42 ... permitted with a recorded warning").
type Warning struct {
	Path    string
	Message string
}

// ValidationError carries the path, expected, and received type
// information for a type_mismatch (spec 4.1 "Errors").
type ValidationError struct {
	Path     string
	Expected string
	Received string
	Reason   string // "type_mismatch" or "missing_required"
}

func (e *ValidationError) Error() string {
	if e.Reason == "missing_required" {
		return fmt.Sprintf("missing_required: %s", e.Path)
	}
	return fmt.Sprintf("type_mismatch: %s expected %s, received %s", e.Path, e.Expected, e.Received)
}

// Validate checks v against t. Coercion is performed only for scalar
// inputs, and only on the input side — callers validating a Step's
// return value should pass strict=true to disable coercion (spec 4.1:
// "Output validation is strict; no coercion.").
func Validate(v lisp.Value, t Type, strict bool) (lisp.Value, []Warning, error) {
	return validatePath(v, t, "$", strict)
}

func validatePath(v lisp.Value, t Type, path string, strict bool) (lisp.Value, []Warning, error) {
	if opt, ok := t.(Optional); ok {
		if isAbsent(v) {
			return lisp.Nil{}, nil, nil
		}
		return validatePath(v, opt.Wrapped, path, strict)
	}
	if isAbsent(v) {
		return nil, nil, &ValidationError{Path: path, Reason: "missing_required"}
	}

	switch tt := t.(type) {
	case Prim:
		return validatePrim(v, tt, path, strict)
	case ListType:
		items, ok := lisp.Items(v)
		if !ok {
			return nil, nil, &ValidationError{Path: path, Expected: t.String(), Received: typeName(v), Reason: "type_mismatch"}
		}
		out := make([]lisp.Value, len(items))
		var warns []Warning
		for i, it := range items {
			cv, w, err := validatePath(it, tt.Elem, fmt.Sprintf("%s[%d]", path, i), strict)
			if err != nil {
				return nil, nil, err
			}
			out[i] = cv
			warns = append(warns, w...)
		}
		return lisp.List{Items: out}, warns, nil
	case MapType:
		m, ok := v.(*lisp.Map)
		if !ok {
			return nil, nil, &ValidationError{Path: path, Expected: t.String(), Received: typeName(v), Reason: "type_mismatch"}
		}
		out := lisp.NewMap()
		var warns []Warning
		for _, f := range tt.Fields {
			fv, present := m.Get(lisp.Keyword(f.Name))
			if !present {
				fv, present = m.Get(lisp.Str(f.Name))
			}
			if !present {
				if _, isOpt := f.Type.(Optional); isOpt {
					continue
				}
				return nil, nil, &ValidationError{Path: path + "." + f.Name, Reason: "missing_required"}
			}
			cv, w, err := validatePath(fv, f.Type, path+"."+f.Name, strict)
			if err != nil {
				return nil, nil, err
			}
			out = out.Set(lisp.Keyword(f.Name), cv)
			warns = append(warns, w...)
		}
		// Extra fields are allowed and preserved.
		declared := map[string]bool{}
		for _, f := range tt.Fields {
			declared[f.Name] = true
		}
		m.Range(func(k, val lisp.Value) bool {
			name := keyName(k)
			if !declared[name] {
				out = out.Set(k, val)
			}
			return true
		})
		return out, warns, nil
	default:
		return nil, nil, &ValidationError{Path: path, Expected: t.String(), Received: typeName(v), Reason: "type_mismatch"}
	}
}

func keyName(k lisp.Value) string {
	switch t := k.(type) {
	case lisp.Keyword:
		return string(t)
	case lisp.Str:
		return string(t)
	default:
		return k.String()
	}
}

func isAbsent(v lisp.Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(lisp.Nil)
	return ok
}

func validatePrim(v lisp.Value, p Prim, path string, strict bool) (lisp.Value, []Warning, error) {
	switch p {
	case PrimAny:
		return v, nil, nil
	case PrimString:
		if s, ok := v.(lisp.Str); ok {
			return s, nil, nil
		}
		return nil, nil, &ValidationError{Path: path, Expected: p.String(), Received: typeName(v), Reason: "type_mismatch"}
	case PrimBool:
		if b, ok := v.(lisp.Bool); ok {
			return b, nil, nil
		}
		return nil, nil, &ValidationError{Path: path, Expected: p.String(), Received: typeName(v), Reason: "type_mismatch"}
	case PrimKeyword:
		if k, ok := v.(lisp.Keyword); ok {
			return k, nil, nil
		}
		return nil, nil, &ValidationError{Path: path, Expected: p.String(), Received: typeName(v), Reason: "type_mismatch"}
	case PrimMap:
		if m, ok := v.(*lisp.Map); ok {
			return m, nil, nil
		}
		return nil, nil, &ValidationError{Path: path, Expected: p.String(), Received: typeName(v), Reason: "type_mismatch"}
	case PrimInt:
		if i, ok := v.(lisp.Int); ok {
			return i, nil, nil
		}
		if !strict {
			if s, ok := v.(lisp.Str); ok {
				if iv, err := strconv.ParseInt(strings.TrimSpace(string(s)), 10, 64); err == nil {
					return lisp.Int(iv), []Warning{{Path: path, Message: "coerced string to int"}}, nil
				}
			}
		}
		return nil, nil, &ValidationError{Path: path, Expected: p.String(), Received: typeName(v), Reason: "type_mismatch"}
	case PrimFloat:
		if f, ok := v.(lisp.Float); ok {
			return f, nil, nil
		}
		if i, ok := v.(lisp.Int); ok {
			return lisp.Float(i), nil, nil
		}
		if !strict {
			if s, ok := v.(lisp.Str); ok {
				if fv, err := strconv.ParseFloat(strings.TrimSpace(string(s)), 64); err == nil {
					return lisp.Float(fv), []Warning{{Path: path, Message: "coerced string to float"}}, nil
				}
			}
		}
		return nil, nil, &ValidationError{Path: path, Expected: p.String(), Received: typeName(v), Reason: "type_mismatch"}
	default:
		return nil, nil, &ValidationError{Path: path, Expected: p.String(), Received: typeName(v), Reason: "type_mismatch"}
	}
}

func typeName(v lisp.Value) string {
	switch v.(type) {
	case lisp.Str:
		return "string"
	case lisp.Int:
		return "int"
	case lisp.Float:
		return "float"
	case lisp.Bool:
		return "bool"
	case lisp.Keyword:
		return "keyword"
	case lisp.Nil:
		return "nil"
	case lisp.List, lisp.Vector:
		return "list"
	case *lisp.Map:
		return "map"
	case *lisp.Set:
		return "set"
	default:
		return fmt.Sprintf("%T", v)
	}
}
