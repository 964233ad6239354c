// Package buildutil extracts Go values from buildtools AST nodes.
//
// Project files are Starlark; every helper here works on a *build.CallExpr
// such as project(...) or step(...).
package buildutil

import (
	"fmt"
	"strconv"

	"github.com/bazelbuild/buildtools/build"
)

// Attr returns the expression bound to a keyword argument.
func Attr(call *build.CallExpr, name string) (build.Expr, bool) {
	for _, arg := range call.List {
		assign, ok := arg.(*build.AssignExpr)
		if !ok {
			continue
		}
		lhs, ok := assign.LHS.(*build.Ident)
		if !ok || lhs.Name != name {
			continue
		}
		return assign.RHS, true
	}
	return nil, false
}

// String extracts a string keyword argument. If name is empty, the first
// positional string argument is returned instead.
// Returns "" when the argument is missing or not a string.
func String(call *build.CallExpr, name string) string {
	if name == "" {
		if len(call.List) == 0 {
			return ""
		}
		if str, ok := call.List[0].(*build.StringExpr); ok {
			return str.Value
		}
		return ""
	}
	rhs, ok := Attr(call, name)
	if !ok {
		return ""
	}
	if str, ok := rhs.(*build.StringExpr); ok {
		return str.Value
	}
	return ""
}

// Int extracts an integer keyword argument, accepting a leading minus.
// ok is false when the argument is missing or not an integer.
func Int(call *build.CallExpr, name string) (int64, bool) {
	rhs, found := Attr(call, name)
	if !found {
		return 0, false
	}
	v, ok := ExtractValue(rhs).(int64)
	return v, ok
}

// Bool extracts a boolean keyword argument (True/False).
// Returns false when the argument is missing or not a boolean.
func Bool(call *build.CallExpr, name string) bool {
	rhs, ok := Attr(call, name)
	if !ok {
		return false
	}
	ident, ok := rhs.(*build.Ident)
	return ok && ident.Name == "True"
}

// IsNone reports whether the keyword argument exists and is None.
func IsNone(call *build.CallExpr, name string) bool {
	rhs, ok := Attr(call, name)
	if !ok {
		return false
	}
	ident, ok := rhs.(*build.Ident)
	return ok && ident.Name == "None"
}

// StringList extracts a list-of-strings keyword argument.
// Returns nil if the argument is missing or not a list; non-string
// elements are skipped.
func StringList(call *build.CallExpr, name string) []string {
	rhs, ok := Attr(call, name)
	if !ok {
		return nil
	}
	list, ok := rhs.(*build.ListExpr)
	if !ok {
		return nil
	}
	result := make([]string, 0, len(list.List))
	for _, elem := range list.List {
		if str, ok := elem.(*build.StringExpr); ok {
			result = append(result, str.Value)
		}
	}
	return result
}

// Kwargs returns every keyword argument except the excluded names,
// converted with ExtractValue. Returns nil when nothing remains.
func Kwargs(call *build.CallExpr, exclude ...string) map[string]any {
	var out map[string]any
	for _, arg := range call.List {
		assign, ok := arg.(*build.AssignExpr)
		if !ok {
			continue
		}
		lhs, ok := assign.LHS.(*build.Ident)
		if !ok || contains(exclude, lhs.Name) {
			continue
		}
		if out == nil {
			out = make(map[string]any)
		}
		out[lhs.Name] = ExtractValue(assign.RHS)
	}
	return out
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// ExtractValue converts a literal expression to a Go value: string, int64,
// bool, nil (None), []any and map[string]any. Integers are always int64.
// Nested calls are returned as *build.CallExpr for the caller to interpret;
// any other expression is returned unchanged.
func ExtractValue(expr build.Expr) any {
	switch e := expr.(type) {
	case *build.StringExpr:
		return e.Value
	case *build.LiteralExpr:
		if val, err := strconv.ParseInt(e.Token, 0, 64); err == nil {
			return val
		}
		return e.Token
	case *build.UnaryExpr:
		if e.Op == "-" {
			if v, ok := ExtractValue(e.X).(int64); ok {
				return -v
			}
		}
		return expr
	case *build.Ident:
		switch e.Name {
		case "True":
			return true
		case "False":
			return false
		case "None":
			return nil
		default:
			return e.Name
		}
	case *build.ListExpr:
		result := make([]any, 0, len(e.List))
		for _, item := range e.List {
			result = append(result, ExtractValue(item))
		}
		return result
	case *build.DictExpr:
		result := make(map[string]any, len(e.List))
		for _, kv := range e.List {
			if keyStr, ok := kv.Key.(*build.StringExpr); ok {
				result[keyStr.Value] = ExtractValue(kv.Value)
			}
		}
		return result
	default:
		return expr
	}
}

// FuncName returns the function name of a simple call such as foo(...).
// Returns "" for method calls like foo.bar().
func FuncName(call *build.CallExpr) string {
	if ident, ok := call.X.(*build.Ident); ok {
		return ident.Name
	}
	return ""
}

// Calls returns the calls of a list keyword argument, in order. Elements
// that are not calls produce an error naming the offending element.
func Calls(call *build.CallExpr, name string) ([]*build.CallExpr, error) {
	rhs, ok := Attr(call, name)
	if !ok {
		return nil, nil
	}
	list, ok := rhs.(*build.ListExpr)
	if !ok {
		return nil, fmt.Errorf("%s: expected a list, got %T", name, rhs)
	}
	calls := make([]*build.CallExpr, 0, len(list.List))
	for i, elem := range list.List {
		c, ok := elem.(*build.CallExpr)
		if !ok {
			return nil, fmt.Errorf("%s[%d]: expected a call, got %T", name, i, elem)
		}
		calls = append(calls, c)
	}
	return calls, nil
}
