package translate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/robert-malhotra/stac-composite/internal/composite"
)

// Predicate reports whether a record's properties satisfy a filter.
type Predicate func(props map[string]any) bool

// CompileCQL2Filter compiles a CQL2-JSON filter expression into a predicate
// over record properties. A nil filter matches everything.
//
// Supported operators:
//   - "=", "<>", "<", "<=", ">", ">=" : comparisons of a property with a literal
//   - "in" : value in list
//   - "between" : inclusive range
//   - "isNull" : property missing or null
//   - "and", "or", "not" : logical combinations
//
// Numbers compare numerically and strings lexically. A comparison against a
// missing property is false.
func CompileCQL2Filter(filter any) (Predicate, error) {
	if filter == nil {
		return func(map[string]any) bool { return true }, nil
	}

	filterMap, ok := filter.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: filter must be a JSON object", ErrUnsupportedFilter)
	}

	return compileExpression(filterMap)
}

// FilterRecords returns the records whose properties satisfy pred, in order.
func FilterRecords(records []composite.Record, pred Predicate) []composite.Record {
	out := make([]composite.Record, 0, len(records))
	for _, rec := range records {
		if pred(rec.Properties) {
			out = append(out, rec)
		}
	}
	return out
}

func compileExpression(expr map[string]any) (Predicate, error) {
	opVal, ok := expr["op"]
	if !ok {
		return nil, fmt.Errorf("%w: missing 'op' field", ErrUnsupportedFilter)
	}

	op, ok := opVal.(string)
	if !ok {
		return nil, fmt.Errorf("%w: 'op' must be a string", ErrUnsupportedFilter)
	}

	argsVal, ok := expr["args"]
	if !ok {
		return nil, fmt.Errorf("%w: missing 'args' field", ErrUnsupportedFilter)
	}

	args, ok := argsVal.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: 'args' must be an array", ErrUnsupportedFilter)
	}

	switch op := strings.ToLower(op); op {
	case "=", "eq", "<>", "<", "<=", ">", ">=":
		return compileComparison(op, args)
	case "in":
		return compileIn(args)
	case "between":
		return compileBetween(args)
	case "isnull":
		return compileIsNull(args)
	case "and", "or":
		return compileLogical(op, args)
	case "not":
		return compileNot(args)
	default:
		return nil, fmt.Errorf("%w: operator '%s' not supported", ErrUnsupportedFilter, op)
	}
}

// compileComparison handles [{"property": "name"}, value].
func compileComparison(op string, args []any) (Predicate, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("%w: '%s' operator requires exactly 2 arguments", ErrUnsupportedFilter, op)
	}

	propName, err := extractPropertyName(args[0])
	if err != nil {
		return nil, err
	}
	literal, err := extractLiteral(args[1])
	if err != nil {
		return nil, err
	}

	return func(props map[string]any) bool {
		v, ok := props[propName]
		if !ok || v == nil {
			return false
		}
		cmp, ok := compareValues(v, literal)
		if !ok {
			// Mismatched types are only ever unequal.
			return op == "<>"
		}
		switch op {
		case "=", "eq":
			return cmp == 0
		case "<>":
			return cmp != 0
		case "<":
			return cmp < 0
		case "<=":
			return cmp <= 0
		case ">":
			return cmp > 0
		default:
			return cmp >= 0
		}
	}, nil
}

// compileIn handles [{"property": "name"}, [value1, value2, ...]].
func compileIn(args []any) (Predicate, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("%w: 'in' operator requires exactly 2 arguments", ErrUnsupportedFilter)
	}

	propName, err := extractPropertyName(args[0])
	if err != nil {
		return nil, err
	}

	valueList, ok := args[1].([]any)
	if !ok {
		return nil, fmt.Errorf("%w: second argument of 'in' must be an array", ErrUnsupportedFilter)
	}
	literals := make([]any, len(valueList))
	for i, v := range valueList {
		if literals[i], err = extractLiteral(v); err != nil {
			return nil, err
		}
	}

	return func(props map[string]any) bool {
		v, ok := props[propName]
		if !ok || v == nil {
			return false
		}
		for _, lit := range literals {
			if cmp, ok := compareValues(v, lit); ok && cmp == 0 {
				return true
			}
		}
		return false
	}, nil
}

// compileBetween handles [{"property": "name"}, low, high].
func compileBetween(args []any) (Predicate, error) {
	if len(args) != 3 {
		return nil, fmt.Errorf("%w: 'between' operator requires exactly 3 arguments", ErrUnsupportedFilter)
	}

	propName, err := extractPropertyName(args[0])
	if err != nil {
		return nil, err
	}
	low, err := extractLiteral(args[1])
	if err != nil {
		return nil, err
	}
	high, err := extractLiteral(args[2])
	if err != nil {
		return nil, err
	}

	return func(props map[string]any) bool {
		v, ok := props[propName]
		if !ok || v == nil {
			return false
		}
		lo, okLo := compareValues(v, low)
		hi, okHi := compareValues(v, high)
		return okLo && okHi && lo >= 0 && hi <= 0
	}, nil
}

func compileIsNull(args []any) (Predicate, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("%w: 'isNull' operator requires exactly 1 argument", ErrUnsupportedFilter)
	}

	propName, err := extractPropertyName(args[0])
	if err != nil {
		return nil, err
	}

	return func(props map[string]any) bool {
		v, ok := props[propName]
		return !ok || v == nil
	}, nil
}

func compileLogical(op string, args []any) (Predicate, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("%w: '%s' operator requires at least 2 arguments", ErrUnsupportedFilter, op)
	}

	preds := make([]Predicate, len(args))
	for i, arg := range args {
		subExpr, ok := arg.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: '%s' arguments must be filter expressions", ErrUnsupportedFilter, op)
		}
		pred, err := compileExpression(subExpr)
		if err != nil {
			return nil, err
		}
		preds[i] = pred
	}

	if op == "and" {
		return func(props map[string]any) bool {
			for _, p := range preds {
				if !p(props) {
					return false
				}
			}
			return true
		}, nil
	}
	return func(props map[string]any) bool {
		for _, p := range preds {
			if p(props) {
				return true
			}
		}
		return false
	}, nil
}

func compileNot(args []any) (Predicate, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("%w: 'not' operator requires exactly 1 argument", ErrUnsupportedFilter)
	}
	subExpr, ok := args[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: 'not' argument must be a filter expression", ErrUnsupportedFilter)
	}
	pred, err := compileExpression(subExpr)
	if err != nil {
		return nil, err
	}
	return func(props map[string]any) bool { return !pred(props) }, nil
}

// extractPropertyName extracts the property name from a property reference.
// Expected format: {"property": "name"}
func extractPropertyName(arg any) (string, error) {
	propMap, ok := arg.(map[string]any)
	if !ok {
		return "", fmt.Errorf("%w: first argument must be a property reference", ErrUnsupportedFilter)
	}

	propVal, ok := propMap["property"]
	if !ok {
		return "", fmt.Errorf("%w: missing 'property' field in property reference", ErrUnsupportedFilter)
	}

	propName, ok := propVal.(string)
	if !ok || propName == "" {
		return "", fmt.Errorf("%w: property name must be a non-empty string", ErrUnsupportedFilter)
	}

	return propName, nil
}

// extractLiteral normalizes a literal: numbers become float64; strings and
// booleans are kept.
func extractLiteral(arg any) (any, error) {
	switch v := arg.(type) {
	case string, bool:
		return v, nil
	default:
		if f, ok := toNumber(v); ok {
			return f, nil
		}
		return nil, fmt.Errorf("%w: unsupported literal %v (%T)", ErrUnsupportedFilter, arg, arg)
	}
}

// compareValues compares a property value with a literal. ok is false when
// the two are not comparable.
func compareValues(v, literal any) (cmp int, ok bool) {
	switch lit := literal.(type) {
	case float64:
		f, ok := toNumber(v)
		if !ok {
			return 0, false
		}
		switch {
		case f < lit:
			return -1, true
		case f > lit:
			return 1, true
		default:
			return 0, true
		}
	case string:
		s, ok := v.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(s, lit), true
	case bool:
		b, ok := v.(bool)
		if !ok {
			return 0, false
		}
		if b == lit {
			return 0, true
		}
		if !b {
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
