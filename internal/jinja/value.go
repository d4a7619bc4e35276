package jinja

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"go.starlark.net/syntax"
)

// Kind is the type of a literal value.
type Kind int

// Literal kinds.
const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
	KindNone
	KindList
	KindDict
)

// KindUnknown marks an expression whose type is only known at run time.
const KindUnknown Kind = -1

var kindNames = map[Kind]string{
	KindString: "string",
	KindInt:    "int",
	KindFloat:  "float",
	KindBool:   "bool",
	KindNone:   "none",
	KindList:   "list",
	KindDict:   "dict",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Item is one dict entry.
type Item struct {
	Key   string
	Value Value
}

// Value is a statically known Jinja value.
type Value struct {
	Kind  Kind
	Str   string // string value, or numeric source text
	Bool  bool
	List  []Value
	Items []Item
}

// String builds a string value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Bool builds a boolean value.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Eval evaluates expr if it is built only from literals.
func Eval(expr syntax.Expr) (Value, bool) {
	switch e := expr.(type) {
	case *syntax.Literal:
		switch e.Token {
		case syntax.STRING:
			s, ok := e.Value.(string)
			return Value{Kind: KindString, Str: s}, ok
		case syntax.INT:
			return Value{Kind: KindInt, Str: fmt.Sprint(e.Value)}, true
		case syntax.FLOAT:
			return Value{Kind: KindFloat, Str: e.Raw}, true
		}
	case *syntax.Ident:
		switch e.Name {
		case "true", "True":
			return Value{Kind: KindBool, Bool: true}, true
		case "false", "False":
			return Value{Kind: KindBool}, true
		case "none", "None":
			return Value{Kind: KindNone}, true
		}
	case *syntax.UnaryExpr:
		if e.Op == syntax.MINUS {
			if v, ok := Eval(e.X); ok && (v.Kind == KindInt || v.Kind == KindFloat) {
				v.Str = "-" + v.Str
				return v, true
			}
		}
	case *syntax.ParenExpr:
		return Eval(e.X)
	case *syntax.ListExpr:
		return evalList(e.List)
	case *syntax.TupleExpr:
		return evalList(e.List)
	case *syntax.DictExpr:
		v := Value{Kind: KindDict}
		for _, entry := range e.List {
			de, ok := entry.(*syntax.DictEntry)
			if !ok {
				return Value{}, false
			}
			key, ok := Eval(de.Key)
			if !ok || key.Kind != KindString {
				return Value{}, false
			}
			val, ok := Eval(de.Value)
			if !ok {
				return Value{}, false
			}
			v.Items = append(v.Items, Item{Key: key.Str, Value: val})
		}
		return v, true
	}
	return Value{}, false
}

func evalList(items []syntax.Expr) (Value, bool) {
	v := Value{Kind: KindList, List: make([]Value, 0, len(items))}
	for _, item := range items {
		iv, ok := Eval(item)
		if !ok {
			return Value{}, false
		}
		v.List = append(v.List, iv)
	}
	return v, true
}

// FromGo converts a decoded YAML value into a Value.
func FromGo(x any) (Value, bool) {
	switch t := x.(type) {
	case nil:
		return Value{Kind: KindNone}, true
	case string:
		return String(t), true
	case bool:
		return Value{Kind: KindBool, Bool: t}, true
	case int:
		return Value{Kind: KindInt, Str: strconv.Itoa(t)}, true
	case int64:
		return Value{Kind: KindInt, Str: strconv.FormatInt(t, 10)}, true
	case uint64:
		return Value{Kind: KindInt, Str: strconv.FormatUint(t, 10)}, true
	case float64:
		return Value{Kind: KindFloat, Str: strconv.FormatFloat(t, 'f', -1, 64)}, true
	case []any:
		v := Value{Kind: KindList}
		for _, item := range t {
			iv, ok := FromGo(item)
			if !ok {
				return Value{}, false
			}
			v.List = append(v.List, iv)
		}
		return v, true
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		v := Value{Kind: KindDict}
		for _, k := range keys {
			iv, ok := FromGo(t[k])
			if !ok {
				return Value{}, false
			}
			v.Items = append(v.Items, Item{Key: k, Value: iv})
		}
		return v, true
	default:
		return String(fmt.Sprint(t)), true
	}
}

// Go converts the value into plain Go types.
func (v Value) Go() any {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindInt:
		if n, err := strconv.ParseInt(v.Str, 10, 64); err == nil {
			return n
		}
		return v.Str
	case KindFloat:
		if f, err := strconv.ParseFloat(v.Str, 64); err == nil {
			return f
		}
		return v.Str
	case KindBool:
		return v.Bool
	case KindList:
		out := make([]any, len(v.List))
		for i, item := range v.List {
			out[i] = item.Go()
		}
		return out
	case KindDict:
		out := make(map[string]any, len(v.Items))
		for _, item := range v.Items {
			out[item.Key] = item.Value.Go()
		}
		return out
	default:
		return nil
	}
}

// SQL renders the value the way Jinja prints it into SQL text.
func (v Value) SQL() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindInt, KindFloat:
		return v.Str
	case KindBool:
		if v.Bool {
			return "True"
		}
		return "False"
	case KindNone:
		return "None"
	default:
		return v.repr()
	}
}

// repr renders the value as a Python literal.
func (v Value) repr() string {
	switch v.Kind {
	case KindString:
		return "'" + strings.ReplaceAll(v.Str, "'", `\'`) + "'"
	case KindList:
		parts := make([]string, len(v.List))
		for i, item := range v.List {
			parts[i] = item.repr()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindDict:
		parts := make([]string, len(v.Items))
		for i, item := range v.Items {
			parts[i] = String(item.Key).repr() + ": " + item.Value.repr()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return v.SQL()
	}
}

// JS renders the value as a JavaScript literal.
func (v Value) JS() string {
	switch v.Kind {
	case KindString:
		return jsString(v.Str)
	case KindInt, KindFloat:
		return v.Str
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindNone:
		return "null"
	case KindList:
		parts := make([]string, len(v.List))
		for i, item := range v.List {
			parts[i] = item.JS()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindDict:
		parts := make([]string, len(v.Items))
		for i, item := range v.Items {
			parts[i] = jsString(item.Key) + ": " + item.Value.JS()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return "null"
	}
}

// Truthy reports whether Jinja treats the value as true in a condition.
// Empty strings, zero, none and empty containers are false.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindString:
		return v.Str != ""
	case KindInt, KindFloat:
		f, err := strconv.ParseFloat(v.Str, 64)
		return err != nil || f != 0
	case KindBool:
		return v.Bool
	case KindList:
		return len(v.List) > 0
	case KindDict:
		return len(v.Items) > 0
	default:
		return false
	}
}

// Equal compares two values the way Jinja's == does for literals.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	return reflect.DeepEqual(v.Go(), o.Go())
}

// Contains evaluates x in v. It fails when v is not a container or x cannot be
// a member of it.
func (v Value) Contains(x Value) (bool, bool) {
	switch v.Kind {
	case KindList:
		for _, item := range v.List {
			if item.Equal(x) {
				return true, true
			}
		}
		return false, true
	case KindDict:
		for _, item := range v.Items {
			if x.Kind == KindString && item.Key == x.Str {
				return true, true
			}
		}
		return false, true
	case KindString:
		if x.Kind != KindString {
			return false, false
		}
		return strings.Contains(v.Str, x.Str), true
	}
	return false, false
}

// item looks up a dict key or a list index.
func (v Value) item(key Value) (Value, bool) {
	switch v.Kind {
	case KindDict:
		if key.Kind != KindString {
			return Value{}, false
		}
		for _, it := range v.Items {
			if it.Key == key.Str {
				return it.Value, true
			}
		}
	case KindList:
		if key.Kind != KindInt {
			return Value{}, false
		}
		i, err := strconv.Atoi(key.Str)
		if err != nil {
			return Value{}, false
		}
		if i < 0 {
			i += len(v.List)
		}
		if i >= 0 && i < len(v.List) {
			return v.List[i], true
		}
	}
	return Value{}, false
}

// Scalar returns the text of a string or number value.
func (v Value) Scalar() (string, bool) {
	switch v.Kind {
	case KindString, KindInt, KindFloat:
		return v.Str, true
	default:
		return "", false
	}
}

func jsString(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return strconv.Quote(s)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
