// Package functions holds the deterministic rewrite table for dbt helper macros.
//
// A helper invocation such as {{ dbt.type_string() }} or
// {{ dbt_utils.generate_surrogate_key(['a', 'b']) }} is looked up by name with
// its literal arguments and rewritten into BigQuery SQL text. Lookups never fail
// with an error: an unknown name or an argument shape the rule does not accept is
// reported as unresolved and the caller keeps the directive verbatim.
package functions

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Arg is one literal argument of a helper call.
// Strings are unquoted, numbers keep their source form.
type Arg struct {
	Text   string
	List   []string
	IsList bool
}

// S builds a scalar argument.
func S(text string) Arg { return Arg{Text: text} }

// L builds a list argument.
func L(items ...string) Arg { return Arg{List: items, IsList: true} }

// Rule is a single rewrite entry.
type Rule struct {
	Name        string
	Signature   string
	Description string
	Namespaces  []string
	rewrite     func(args []Arg) (string, bool)
}

// Table maps helper names to rewrite rules. It is immutable once built.
type Table struct {
	rules map[string]*Rule
}

// Namespaces a helper may be called through.
const (
	NamespaceDbt      = "dbt"
	NamespaceDbtUtils = "dbt_utils"
)

// Default returns the built-in rule table.
func Default() *Table {
	t := &Table{rules: make(map[string]*Rule)}
	for _, r := range builtinRules() {
		t.rules[r.Name] = r
	}
	return t
}

// Lookup rewrites the helper call name(args...).
// The name may carry a dbt. or dbt_utils. namespace.
func (t *Table) Lookup(name string, args []Arg) (string, bool) {
	r, ok := t.rule(name)
	if !ok {
		return "", false
	}
	return r.rewrite(args)
}

// Has reports whether name is a known helper, regardless of arguments.
func (t *Table) Has(name string) bool {
	_, ok := t.rule(name)
	return ok
}

func (t *Table) rule(name string) (*Rule, bool) {
	ns, base := splitNamespace(name)
	r, ok := t.rules[base]
	if !ok {
		return nil, false
	}
	if ns == "" {
		return r, true
	}
	for _, allowed := range r.Namespaces {
		if allowed == ns {
			return r, true
		}
	}
	return nil, false
}

// Rules returns all rules sorted by name.
func (t *Table) Rules() []*Rule {
	out := make([]*Rule, 0, len(t.rules))
	for _, r := range t.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func splitNamespace(name string) (string, string) {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

var datePartNames = map[string]string{
	"microsecond": "MICROSECOND",
	"millisecond": "MILLISECOND",
	"second":      "SECOND",
	"minute":      "MINUTE",
	"hour":        "HOUR",
	"day":         "DAY",
	"dayofweek":   "DAYOFWEEK",
	"dayofyear":   "DAYOFYEAR",
	"week":        "WEEK",
	"isoweek":     "ISOWEEK",
	"month":       "MONTH",
	"quarter":     "QUARTER",
	"year":        "YEAR",
	"isoyear":     "ISOYEAR",
}

// DatePart normalizes a date part literal to its BigQuery keyword.
func DatePart(s string) (string, bool) {
	part, ok := datePartNames[strings.ToLower(strings.TrimSpace(s))]
	return part, ok
}

func scalars(args []Arg, n int) ([]string, bool) {
	if len(args) != n {
		return nil, false
	}
	out := make([]string, n)
	for i, a := range args {
		if a.IsList || strings.TrimSpace(a.Text) == "" {
			return nil, false
		}
		out[i] = strings.TrimSpace(a.Text)
	}
	return out, true
}

func noArgs(expr string) func([]Arg) (string, bool) {
	return func(args []Arg) (string, bool) {
		if len(args) != 0 {
			return "", false
		}
		return expr, true
	}
}

func listArg(args []Arg) ([]string, bool) {
	if len(args) != 1 || !args[0].IsList || len(args[0].List) == 0 {
		return nil, false
	}
	return args[0].List, true
}

func surrogateKey(args []Arg) (string, bool) {
	cols, ok := listArg(args)
	if !ok {
		return "", false
	}
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprintf("CAST(%s AS STRING)", c)
	}
	return fmt.Sprintf("TO_HEX(MD5(CONCAT(%s)))", strings.Join(parts, ", ")), true
}

func builtinRules() []*Rule {
	both := []string{NamespaceDbt, NamespaceDbtUtils}
	utils := []string{NamespaceDbtUtils}

	return []*Rule{
		{Name: "type_string", Signature: "type_string()", Description: "string column type", Namespaces: both, rewrite: noArgs("STRING")},
		{Name: "type_int", Signature: "type_int()", Description: "integer column type", Namespaces: both, rewrite: noArgs("INT64")},
		{Name: "type_bigint", Signature: "type_bigint()", Description: "integer column type", Namespaces: both, rewrite: noArgs("INT64")},
		{Name: "type_float", Signature: "type_float()", Description: "floating point column type", Namespaces: both, rewrite: noArgs("FLOAT64")},
		{Name: "type_numeric", Signature: "type_numeric()", Description: "fixed point column type", Namespaces: both, rewrite: noArgs("NUMERIC")},
		{Name: "type_boolean", Signature: "type_boolean()", Description: "boolean column type", Namespaces: both, rewrite: noArgs("BOOL")},
		{Name: "type_timestamp", Signature: "type_timestamp()", Description: "timestamp column type", Namespaces: both, rewrite: noArgs("TIMESTAMP")},
		{Name: "current_timestamp", Signature: "current_timestamp()", Description: "current timestamp", Namespaces: both, rewrite: noArgs("CURRENT_TIMESTAMP()")},
		{
			Name: "generate_surrogate_key", Signature: "generate_surrogate_key([cols])",
			Description: "md5 hash over the string casts of the columns", Namespaces: utils,
			rewrite: surrogateKey,
		},
		{
			Name: "surrogate_key", Signature: "surrogate_key([cols])",
			Description: "legacy name of generate_surrogate_key", Namespaces: utils,
			rewrite: surrogateKey,
		},
		{
			Name: "hash", Signature: "hash(expr)", Description: "md5 hash of an expression", Namespaces: both,
			rewrite: func(args []Arg) (string, bool) {
				a, ok := scalars(args, 1)
				if !ok {
					return "", false
				}
				return fmt.Sprintf("TO_HEX(MD5(CAST(%s AS STRING)))", a[0]), true
			},
		},
		{
			Name: "concat", Signature: "concat([exprs])", Description: "string concatenation", Namespaces: both,
			rewrite: func(args []Arg) (string, bool) {
				items, ok := listArg(args)
				if !ok {
					return "", false
				}
				return fmt.Sprintf("CONCAT(%s)", strings.Join(items, ", ")), true
			},
		},
		{
			Name: "safe_cast", Signature: "safe_cast(expr, type)", Description: "cast returning NULL on failure", Namespaces: both,
			rewrite: func(args []Arg) (string, bool) {
				a, ok := scalars(args, 2)
				if !ok {
					return "", false
				}
				return fmt.Sprintf("SAFE_CAST(%s AS %s)", a[0], a[1]), true
			},
		},
		{
			Name: "cast", Signature: "cast(expr, type)", Description: "plain cast", Namespaces: both,
			rewrite: func(args []Arg) (string, bool) {
				a, ok := scalars(args, 2)
				if !ok {
					return "", false
				}
				return fmt.Sprintf("CAST(%s AS %s)", a[0], a[1]), true
			},
		},
		{
			Name: "dateadd", Signature: "dateadd(datepart, interval, from_date)", Description: "date arithmetic", Namespaces: both,
			rewrite: func(args []Arg) (string, bool) {
				a, ok := scalars(args, 3)
				if !ok {
					return "", false
				}
				part, ok := DatePart(a[0])
				if !ok {
					return "", false
				}
				return fmt.Sprintf("DATE_ADD(%s, INTERVAL %s %s)", a[2], a[1], part), true
			},
		},
		{
			Name: "datediff", Signature: "datediff(first_date, second_date, datepart)", Description: "difference between dates", Namespaces: both,
			rewrite: func(args []Arg) (string, bool) {
				a, ok := scalars(args, 3)
				if !ok {
					return "", false
				}
				part, ok := DatePart(a[2])
				if !ok {
					return "", false
				}
				return fmt.Sprintf("DATE_DIFF(%s, %s, %s)", a[1], a[0], part), true
			},
		},
		{
			Name: "date_trunc", Signature: "date_trunc(datepart, date)", Description: "truncate a date", Namespaces: both,
			rewrite: func(args []Arg) (string, bool) {
				a, ok := scalars(args, 2)
				if !ok {
					return "", false
				}
				part, ok := DatePart(a[0])
				if !ok {
					return "", false
				}
				return fmt.Sprintf("DATE_TRUNC(%s, %s)", a[1], part), true
			},
		},
		{
			Name: "last_day", Signature: "last_day(date, datepart)", Description: "last day of the period", Namespaces: both,
			rewrite: func(args []Arg) (string, bool) {
				a, ok := scalars(args, 2)
				if !ok {
					return "", false
				}
				part, ok := DatePart(a[1])
				if !ok {
					return "", false
				}
				return fmt.Sprintf("LAST_DAY(%s, %s)", a[0], part), true
			},
		},
		{
			Name: "split_part", Signature: "split_part(string, delimiter, part)", Description: "nth element of a split string", Namespaces: both,
			rewrite: func(args []Arg) (string, bool) {
				a, ok := scalars(args, 3)
				if !ok {
					return "", false
				}
				n, err := strconv.Atoi(a[2])
				if err != nil || n < 1 {
					return "", false
				}
				return fmt.Sprintf("SPLIT(%s, %s)[SAFE_OFFSET(%d)]", a[0], a[1], n-1), true
			},
		},
		{
			Name: "position", Signature: "position(substring, string)", Description: "1-based index of a substring", Namespaces: both,
			rewrite: func(args []Arg) (string, bool) {
				a, ok := scalars(args, 2)
				if !ok {
					return "", false
				}
				return fmt.Sprintf("STRPOS(%s, %s)", a[1], a[0]), true
			},
		},
		{
			Name: "listagg", Signature: "listagg(measure, delimiter)", Description: "string aggregation", Namespaces: both,
			rewrite: func(args []Arg) (string, bool) {
				a, ok := scalars(args, 2)
				if !ok {
					return "", false
				}
				return fmt.Sprintf("STRING_AGG(%s, %s)", a[0], a[1]), true
			},
		},
		{
			Name: "any_value", Signature: "any_value(expr)", Description: "arbitrary value aggregate", Namespaces: both,
			rewrite: func(args []Arg) (string, bool) {
				a, ok := scalars(args, 1)
				if !ok {
					return "", false
				}
				return fmt.Sprintf("ANY_VALUE(%s)", a[0]), true
			},
		},
		{
			Name: "bool_or", Signature: "bool_or(expr)", Description: "logical or aggregate", Namespaces: both,
			rewrite: func(args []Arg) (string, bool) {
				a, ok := scalars(args, 1)
				if !ok {
					return "", false
				}
				return fmt.Sprintf("LOGICAL_OR(%s)", a[0]), true
			},
		},
	}
}
