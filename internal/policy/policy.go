// Package policy evaluates decisioning rules against a snapshot of business
// facts. A rule's expression is a flat conjunction (whenAll) or disjunction
// (whenAny) of string conditions; there is no nesting and no user-defined
// functions.
//
// Condition forms:
//
//	"<field> <op> <value>"   with op one of == != < <= > >=
//	"<field> in [a, b, c]"
//
// Comparison coercion follows the original decisioning behavior: the literals
// true/false are compared as booleans for == and != only; otherwise the
// comparison is numeric when both sides parse as numbers, and lexicographic
// string comparison when they do not. An absent fact never satisfies a
// condition, whatever the operator.
package policy

import (
	"strconv"
	"strings"
)

// Facts is the snapshot of business facts a rule set is evaluated against.
type Facts map[string]any

// Expression is a flat list of conditions combined with AND (WhenAll) or OR
// (WhenAny). Exactly one of the two lists is expected to be populated.
type Expression struct {
	WhenAll []string `json:"whenAll,omitempty"`
	WhenAny []string `json:"whenAny,omitempty"`
}

// Rule is one decisioning rule. Rules are evaluated in ascending Priority
// order; ties are broken by Code so evaluation stays deterministic.
type Rule struct {
	Code       string
	Scope      string
	Priority   int
	Expression Expression
	Outcome    map[string]any
}

// Result is the outcome of evaluating a rule set.
type Result struct {
	Matched        bool
	Outcome        map[string]any
	EvaluatedCount int
}

// Action returns the outcome's action tag, or "" when nothing matched.
func (r Result) Action() string {
	if !r.Matched {
		return ""
	}
	if a, ok := r.Outcome["action"].(string); ok {
		return a
	}
	return ""
}

// Evaluate walks rules in order and returns the first match, with the rule's
// code merged into the outcome. First match wins; later rules are not
// evaluated and outcomes are never aggregated.
func Evaluate(rules []Rule, facts Facts) Result {
	for i, rule := range rules {
		if rule.Expression.Matches(facts) {
			outcome := make(map[string]any, len(rule.Outcome)+1)
			for k, v := range rule.Outcome {
				outcome[k] = v
			}
			outcome["ruleCode"] = rule.Code
			return Result{Matched: true, Outcome: outcome, EvaluatedCount: i + 1}
		}
	}
	return Result{EvaluatedCount: len(rules)}
}

// Matches reports whether the expression is satisfied by facts. An expression
// with no conditions matches nothing.
func (e Expression) Matches(facts Facts) bool {
	if len(e.WhenAll) > 0 {
		for _, cond := range e.WhenAll {
			if !evalCondition(cond, facts) {
				return false
			}
		}
		return true
	}
	if len(e.WhenAny) > 0 {
		for _, cond := range e.WhenAny {
			if evalCondition(cond, facts) {
				return true
			}
		}
	}
	return false
}

func evalCondition(cond string, facts Facts) bool {
	cond = strings.TrimSpace(cond)

	if field, items, ok := parseInList(cond); ok {
		value, present := facts[field]
		if !present || value == nil {
			return false
		}
		s := coerceString(value)
		for _, item := range items {
			if item == s {
				return true
			}
		}
		return false
	}

	parts := strings.SplitN(cond, " ", 3)
	if len(parts) != 3 {
		return false
	}
	field, op, literal := parts[0], parts[1], strings.TrimSpace(parts[2])

	value, present := facts[field]
	if !present || value == nil {
		return false
	}

	// Boolean literals are special-cased for equality only. Ordering
	// operators fall through to the generic comparison below, which treats
	// "true"/"false" as plain strings.
	if literal == "true" || literal == "false" {
		if op == "==" || op == "!=" {
			b, ok := value.(bool)
			if !ok {
				return false
			}
			want := literal == "true"
			if op == "==" {
				return b == want
			}
			return b != want
		}
	}

	lit := stripQuotes(literal)
	factNum, factIsNum := toNumber(value)
	litNum, litErr := strconv.ParseFloat(lit, 64)
	if factIsNum && litErr == nil {
		return compareNumbers(factNum, litNum, op)
	}
	return compareStrings(coerceString(value), lit, op)
}

// parseInList recognizes "<field> in [a, b, c]". List items are trimmed and
// unquoted; membership is tested against the string coercion of the fact.
func parseInList(cond string) (field string, items []string, ok bool) {
	idx := strings.Index(cond, " in [")
	if idx < 0 || !strings.HasSuffix(cond, "]") {
		return "", nil, false
	}
	field = strings.TrimSpace(cond[:idx])
	body := cond[idx+len(" in [") : len(cond)-1]
	if strings.TrimSpace(body) == "" {
		return field, nil, true
	}
	for _, raw := range strings.Split(body, ",") {
		items = append(items, stripQuotes(strings.TrimSpace(raw)))
	}
	return field, items, true
}

func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// toNumber reports whether the fact value is numeric. Booleans are not
// numbers here; a bool fact compared with an ordering operator ends up in the
// string path.
func toNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	case string:
		n, err := strconv.ParseFloat(x, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func coerceString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		if x {
			return "true"
		}
		return "false"
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return ""
	}
}

func compareNumbers(a, b float64, op string) bool {
	switch op {
	case "==":
		return a == b
	case "!=":
		return a != b
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	case ">=":
		return a >= b
	}
	return false
}

func compareStrings(a, b, op string) bool {
	switch op {
	case "==":
		return a == b
	case "!=":
		return a != b
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	case ">=":
		return a >= b
	}
	return false
}
