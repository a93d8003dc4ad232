package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate_FirstMatchWins(t *testing.T) {
	rules := []Rule{
		{Code: "R1", Priority: 10, Expression: Expression{WhenAll: []string{"amount > 1000"}},
			Outcome: map[string]any{"action": "AUTO_REJECT"}},
		{Code: "R2", Priority: 20, Expression: Expression{WhenAll: []string{"amount > 100"}},
			Outcome: map[string]any{"action": "MANUAL_REVIEW"}},
	}

	result := Evaluate(rules, Facts{"amount": 5000.0})
	require.True(t, result.Matched)
	assert.Equal(t, "AUTO_REJECT", result.Action())
	assert.Equal(t, "R1", result.Outcome["ruleCode"])
	assert.Equal(t, 1, result.EvaluatedCount)
}

func TestEvaluate_NoMatch(t *testing.T) {
	rules := []Rule{
		{Code: "R1", Expression: Expression{WhenAll: []string{"amount > 1000"}},
			Outcome: map[string]any{"action": "AUTO_REJECT"}},
	}

	result := Evaluate(rules, Facts{"amount": 50.0})
	assert.False(t, result.Matched)
	assert.Equal(t, "", result.Action())
	assert.Equal(t, 1, result.EvaluatedCount)
	assert.Nil(t, result.Outcome)
}

func TestEvaluate_OutcomeNotMutated(t *testing.T) {
	outcome := map[string]any{"action": "AUTO_APPROVE"}
	rules := []Rule{
		{Code: "R1", Expression: Expression{WhenAll: []string{"x == 1"}}, Outcome: outcome},
	}

	result := Evaluate(rules, Facts{"x": 1})
	require.True(t, result.Matched)
	assert.Equal(t, "R1", result.Outcome["ruleCode"])
	_, tainted := outcome["ruleCode"]
	assert.False(t, tainted)
}

func TestMatches_WhenAllRequiresEveryCondition(t *testing.T) {
	expr := Expression{WhenAll: []string{"amount > 100", "vendorStatus == 'APPROVED'"}}

	assert.True(t, expr.Matches(Facts{"amount": 200.0, "vendorStatus": "APPROVED"}))
	assert.False(t, expr.Matches(Facts{"amount": 200.0, "vendorStatus": "BLOCKED"}))
	assert.False(t, expr.Matches(Facts{"amount": 50.0, "vendorStatus": "APPROVED"}))
}

func TestMatches_WhenAnyRequiresOneCondition(t *testing.T) {
	expr := Expression{WhenAny: []string{"sanctionsHit == true", "riskScore > 80"}}

	assert.True(t, expr.Matches(Facts{"sanctionsHit": true, "riskScore": 10}))
	assert.True(t, expr.Matches(Facts{"sanctionsHit": false, "riskScore": 90}))
	assert.False(t, expr.Matches(Facts{"sanctionsHit": false, "riskScore": 10}))
}

func TestMatches_EmptyExpressionMatchesNothing(t *testing.T) {
	assert.False(t, Expression{}.Matches(Facts{"anything": 1}))
}

func TestEvalCondition_AbsentFactNeverMatches(t *testing.T) {
	facts := Facts{"present": 1, "nilValue": nil}

	assert.False(t, evalCondition("missing == 1", facts))
	assert.False(t, evalCondition("missing != 1", facts))
	assert.False(t, evalCondition("nilValue == 1", facts))
	assert.False(t, evalCondition("missing in [1, 2]", facts))
}

func TestEvalCondition_NumericComparison(t *testing.T) {
	facts := Facts{"amount": 1500.0, "count": 3}

	assert.True(t, evalCondition("amount > 1000", facts))
	assert.True(t, evalCondition("amount >= 1500", facts))
	assert.False(t, evalCondition("amount < 1500", facts))
	assert.True(t, evalCondition("amount <= 1500", facts))
	assert.True(t, evalCondition("amount == 1500", facts))
	assert.True(t, evalCondition("amount != 1501", facts))
	assert.True(t, evalCondition("count == 3", facts))
}

func TestEvalCondition_NumericStringFactComparesNumerically(t *testing.T) {
	// A fact arriving as "10" against literal 9 compares as numbers, not
	// lexicographically ("10" < "9" as strings).
	facts := Facts{"score": "10"}

	assert.True(t, evalCondition("score > 9", facts))
	assert.False(t, evalCondition("score < 9", facts))
}

func TestEvalCondition_StringComparison(t *testing.T) {
	facts := Facts{"status": "APPROVED"}

	assert.True(t, evalCondition("status == 'APPROVED'", facts))
	assert.True(t, evalCondition("status == \"APPROVED\"", facts))
	assert.True(t, evalCondition("status != 'BLOCKED'", facts))
	assert.False(t, evalCondition("status == 'BLOCKED'", facts))
	// Lexicographic ordering applies when neither side is numeric.
	assert.True(t, evalCondition("status < 'B'", facts))
}

func TestEvalCondition_BooleanLiteralEquality(t *testing.T) {
	facts := Facts{"sanctionsHit": true, "verified": false, "flag": "true"}

	assert.True(t, evalCondition("sanctionsHit == true", facts))
	assert.False(t, evalCondition("sanctionsHit == false", facts))
	assert.True(t, evalCondition("sanctionsHit != false", facts))
	assert.True(t, evalCondition("verified == false", facts))

	// The boolean special case requires a genuine bool fact.
	assert.False(t, evalCondition("flag == true", facts))
}

func TestEvalCondition_BooleanOrderingFallsThroughToStrings(t *testing.T) {
	facts := Facts{"flag": true}

	// "true" vs "true" lexicographically.
	assert.True(t, evalCondition("flag >= true", facts))
	assert.False(t, evalCondition("flag > true", facts))
}

func TestEvalCondition_InList(t *testing.T) {
	facts := Facts{"status": "EXCEPTION", "code": 42}

	assert.True(t, evalCondition("status in [MATCHED, EXCEPTION]", facts))
	assert.True(t, evalCondition("status in ['MATCHED', 'EXCEPTION']", facts))
	assert.False(t, evalCondition("status in [MATCHED, PAID]", facts))
	assert.True(t, evalCondition("code in [41, 42, 43]", facts))
	assert.False(t, evalCondition("status in []", facts))
}

func TestEvalCondition_Malformed(t *testing.T) {
	facts := Facts{"x": 1}

	assert.False(t, evalCondition("x", facts))
	assert.False(t, evalCondition("x ==", facts))
	assert.False(t, evalCondition("", facts))
	assert.False(t, evalCondition("x ?? 1", facts))
}
