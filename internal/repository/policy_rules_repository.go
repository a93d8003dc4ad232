package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pesio-ai/be-p2p-core/internal/database"
	"github.com/pesio-ai/be-p2p-core/internal/errors"
	"github.com/pesio-ai/be-p2p-core/internal/policy"
)

// PolicyRulesRepository reads stored decisioning rules. Rule lifecycle is
// managed externally; this repository only serves evaluation.
type PolicyRulesRepository struct{}

// NewPolicyRulesRepository creates a new PolicyRulesRepository.
func NewPolicyRulesRepository() *PolicyRulesRepository {
	return &PolicyRulesRepository{}
}

// ListActiveRules returns active rules for a scope whose validity window
// covers the given instant, ordered by priority ascending with code as the
// tie-break so evaluation order is stable.
func (r *PolicyRulesRepository) ListActiveRules(ctx context.Context, q database.Querier, companyID string, scope EntityType, at time.Time) ([]policy.Rule, error) {
	query := `
		SELECT code, scope, priority, expression, outcome
		FROM policy_rules
		WHERE company_id = $1
		  AND scope = $2
		  AND is_active = TRUE
		  AND (valid_from IS NULL OR valid_from <= $3)
		  AND (valid_to IS NULL OR valid_to >= $3)
		ORDER BY priority ASC, code ASC
	`

	rows, err := q.Query(ctx, query, companyID, scope, at)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list policy rules")
	}
	defer rows.Close()

	var rules []policy.Rule
	for rows.Next() {
		var (
			rule           policy.Rule
			expressionJSON []byte
			outcomeJSON    []byte
		)
		if err := rows.Scan(&rule.Code, &rule.Scope, &rule.Priority, &expressionJSON, &outcomeJSON); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan policy rule")
		}
		if err := json.Unmarshal(expressionJSON, &rule.Expression); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal rule expression")
		}
		if outcomeJSON != nil {
			if err := json.Unmarshal(outcomeJSON, &rule.Outcome); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal rule outcome")
			}
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
