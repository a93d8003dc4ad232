package service

import (
	"context"
	"time"

	"github.com/pesio-ai/be-p2p-core/internal/database"
	"github.com/pesio-ai/be-p2p-core/internal/logger"
	"github.com/pesio-ai/be-p2p-core/internal/policy"
	"github.com/pesio-ai/be-p2p-core/internal/repository"
)

// PolicyService evaluates a fact snapshot against the stored rules for a
// scope. Rules are loaded ordered by priority; the first match wins.
type PolicyService struct {
	rules PolicyStore
	log   *logger.Logger
}

// NewPolicyService creates a new PolicyService.
func NewPolicyService(rules PolicyStore, log *logger.Logger) *PolicyService {
	return &PolicyService{rules: rules, log: log}
}

// Evaluate loads the active rules for scope valid now and evaluates facts
// against them.
func (s *PolicyService) Evaluate(ctx context.Context, q database.Querier, companyID string, scope repository.EntityType, facts policy.Facts) (policy.Result, error) {
	rules, err := s.rules.ListActiveRules(ctx, q, companyID, scope, time.Now())
	if err != nil {
		return policy.Result{}, err
	}

	result := policy.Evaluate(rules, facts)

	event := s.log.Debug().
		Str("scope", string(scope)).
		Int("evaluated", result.EvaluatedCount).
		Bool("matched", result.Matched)
	if result.Matched {
		if code, ok := result.Outcome["ruleCode"].(string); ok {
			event = event.Str("rule_code", code)
		}
	}
	event.Msg("policy rules evaluated")

	return result, nil
}
