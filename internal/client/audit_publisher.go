package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-p2p-core/internal/service"
)

// AuditPublisher publishes lifecycle transition events to NATS for the audit
// trail consumer.
//
// Subject convention: audit.p2p.<action_code>
//
// All publish operations are non-fatal. Errors are logged but never propagated
// to the caller, so audit failures never interrupt lifecycle operations.
type AuditPublisher struct {
	nc  *nats.Conn
	log zerolog.Logger
}

// AuditMessage is the JSON schema published to NATS.
type AuditMessage struct {
	CompanyID  string         `json:"company_id"`
	ActorID    *string        `json:"actor_id,omitempty"`
	ActorType  string         `json:"actor_type"`
	ActionCode string         `json:"action_code"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// NewAuditPublisher creates a publisher backed by the given NATS connection.
// A nil connection yields a publisher that drops every event.
func NewAuditPublisher(nc *nats.Conn, log zerolog.Logger) *AuditPublisher {
	return &AuditPublisher{nc: nc, log: log}
}

// Record publishes one audit event. Subject: audit.p2p.<action_code>.
func (p *AuditPublisher) Record(ctx context.Context, event service.AuditEvent) {
	if p.nc == nil {
		return
	}

	msg := &AuditMessage{
		CompanyID:  event.CompanyID,
		ActorID:    event.ActorID,
		ActorType:  event.ActorType,
		ActionCode: event.ActionCode,
		EntityType: string(event.EntityType),
		EntityID:   event.EntityID,
		Payload:    event.Payload,
		OccurredAt: time.Now().UTC(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		p.log.Warn().Err(err).Str("action_code", event.ActionCode).Msg("audit: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("audit.p2p.%s", strings.ToLower(event.ActionCode))
	if err := p.nc.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("entity_id", event.EntityID).
			Msg("audit: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("entity_id", event.EntityID).
		Msg("audit: event published")
}
