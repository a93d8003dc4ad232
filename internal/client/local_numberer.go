package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LocalNumberer generates document numbers in-process. Used when no numbering
// service is configured; numbers are unique but not gapless.
type LocalNumberer struct{}

// NewLocalNumberer creates a new LocalNumberer.
func NewLocalNumberer() *LocalNumberer {
	return &LocalNumberer{}
}

// Generate produces a number like REQ-2026-4F9A2C1B.
func (n *LocalNumberer) Generate(_ context.Context, prefix, _, _ string) (string, error) {
	suffix := strings.ToUpper(uuid.NewString()[:8])
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UTC().Year(), suffix), nil
}
