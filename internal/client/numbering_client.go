package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// NumberingClient is a client for the document numbering service. The core
// treats the generated number as an opaque unique string.
type NumberingClient struct {
	baseURL string
	client  *http.Client
}

// NewNumberingClient creates a new numbering service client.
func NewNumberingClient(baseURL string, timeout time.Duration) *NumberingClient {
	return &NumberingClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// GenerateNumberRequest represents the generate number request.
type GenerateNumberRequest struct {
	Prefix     string `json:"prefix"`
	EntityKind string `json:"entity_kind"`
	CompanyID  string `json:"company_id"`
}

// GenerateNumberResponse represents the generate number response.
type GenerateNumberResponse struct {
	Number string `json:"number"`
}

// Generate requests the next document number for an entity kind.
func (c *NumberingClient) Generate(ctx context.Context, prefix, entityKind, companyID string) (string, error) {
	body, err := json.Marshal(GenerateNumberRequest{
		Prefix:     prefix,
		EntityKind: entityKind,
		CompanyID:  companyID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal numbering request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/numbers", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build numbering request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call numbering service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("numbering service returned %d: %s", resp.StatusCode, string(b))
	}

	var out GenerateNumberResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode numbering response: %w", err)
	}
	if out.Number == "" {
		return "", fmt.Errorf("numbering service returned an empty number")
	}
	return out.Number, nil
}
