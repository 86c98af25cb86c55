package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/errandlabs/errand/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

const maxResponseBodySize = 1024 * 1024 // 1MB max agent response

// responseEnvelopeSchema validates the structured envelope every remote
// agent must return. Payload contents stay opaque; only the envelope shape
// is enforced at this boundary.
var responseEnvelopeSchema = map[string]any{
	"type":     "object",
	"required": []any{"success", "summary"},
	"properties": map[string]any{
		"success":    map[string]any{"type": "boolean"},
		"summary":    map[string]any{"type": "string"},
		"data":       map[string]any{"type": "object"},
		"tools_used": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"error": map[string]any{
			"type":     "object",
			"required": []any{"kind", "message"},
			"properties": map[string]any{
				"kind": map[string]any{
					"type": "string",
					"enum": []any{"transient", "auth", "validation", "not_found", "ambiguous"},
				},
				"message": map[string]any{"type": "string"},
			},
		},
	},
}

// HTTPGateway dispatches requests to per-domain agent endpoints over HTTP.
type HTTPGateway struct {
	endpoints map[models.Domain]string
	client    *http.Client
}

// NewHTTPGateway creates a gateway routing each domain to its endpoint URL.
// Per-dispatch timeouts come from the caller's context, not the client.
func NewHTTPGateway(endpoints map[models.Domain]string) *HTTPGateway {
	return &HTTPGateway{
		endpoints: endpoints,
		client:    &http.Client{},
	}
}

// Send posts the request to the agent endpoint for its domain and validates
// the response envelope before handing it back.
func (g *HTTPGateway) Send(ctx context.Context, req Request) (*Response, error) {
	endpoint, ok := g.endpoints[req.Domain]
	if !ok {
		return nil, NewError(KindValidation, fmt.Sprintf("no agent endpoint configured for domain %q", req.Domain))
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal agent request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build agent request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, Classify(err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, Classify(err)
	}

	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return nil, NewError(KindTransient, fmt.Sprintf("agent returned status %d", resp.StatusCode))
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, NewError(KindAuth, fmt.Sprintf("agent returned status %d", resp.StatusCode))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, NewError(KindValidation, fmt.Sprintf("agent returned status %d", resp.StatusCode))
	}

	if err := validateEnvelope(payload); err != nil {
		return nil, NewError(KindValidation, "malformed agent response: "+err.Error())
	}

	var agentResp Response
	if err := json.Unmarshal(payload, &agentResp); err != nil {
		return nil, NewError(KindValidation, "malformed agent response: "+err.Error())
	}

	return &agentResp, nil
}

func validateEnvelope(payload []byte) error {
	schemaLoader := gojsonschema.NewGoLoader(responseEnvelopeSchema)
	dataLoader := gojsonschema.NewBytesLoader(payload)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		descriptions := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			descriptions = append(descriptions, desc.String())
		}

		return fmt.Errorf("validation errors: %s", strings.Join(descriptions, "; "))
	}

	return nil
}
