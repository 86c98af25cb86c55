package gateway_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/errandlabs/errand/pkg/gateway"
	"github.com/errandlabs/errand/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPGateway_Send(t *testing.T) {
	t.Parallel()

	var receivedKey string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedKey = r.Header.Get("Idempotency-Key")

		var req gateway.Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "find my next dog walk", req.Text)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(gateway.Response{
			Success:   true,
			Summary:   "Found 2 upcoming dog walks",
			Data:      map[string]any{"events": []any{"Mon 8am", "Wed 8am"}},
			ToolsUsed: []string{"calendar.list_events"},
		})
	}))
	defer server.Close()

	g := gateway.NewHTTPGateway(map[models.Domain]string{
		models.DomainCalendar: server.URL,
	})

	resp, err := g.Send(t.Context(), gateway.Request{
		Domain:         models.DomainCalendar,
		Text:           "find my next dog walk",
		IdempotencyKey: "wf-1:step-1:0",
	})

	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "Found 2 upcoming dog walks", resp.Summary)
	assert.Equal(t, "wf-1:step-1:0", receivedKey)
}

func TestHTTPGateway_Send_UnknownDomain(t *testing.T) {
	t.Parallel()

	g := gateway.NewHTTPGateway(map[models.Domain]string{})

	_, err := g.Send(t.Context(), gateway.Request{Domain: models.DomainEmail, Text: "send it"})
	require.Error(t, err)

	var agentErr *gateway.Error
	require.ErrorAs(t, err, &agentErr)
	assert.Equal(t, gateway.KindValidation, agentErr.Kind)
}

func TestHTTPGateway_Send_StatusMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		status   int
		wantKind gateway.ErrorKind
	}{
		{"server error is transient", http.StatusInternalServerError, gateway.KindTransient},
		{"rate limit is transient", http.StatusTooManyRequests, gateway.KindTransient},
		{"unauthorized is auth", http.StatusUnauthorized, gateway.KindAuth},
		{"forbidden is auth", http.StatusForbidden, gateway.KindAuth},
		{"bad request is validation", http.StatusBadRequest, gateway.KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			g := gateway.NewHTTPGateway(map[models.Domain]string{models.DomainEmail: server.URL})

			_, err := g.Send(t.Context(), gateway.Request{Domain: models.DomainEmail, Text: "send it"})
			require.Error(t, err)

			var agentErr *gateway.Error
			require.ErrorAs(t, err, &agentErr)
			assert.Equal(t, tt.wantKind, agentErr.Kind)
			assert.Equal(t, tt.wantKind == gateway.KindTransient, agentErr.Retryable())
		})
	}
}

func TestHTTPGateway_Send_RejectsMalformedEnvelope(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok": true}`)) // missing success and summary
	}))
	defer server.Close()

	g := gateway.NewHTTPGateway(map[models.Domain]string{models.DomainEmail: server.URL})

	_, err := g.Send(t.Context(), gateway.Request{Domain: models.DomainEmail, Text: "send it"})
	require.Error(t, err)

	var agentErr *gateway.Error
	require.ErrorAs(t, err, &agentErr)
	assert.Equal(t, gateway.KindValidation, agentErr.Kind)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	authErr := gateway.NewError(gateway.KindAuth, "token expired")
	assert.Same(t, authErr, gateway.Classify(authErr))
	assert.False(t, gateway.Classify(authErr).Retryable())

	plain := errors.New("connection refused")
	assert.Equal(t, gateway.KindTransient, gateway.Classify(plain).Kind)
	assert.True(t, gateway.Classify(plain).Retryable())
}
