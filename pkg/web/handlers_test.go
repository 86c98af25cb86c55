package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/errandlabs/errand/pkg/config"
	"github.com/errandlabs/errand/pkg/gateway"
	"github.com/errandlabs/errand/pkg/mocks"
	"github.com/errandlabs/errand/pkg/models"
	"github.com/errandlabs/errand/pkg/orchestrator"
	"github.com/errandlabs/errand/pkg/planning"
	"github.com/errandlabs/errand/pkg/store/memory"
	"github.com/errandlabs/errand/pkg/web"
)

// stubGateway answers every domain with a canned success.
type stubGateway struct{}

func (stubGateway) Send(_ context.Context, req gateway.Request) (*gateway.Response, error) {
	switch req.Domain {
	case models.DomainContacts:
		return &gateway.Response{
			Success: true,
			Data:    map[string]any{"email": "john@example.com"},
			Summary: "Found John.",
		}, nil
	default:
		return &gateway.Response{Success: true, Summary: "Done with " + string(req.Domain) + "."}, nil
	}
}

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	cfg := config.Default()
	st := memory.NewStore()

	engine := orchestrator.New(
		cfg,
		st,
		stubGateway{},
		planning.NewRulePlanner(cfg.ConfidenceThreshold),
		planning.NewRuleAnalyzer(),
		planning.NewRuleClassifier(),
		mocks.NoopEventBus{},
		nil,
	)

	handlers := web.NewAPIHandlers(engine, st, validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()

	app.Post("/sessions/:sessionId/messages", handlers.PostSessionMessage)

	w := app.Group("/workflows")
	w.Get("/:id", handlers.GetWorkflow)
	w.Post("/:id/confirm", handlers.ConfirmWorkflow)
	w.Post("/:id/deny", handlers.DenyWorkflow)
	w.Post("/:id/resume", handlers.ResumeWorkflow)
	w.Delete("/:id", handlers.CancelWorkflow)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, payload any) (*http.Response, []byte) {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, raw
}

func TestPostSessionMessageReadRequest(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	resp, body := postJSON(t, app, "/sessions/s1/messages", web.SessionMessageRequest{
		UserID: "u1",
		Text:   "Check my email for anything urgent",
	})

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var response models.Response
	require.NoError(t, json.Unmarshal(body, &response))

	assert.NotEmpty(t, response.WorkflowID)
	assert.Contains(t, response.Message, "Done with email")
	assert.False(t, response.NeedsConfirmation)
}

func TestPostSessionMessageValidation(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	resp, _ := postJSON(t, app, "/sessions/s1/messages", map[string]string{"user_id": "u1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req := httptest.NewRequest(http.MethodPost, "/sessions/s1/messages", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")

	raw, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestConfirmFlowOverHTTP(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	resp, body := postJSON(t, app, "/sessions/s1/messages", web.SessionMessageRequest{
		UserID: "u1",
		Text:   "Email the quarterly report to John",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var response models.Response
	require.NoError(t, json.Unmarshal(body, &response))
	require.True(t, response.NeedsConfirmation)

	resp, body = postJSON(t, app, "/workflows/"+response.WorkflowID+"/confirm", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var confirmResponse models.Response
	require.NoError(t, json.Unmarshal(body, &confirmResponse))
	assert.False(t, confirmResponse.NeedsConfirmation)

	req := httptest.NewRequest(http.MethodGet, "/workflows/"+response.WorkflowID, nil)
	getResp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	raw, err := io.ReadAll(getResp.Body)
	require.NoError(t, err)

	var status web.WorkflowStatusResponse
	require.NoError(t, json.Unmarshal(raw, &status))
	assert.Equal(t, models.WorkflowStatusCompleted, status.Status)
	assert.Equal(t, response.WorkflowID, status.WorkflowID)
	assert.NotEmpty(t, status.Message)

	// A second confirm hits a workflow with nothing gated.
	resp, _ = postJSON(t, app, "/workflows/"+response.WorkflowID+"/confirm", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestGetWorkflowHidesInternalStructure(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	resp, body := postJSON(t, app, "/sessions/s1/messages", web.SessionMessageRequest{
		UserID: "u1",
		Text:   "Email the quarterly report to John",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var response models.Response
	require.NoError(t, json.Unmarshal(body, &response))
	require.True(t, response.NeedsConfirmation)

	req := httptest.NewRequest(http.MethodGet, "/workflows/"+response.WorkflowID, nil)
	getResp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	raw, err := io.ReadAll(getResp.Body)
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload))

	// The status view describes the pending action without ever leaking
	// the plan's step structure or the data gathered along the way.
	assert.NotContains(t, payload, "steps")
	assert.NotContains(t, payload, "gathered_data")
	assert.NotContains(t, payload, "current_step_index")

	assert.Equal(t, string(models.WorkflowStatusAwaitingConfirmation), payload["status"])
	assert.Equal(t, true, payload["needs_confirmation"])
	assert.Contains(t, payload["message"], "Should I go ahead?")
}

func TestDenyFlowOverHTTP(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	resp, body := postJSON(t, app, "/sessions/s1/messages", web.SessionMessageRequest{
		UserID: "u1",
		Text:   "Delete my 3pm meeting tomorrow",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var response models.Response
	require.NoError(t, json.Unmarshal(body, &response))
	require.True(t, response.NeedsConfirmation)

	resp, body = postJSON(t, app, "/workflows/"+response.WorkflowID+"/deny", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, json.Unmarshal(body, &response))
	assert.True(t, response.NeedsInput)

	// Resume with direction the engine can act on.
	resp, body = postJSON(t, app, "/workflows/"+response.WorkflowID+"/resume", web.ResumeWorkflowRequest{
		Input: "just email the organizer instead",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, json.Unmarshal(body, &response))
	assert.NotEmpty(t, response.Message)
}

func TestWorkflowNotFound(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/workflows/does-not-exist", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	confirmResp, _ := postJSON(t, app, "/workflows/does-not-exist/confirm", nil)
	assert.Equal(t, http.StatusNotFound, confirmResp.StatusCode)
}

func TestCancelWorkflowOverHTTP(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	resp, body := postJSON(t, app, "/sessions/s1/messages", web.SessionMessageRequest{
		UserID: "u1",
		Text:   "Email the quarterly report to John",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var response models.Response
	require.NoError(t, json.Unmarshal(body, &response))

	req := httptest.NewRequest(http.MethodDelete, "/workflows/"+response.WorkflowID, nil)
	delResp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, delResp.StatusCode)

	// Cancelling again conflicts with the terminal state.
	req = httptest.NewRequest(http.MethodDelete, "/workflows/"+response.WorkflowID, nil)
	delResp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, delResp.StatusCode)
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
