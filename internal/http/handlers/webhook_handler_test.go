package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/gigradar-integrations/internal/config"
	"github.com/ignatzorin/gigradar-integrations/internal/hubspot"
	"github.com/ignatzorin/gigradar-integrations/internal/logger"
	"github.com/ignatzorin/gigradar-integrations/internal/models"
	"github.com/ignatzorin/gigradar-integrations/internal/webhook"
)

func TestMain(m *testing.M) {
	logger.Silence()
	m.Run()
}

// fakeStore фиксирует вызовы вместо реальной базы.
type fakeStore struct {
	upsertCalls  []map[string]any
	upsertErr    error
	setIDsCalls  []string
	setIDsResult int64
}

func (s *fakeStore) UpsertFromPayload(_ context.Context, data map[string]any) (*models.GigradarProposal, error) {
	s.upsertCalls = append(s.upsertCalls, data)
	if s.upsertErr != nil {
		return nil, s.upsertErr
	}
	p, err := webhook.BuildProposal(data)
	if err != nil {
		return nil, err
	}
	p.Created = time.Now()
	return p, nil
}

func (s *fakeStore) SetHubSpotIDsByOpportunity(_ context.Context, opportunityID, _, _ string) (int64, error) {
	s.setIDsCalls = append(s.setIDsCalls, opportunityID)
	return s.setIDsResult, nil
}

type fakeCRM struct {
	result hubspot.OpportunityResult
	calls  int
}

func (c *fakeCRM) ProcessOpportunity(_ context.Context, _ map[string]any) hubspot.OpportunityResult {
	c.calls++
	return c.result
}

func newWebhookRouter(cfg *config.Config, store *fakeStore, crm CRMClient) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewWebhookHandler(cfg, store, crm)
	r.POST("/hooks/catch/:token/", handler.Handle)
	r.GET("/webhooks/health", handler.Health)
	return r
}

func postWebhook(r *gin.Engine, token string, payload any) *httptest.ResponseRecorder {
	body, _ := json.Marshal(payload)
	req, _ := http.NewRequest("POST", "/hooks/catch/"+token+"/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestWebhookHandler_InvalidToken(t *testing.T) {
	store := &fakeStore{}
	r := newWebhookRouter(&config.Config{WebhookToken: "secret"}, store, nil)

	w := postWebhook(r, "wrong", map[string]any{
		"event": EventProposalCreate,
		"data":  map[string]any{"id": "prop-1"},
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid webhook token", decodeBody(t, w)["error"])
	// До валидации токена никакие данные не сохраняются.
	assert.Empty(t, store.upsertCalls)
}

func TestWebhookHandler_EmptyTokenConfigAcceptsAny(t *testing.T) {
	store := &fakeStore{}
	r := newWebhookRouter(&config.Config{}, store, nil)

	w := postWebhook(r, "anything", map[string]any{
		"event": EventProposalCreate,
		"data":  map[string]any{"id": "prop-1"},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, store.upsertCalls, 1)
}

func TestWebhookHandler_InvalidJSON(t *testing.T) {
	store := &fakeStore{}
	r := newWebhookRouter(&config.Config{WebhookToken: "secret"}, store, nil)

	req, _ := http.NewRequest("POST", "/hooks/catch/secret/", bytes.NewReader([]byte("{не json")))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid JSON format", decodeBody(t, w)["error"])
	assert.Empty(t, store.upsertCalls)
}

func TestWebhookHandler_BasicAuthHeaderRequired(t *testing.T) {
	cfg := &config.Config{
		WebhookToken:    "secret",
		WebhookUsername: "user",
		WebhookPassword: "pass",
	}
	store := &fakeStore{}
	r := newWebhookRouter(cfg, store, nil)

	w := postWebhook(r, "secret", map[string]any{
		"event": EventProposalCreate,
		"data":  map[string]any{"id": "prop-1"},
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Authentication required", decodeBody(t, w)["error"])

	// С заголовком запрос проходит.
	body, _ := json.Marshal(map[string]any{
		"event": EventProposalCreate,
		"data":  map[string]any{"id": "prop-1"},
	})
	req, _ := http.NewRequest("POST", "/hooks/catch/secret/", bytes.NewReader(body))
	req.SetBasicAuth("user", "pass")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhookHandler_UnknownEventAcknowledged(t *testing.T) {
	store := &fakeStore{}
	crm := &fakeCRM{}
	r := newWebhookRouter(&config.Config{WebhookToken: "secret"}, store, crm)

	w := postWebhook(r, "secret", map[string]any{
		"event": "GIGRADAR.SOMETHING.ELSE",
		"data":  map[string]any{"id": "x"},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "received", body["status"])
	assert.Empty(t, store.upsertCalls)
	assert.Zero(t, crm.calls)
}

func TestWebhookHandler_ProposalCreateSaved(t *testing.T) {
	store := &fakeStore{}
	r := newWebhookRouter(&config.Config{WebhookToken: "secret"}, store, nil)

	w := postWebhook(r, "secret", map[string]any{
		"event": EventProposalCreate,
		"data": map[string]any{
			"id":     "prop-1",
			"status": "sent",
		},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "Proposal saved successfully", body["message"])
	assert.Equal(t, "prop-1", body["proposal_id"])
	assert.NotEmpty(t, body["saved_at"])
	require.Len(t, store.upsertCalls, 1)
}

func TestWebhookHandler_ProposalUpdateSameFlow(t *testing.T) {
	store := &fakeStore{}
	r := newWebhookRouter(&config.Config{WebhookToken: "secret"}, store, nil)

	w := postWebhook(r, "secret", map[string]any{
		"event": EventProposalUpdate,
		"data":  map[string]any{"id": "prop-1"},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", decodeBody(t, w)["status"])
}

func TestWebhookHandler_PayloadWithoutDataEnvelope(t *testing.T) {
	// Если "data" нет, весь payload трактуется как данные события.
	store := &fakeStore{}
	r := newWebhookRouter(&config.Config{WebhookToken: "secret"}, store, nil)

	w := postWebhook(r, "secret", map[string]any{
		"event": EventProposalCreate,
		"id":    "prop-1",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", decodeBody(t, w)["status"])
	require.Len(t, store.upsertCalls, 1)
	assert.Equal(t, "prop-1", store.upsertCalls[0]["id"])
}

func TestWebhookHandler_MissingProposalIDAcknowledgedWithError(t *testing.T) {
	store := &fakeStore{}
	r := newWebhookRouter(&config.Config{WebhookToken: "secret"}, store, nil)

	w := postWebhook(r, "secret", map[string]any{
		"event": EventProposalCreate,
		"data":  map[string]any{"status": "sent"},
	})

	// Событие подтверждается кодом 200, ошибка в теле.
	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "error", body["status"])
	assert.Contains(t, body["message"], "Failed to save proposal")
}

func TestWebhookHandler_StoreFailureAcknowledged(t *testing.T) {
	store := &fakeStore{upsertErr: errors.New("db down")}
	r := newWebhookRouter(&config.Config{WebhookToken: "secret"}, store, nil)

	w := postWebhook(r, "secret", map[string]any{
		"event": EventProposalCreate,
		"data":  map[string]any{"id": "prop-1"},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "Failed to process proposal", body["message"])
}

func TestWebhookHandler_OpportunityWithoutCRM(t *testing.T) {
	store := &fakeStore{}
	r := newWebhookRouter(&config.Config{WebhookToken: "secret"}, store, nil)

	w := postWebhook(r, "secret", map[string]any{
		"event": EventOpportunityCreate,
		"data":  map[string]any{"id": "opp-1"},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "HubSpot configuration error", body["message"])
}

func TestWebhookHandler_OpportunitySuccess(t *testing.T) {
	store := &fakeStore{setIDsResult: 1}
	crm := &fakeCRM{result: hubspot.OpportunityResult{
		Success:   true,
		ContactID: "contact-1",
		DealID:    "deal-1",
	}}
	r := newWebhookRouter(&config.Config{WebhookToken: "secret"}, store, crm)

	w := postWebhook(r, "secret", map[string]any{
		"event": EventOpportunityCreate,
		"data":  map[string]any{"id": "opp-1"},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "contact-1", body["contact_id"])
	assert.Equal(t, "deal-1", body["deal_id"])

	assert.Equal(t, 1, crm.calls)
	// Идентификаторы HubSpot проставляются записям этой opportunity.
	require.Len(t, store.setIDsCalls, 1)
	assert.Equal(t, "opp-1", store.setIDsCalls[0])
}

func TestWebhookHandler_OpportunityPartialSuccess(t *testing.T) {
	store := &fakeStore{}
	crm := &fakeCRM{result: hubspot.OpportunityResult{
		Success:   false,
		ContactID: "contact-1",
		Errors:    []string{"deal creation failed"},
	}}
	r := newWebhookRouter(&config.Config{WebhookToken: "secret"}, store, crm)

	w := postWebhook(r, "secret", map[string]any{
		"event": EventOpportunityCreate,
		"data":  map[string]any{"id": "opp-1"},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "partial_success", body["status"])
	assert.NotEmpty(t, body["errors"])
	assert.Empty(t, store.setIDsCalls)
}

func TestWebhookHandler_Health(t *testing.T) {
	r := newWebhookRouter(&config.Config{}, &fakeStore{}, nil)

	req, _ := http.NewRequest("GET", "/webhooks/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeBody(t, w)["status"])
}
