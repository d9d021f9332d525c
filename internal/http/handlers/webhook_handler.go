package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/gigradar-integrations/internal/config"
	"github.com/ignatzorin/gigradar-integrations/internal/hubspot"
	"github.com/ignatzorin/gigradar-integrations/internal/logger"
	"github.com/ignatzorin/gigradar-integrations/internal/models"
	"github.com/ignatzorin/gigradar-integrations/internal/webhook"
)

// События Gigradar, которые сервис обрабатывает.
const (
	EventOpportunityCreate = "GIGRADAR.OPPORTUNITY.CREATE"
	EventProposalUpdate    = "GIGRADAR.PROPOSAL.UPDATE"
	EventProposalCreate    = "GIGRADAR.PROPOSAL.CREATE"
)

// ProposalStore сохраняет proposal записи из webhook payload.
type ProposalStore interface {
	UpsertFromPayload(ctx context.Context, data map[string]any) (*models.GigradarProposal, error)
	SetHubSpotIDsByOpportunity(ctx context.Context, opportunityID, contactID, dealID string) (int64, error)
}

// CRMClient синхронизирует opportunity с HubSpot.
type CRMClient interface {
	ProcessOpportunity(ctx context.Context, data map[string]any) hubspot.OpportunityResult
}

// WebhookHandler принимает webhook события от Gigradar.
// crm может быть nil, если HUBSPOT_ACCESS_TOKEN не задан: тогда
// opportunity события отвечают ошибкой конфигурации (с кодом 200).
type WebhookHandler struct {
	cfg       *config.Config
	proposals ProposalStore
	crm       CRMClient
}

func NewWebhookHandler(cfg *config.Config, proposals ProposalStore, crm CRMClient) *WebhookHandler {
	return &WebhookHandler{cfg: cfg, proposals: proposals, crm: crm}
}

// outcomeKind: внутренний исход обработки события, отдельно от HTTP статуса.
type outcomeKind int

const (
	outcomeOK outcomeKind = iota
	outcomePartialSuccess
	outcomeValidationError
	outcomeConfigError
	outcomeDownstreamError
	outcomeUnknownEvent
)

// httpStatus отображает исход на HTTP статус. Gigradar доставляет события
// at-least-once и повторяет всё, что не 200: после валидации токена и JSON
// любой исход подтверждается кодом 200, ошибки уходят в тело и в логи.
func (k outcomeKind) httpStatus() int {
	switch k {
	case outcomeOK, outcomePartialSuccess, outcomeValidationError,
		outcomeConfigError, outcomeDownstreamError, outcomeUnknownEvent:
		return http.StatusOK
	default:
		return http.StatusOK
	}
}

type webhookOutcome struct {
	kind outcomeKind
	body gin.H
}

// Handle обрабатывает POST /hooks/catch/:token/.
func (h *WebhookHandler) Handle(c *gin.Context) {
	// Никакая ошибка обработки не должна привести к повторной доставке.
	defer func() {
		if r := recover(); r != nil {
			logger.Log.WithField("panic", r).Error("webhook: паника при обработке события")
			c.JSON(outcomeDownstreamError.httpStatus(), gin.H{
				"status":  "error",
				"message": "Internal server error",
			})
		}
	}()

	// Валидируем webhook токен из пути.
	if h.cfg.WebhookToken != "" && c.Param("token") != h.cfg.WebhookToken {
		logger.Log.WithField("token", c.Param("token")).Warn("webhook: невалидный токен")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid webhook token"})
		return
	}

	var payload map[string]any
	if err := json.NewDecoder(c.Request.Body).Decode(&payload); err != nil {
		logger.Log.WithError(err).Error("webhook: невалидный JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format"})
		return
	}

	// Basic аутентификация: проверяется только наличие заголовка.
	// TODO: сверять credentials с WEBHOOK_USERNAME/WEBHOOK_PASSWORD.
	if h.cfg.BasicAuthConfigured() {
		if !strings.HasPrefix(c.GetHeader("Authorization"), "Basic ") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}
	}

	eventType := firstStringField(payload, "event", "type")
	data, ok := payload["data"].(map[string]any)
	if !ok {
		data = payload
	}

	logger.Log.WithField("event", eventType).Info("webhook: получено событие")

	var outcome webhookOutcome
	switch eventType {
	case EventOpportunityCreate:
		outcome = h.handleOpportunityCreate(c.Request.Context(), data)
	case EventProposalUpdate, EventProposalCreate:
		outcome = h.handleProposalUpsert(c.Request.Context(), data)
	default:
		logger.Log.WithField("event", eventType).Warn("webhook: неизвестный тип события")
		outcome = webhookOutcome{
			kind: outcomeUnknownEvent,
			body: gin.H{
				"status":  "received",
				"message": fmt.Sprintf("Event %s received but not processed", eventType),
			},
		}
	}

	c.JSON(outcome.kind.httpStatus(), outcome.body)
}

// handleProposalUpsert сохраняет proposal событие в базу.
func (h *WebhookHandler) handleProposalUpsert(ctx context.Context, data map[string]any) webhookOutcome {
	proposal, err := h.proposals.UpsertFromPayload(ctx, data)
	if err != nil {
		if errors.Is(err, webhook.ErrMissingProposalID) {
			logger.Log.WithError(err).Error("webhook: ошибка сохранения proposal")
			return webhookOutcome{
				kind: outcomeValidationError,
				body: gin.H{
					"status":  "error",
					"message": fmt.Sprintf("Failed to save proposal: %s", err.Error()),
				},
			}
		}

		logger.Log.WithError(err).Error("webhook: ошибка обработки proposal")
		return webhookOutcome{
			kind: outcomeDownstreamError,
			body: gin.H{"status": "error", "message": "Failed to process proposal"},
		}
	}

	logger.Log.WithFields(logrus.Fields{
		"proposal_id": proposal.ProposalID,
		"status":      proposal.Status,
		"has_error":   proposal.HasError,
	}).Info("webhook: proposal сохранён")

	return webhookOutcome{
		kind: outcomeOK,
		body: gin.H{
			"status":      "success",
			"message":     "Proposal saved successfully",
			"proposal_id": proposal.ProposalID,
			"saved_at":    proposal.Created,
		},
	}
}

// handleOpportunityCreate синхронизирует opportunity с HubSpot.
func (h *WebhookHandler) handleOpportunityCreate(ctx context.Context, data map[string]any) webhookOutcome {
	if h.crm == nil {
		logger.Log.Error("webhook: HubSpot клиент не сконфигурирован")
		return webhookOutcome{
			kind: outcomeConfigError,
			body: gin.H{"status": "error", "message": "HubSpot configuration error"},
		}
	}

	result := h.crm.ProcessOpportunity(ctx, data)
	if !result.Success {
		logger.Log.WithField("errors", result.Errors).Warn("webhook: opportunity обработана с ошибками")
		return webhookOutcome{
			kind: outcomePartialSuccess,
			body: gin.H{
				"status":  "partial_success",
				"message": "Opportunity processed with errors",
				"errors":  result.Errors,
			},
		}
	}

	// Проставляем HubSpot идентификаторы уже сохранённым proposal этой opportunity.
	if opportunityID, _ := data["id"].(string); opportunityID != "" {
		if _, err := h.proposals.SetHubSpotIDsByOpportunity(ctx, opportunityID, result.ContactID, result.DealID); err != nil {
			logger.Log.WithField("opportunity_id", opportunityID).
				WithError(err).Error("webhook: не удалось проставить hubspot идентификаторы")
		}
	}

	logger.Log.WithFields(logrus.Fields{
		"contact_id": result.ContactID,
		"deal_id":    result.DealID,
	}).Info("webhook: opportunity успешно обработана")

	return webhookOutcome{
		kind: outcomeOK,
		body: gin.H{
			"status":     "success",
			"message":    "Opportunity processed successfully",
			"contact_id": result.ContactID,
			"deal_id":    result.DealID,
		},
	}
}

// Health обрабатывает GET /webhooks/health: проверка доступности webhook endpoint.
func (h *WebhookHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "Gigradar Webhook Handler",
	})
}

// firstStringField возвращает первое непустое строковое поле по списку ключей.
func firstStringField(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := payload[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
