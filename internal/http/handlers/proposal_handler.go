package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/gigradar-integrations/internal/http/handlers/common"
	"github.com/ignatzorin/gigradar-integrations/internal/models"
	"github.com/ignatzorin/gigradar-integrations/internal/repository"
)

// ProposalReader: read-only доступ к сохранённым proposal записям.
type ProposalReader interface {
	GetByProposalID(ctx context.Context, proposalID string) (*models.GigradarProposal, error)
	List(ctx context.Context, filter repository.ProposalFilter, limit, offset int) ([]models.GigradarProposal, error)
	Count(ctx context.Context, filter repository.ProposalFilter) (int, error)
}

// ProposalHandler отдаёт сохранённые proposal записи операторам.
type ProposalHandler struct {
	proposals ProposalReader
}

func NewProposalHandler(proposals ProposalReader) *ProposalHandler {
	return &ProposalHandler{proposals: proposals}
}

// ListProposals GET /api/proposals
func (h *ProposalHandler) ListProposals(c *gin.Context) {
	filter := repository.ProposalFilter{
		OpportunityID: c.Query("opportunity_id"),
		JobID:         c.Query("job_id"),
		ClientEmail:   c.Query("client_email"),
		Status:        c.Query("status"),
	}
	if v := c.Query("has_error"); v == "true" || v == "false" {
		hasError := v == "true"
		filter.HasError = &hasError
	}

	limit, offset := common.GetPagination(c)

	proposals, err := h.proposals.List(c.Request.Context(), filter, limit, offset)
	if err != nil {
		common.RespondInternalError(c, "")
		return
	}

	total, err := h.proposals.Count(c.Request.Context(), filter)
	if err != nil {
		common.RespondInternalError(c, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"proposals": proposals,
		"total":     total,
		"limit":     limit,
		"offset":    offset,
	})
}

// GetProposal GET /api/proposals/:proposalId
func (h *ProposalHandler) GetProposal(c *gin.Context) {
	proposalID := c.Param("proposalId")
	if proposalID == "" {
		common.RespondBadRequest(c, "отсутствует proposal_id")
		return
	}

	proposal, err := h.proposals.GetByProposalID(c.Request.Context(), proposalID)
	if err != nil {
		if errors.Is(err, repository.ErrProposalNotFound) {
			common.RespondNotFound(c, "proposal не найден")
			return
		}
		common.RespondInternalError(c, "")
		return
	}

	c.JSON(http.StatusOK, proposal)
}
