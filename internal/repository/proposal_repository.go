package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/gigradar-integrations/internal/models"
	"github.com/ignatzorin/gigradar-integrations/internal/webhook"
)

var ErrProposalNotFound = errors.New("proposal not found")

type ProposalRepository struct {
	db *sqlx.DB
}

func NewProposalRepository(db *sqlx.DB) *ProposalRepository {
	return &ProposalRepository{db: db}
}

const proposalColumns = `id, proposal_id, opportunity_id, job_id, status,
		sent_at, scheduled_at, gigradar_created_at,
		has_error, error_code, error_message,
		scanner_id, scanner_name, team_id, team_name,
		job_title, job_budget, job_type,
		client_email, client_name, client_company,
		hubspot_contact_id, hubspot_deal_id, raw_data, created, updated`

// UpsertFromPayload создаёт или обновляет proposal по данным webhook события.
// Ключ: внешний proposal_id: повторная доставка полностью перезаписывает
// поля записи, включая raw_data. Без proposal_id в payload ничего не сохраняется.
func (r *ProposalRepository) UpsertFromPayload(ctx context.Context, data map[string]any) (*models.GigradarProposal, error) {
	p, err := webhook.BuildProposal(data)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO gigradar_proposals (
			proposal_id, opportunity_id, job_id, status,
			sent_at, scheduled_at, gigradar_created_at,
			has_error, error_code, error_message,
			scanner_id, scanner_name, team_id, team_name,
			job_title, job_budget, job_type,
			client_email, client_name, client_company, raw_data
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		ON CONFLICT (proposal_id) DO UPDATE SET
			opportunity_id = EXCLUDED.opportunity_id,
			job_id = EXCLUDED.job_id,
			status = EXCLUDED.status,
			sent_at = EXCLUDED.sent_at,
			scheduled_at = EXCLUDED.scheduled_at,
			gigradar_created_at = EXCLUDED.gigradar_created_at,
			has_error = EXCLUDED.has_error,
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			scanner_id = EXCLUDED.scanner_id,
			scanner_name = EXCLUDED.scanner_name,
			team_id = EXCLUDED.team_id,
			team_name = EXCLUDED.team_name,
			job_title = EXCLUDED.job_title,
			job_budget = EXCLUDED.job_budget,
			job_type = EXCLUDED.job_type,
			client_email = EXCLUDED.client_email,
			client_name = EXCLUDED.client_name,
			client_company = EXCLUDED.client_company,
			raw_data = EXCLUDED.raw_data,
			updated = NOW()
		RETURNING ` + proposalColumns

	var saved models.GigradarProposal
	err = r.db.GetContext(ctx, &saved, query,
		p.ProposalID, p.OpportunityID, p.JobID, p.Status,
		p.SentAt, p.ScheduledAt, p.GigradarCreatedAt,
		p.HasError, p.ErrorCode, p.ErrorMessage,
		p.ScannerID, p.ScannerName, p.TeamID, p.TeamName,
		p.JobTitle, p.JobBudget, p.JobType,
		p.ClientEmail, p.ClientName, p.ClientCompany, p.RawData,
	)
	if err != nil {
		return nil, fmt.Errorf("proposal repository: upsert %s: %w", p.ProposalID, err)
	}

	return &saved, nil
}

// GetByProposalID возвращает запись по внешнему идентификатору.
func (r *ProposalRepository) GetByProposalID(ctx context.Context, proposalID string) (*models.GigradarProposal, error) {
	var p models.GigradarProposal
	query := `SELECT ` + proposalColumns + ` FROM gigradar_proposals WHERE proposal_id = $1`
	if err := r.db.GetContext(ctx, &p, query, proposalID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProposalNotFound
		}
		return nil, fmt.Errorf("proposal repository: get %s: %w", proposalID, err)
	}
	return &p, nil
}

// SetHubSpotIDsByOpportunity проставляет идентификаторы HubSpot всем записям
// с данным opportunity_id. Возвращает количество обновлённых строк -
// ноль не ошибка, proposal для opportunity мог ещё не прийти.
func (r *ProposalRepository) SetHubSpotIDsByOpportunity(ctx context.Context, opportunityID, contactID, dealID string) (int64, error) {
	query := `
		UPDATE gigradar_proposals
		SET hubspot_contact_id = COALESCE(NULLIF($2, ''), hubspot_contact_id),
		    hubspot_deal_id = COALESCE(NULLIF($3, ''), hubspot_deal_id),
		    updated = NOW()
		WHERE opportunity_id = $1
	`
	res, err := r.db.ExecContext(ctx, query, opportunityID, contactID, dealID)
	if err != nil {
		return 0, fmt.Errorf("proposal repository: set hubspot ids %s: %w", opportunityID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return affected, nil
}

// ProposalFilter задаёт опциональные условия выборки.
type ProposalFilter struct {
	OpportunityID string
	JobID         string
	ClientEmail   string
	Status        string
	HasError      *bool
}

// whereClause собирает WHERE часть и аргументы по заполненным полям фильтра.
func (f ProposalFilter) whereClause() (string, []any) {
	var conditions []string
	var args []any

	add := func(column string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if f.OpportunityID != "" {
		add("opportunity_id", f.OpportunityID)
	}
	if f.JobID != "" {
		add("job_id", f.JobID)
	}
	if f.ClientEmail != "" {
		add("client_email", f.ClientEmail)
	}
	if f.Status != "" {
		add("status", f.Status)
	}
	if f.HasError != nil {
		add("has_error", *f.HasError)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// List возвращает записи по фильтру, новые первыми.
func (r *ProposalRepository) List(ctx context.Context, filter ProposalFilter, limit, offset int) ([]models.GigradarProposal, error) {
	where, args := filter.whereClause()
	query := fmt.Sprintf(
		`SELECT `+proposalColumns+` FROM gigradar_proposals%s ORDER BY created DESC LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2,
	)
	args = append(args, limit, offset)

	proposals := []models.GigradarProposal{}
	if err := r.db.SelectContext(ctx, &proposals, query, args...); err != nil {
		return nil, fmt.Errorf("proposal repository: list: %w", err)
	}
	return proposals, nil
}

// Count возвращает количество записей по фильтру.
func (r *ProposalRepository) Count(ctx context.Context, filter ProposalFilter) (int, error) {
	where, args := filter.whereClause()
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM gigradar_proposals`+where, args...); err != nil {
		return 0, fmt.Errorf("proposal repository: count: %w", err)
	}
	return total, nil
}
