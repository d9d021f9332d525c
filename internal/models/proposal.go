package models

import (
	"time"

	"github.com/google/uuid"
)

// GigradarProposal хранит proposal событие от Gigradar.
// proposal_id уникален: повторные доставки webhook обновляют существующую запись.
type GigradarProposal struct {
	ID         uuid.UUID `db:"id" json:"id"`
	ProposalID string    `db:"proposal_id" json:"proposal_id"`

	OpportunityID string `db:"opportunity_id" json:"opportunity_id"`
	JobID         string `db:"job_id" json:"job_id"`

	Status             *string    `db:"status" json:"status,omitempty"`
	SentAt             *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	ScheduledAt        *time.Time `db:"scheduled_at" json:"scheduled_at,omitempty"`
	GigradarCreatedAt  *time.Time `db:"gigradar_created_at" json:"gigradar_created_at,omitempty"`

	HasError     bool    `db:"has_error" json:"has_error"`
	ErrorCode    *string `db:"error_code" json:"error_code,omitempty"`
	ErrorMessage *string `db:"error_message" json:"error_message,omitempty"`

	ScannerID   *string `db:"scanner_id" json:"scanner_id,omitempty"`
	ScannerName *string `db:"scanner_name" json:"scanner_name,omitempty"`
	TeamID      *string `db:"team_id" json:"team_id,omitempty"`
	TeamName    *string `db:"team_name" json:"team_name,omitempty"`

	JobTitle  *string  `db:"job_title" json:"job_title,omitempty"`
	JobBudget *float64 `db:"job_budget" json:"job_budget,omitempty"`
	JobType   *string  `db:"job_type" json:"job_type,omitempty"`

	ClientEmail   *string `db:"client_email" json:"client_email,omitempty"`
	ClientName    *string `db:"client_name" json:"client_name,omitempty"`
	ClientCompany *string `db:"client_company" json:"client_company,omitempty"`

	HubSpotContactID *string `db:"hubspot_contact_id" json:"hubspot_contact_id,omitempty"`
	HubSpotDealID    *string `db:"hubspot_deal_id" json:"hubspot_deal_id,omitempty"`

	// Полные данные webhook как пришли, заменяются при каждой доставке.
	RawData JSONMap `db:"raw_data" json:"raw_data"`

	Created time.Time `db:"created" json:"created"`
	Updated time.Time `db:"updated" json:"updated"`
}
