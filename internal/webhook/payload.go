package webhook

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/ignatzorin/gigradar-integrations/internal/models"
)

// ErrMissingProposalID возвращается, когда в payload нет ни одного ключа с ID proposal.
var ErrMissingProposalID = errors.New("webhook: proposal ID не найден в данных")

// Ключи-кандидаты для каждого логического поля, в порядке приоритета.
// Gigradar присылает camelCase, но встречаются и snake_case варианты.
var (
	proposalIDKeys    = []string{"id", "proposalId", "_id"}
	opportunityIDKeys = []string{"opportunityId", "opportunity_id"}
	jobIDKeys         = []string{"jobId", "job_id"}
	sentAtKeys        = []string{"sent"}
	scheduledAtKeys   = []string{"scheduledAt"}
	createdAtKeys     = []string{"createdAt", "created_at"}
	hasErrorKeys      = []string{"error", "hasError"}
	errorCodeKeys     = []string{"errorCode", "error_code"}
	errorMessageKeys  = []string{"errorMessage", "error_message"}
	scannerIDKeys     = []string{"scannerId", "scanner_id"}
	scannerNameKeys   = []string{"scannerName", "scanner_name"}
	teamIDKeys        = []string{"teamId", "team_id"}
	teamNameKeys      = []string{"teamName", "team_name"}
	jobTitleKeys      = []string{"title", "jobTitle"}
	jobBudgetKeys     = []string{"budget", "hourlyRate", "fixedPrice"}
	jobTypeKeys       = []string{"type", "jobType"}
)

// Форматы дат, которые встречаются в payload от Gigradar.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// BuildProposal собирает GigradarProposal из сырого payload webhook события.
// Каждое опциональное поле извлекается независимо: ошибка парсинга одного
// поля не прерывает обработку остальных. Обязателен только proposal ID.
func BuildProposal(data map[string]any) (*models.GigradarProposal, error) {
	proposalID := stringByKeys(data, proposalIDKeys)
	if proposalID == "" {
		return nil, ErrMissingProposalID
	}

	p := &models.GigradarProposal{
		ProposalID:    proposalID,
		OpportunityID: stringByKeys(data, opportunityIDKeys),
		JobID:         stringByKeys(data, jobIDKeys),
		Status:        stringPtrByKeys(data, []string{"status"}),

		SentAt:            timeByKeys(data, sentAtKeys),
		ScheduledAt:       timeByKeys(data, scheduledAtKeys),
		GigradarCreatedAt: timeByKeys(data, createdAtKeys),

		HasError:     boolByKeys(data, hasErrorKeys),
		ErrorCode:    stringPtrByKeys(data, errorCodeKeys),
		ErrorMessage: stringPtrByKeys(data, errorMessageKeys),

		ScannerID:   stringPtrByKeys(data, scannerIDKeys),
		ScannerName: stringPtrByKeys(data, scannerNameKeys),
		TeamID:      stringPtrByKeys(data, teamIDKeys),
		TeamName:    stringPtrByKeys(data, teamNameKeys),

		RawData: models.JSONMap(data),
	}

	if job := mapByKey(data, "job"); job != nil {
		p.JobTitle = stringPtrByKeys(job, jobTitleKeys)
		p.JobBudget = floatByKeys(job, jobBudgetKeys)
		p.JobType = stringPtrByKeys(job, jobTypeKeys)

		if client := mapByKey(job, "client"); client != nil {
			p.ClientEmail = stringPtrByKeys(client, []string{"email"})
			p.ClientName = stringPtrByKeys(client, []string{"name"})
			p.ClientCompany = stringPtrByKeys(client, []string{"company"})
		} else {
			// client может быть строкой или отсутствовать: берём плоские ключи job.
			p.ClientEmail = stringPtrByKeys(job, []string{"clientEmail"})
			p.ClientName = stringPtrByKeys(job, []string{"clientName"})
			p.ClientCompany = stringPtrByKeys(job, []string{"companyName"})
		}
	}

	return p, nil
}

// stringByKeys возвращает первое непустое строковое значение по списку ключей.
func stringByKeys(data map[string]any, keys []string) string {
	for _, key := range keys {
		if s, ok := data[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// stringPtrByKeys как stringByKeys, но nil вместо пустой строки.
func stringPtrByKeys(data map[string]any, keys []string) *string {
	if s := stringByKeys(data, keys); s != "" {
		return &s
	}
	return nil
}

// boolByKeys возвращает true, если хотя бы один из ключей содержит true.
func boolByKeys(data map[string]any, keys []string) bool {
	for _, key := range keys {
		if b, ok := data[key].(bool); ok && b {
			return true
		}
	}
	return false
}

// floatByKeys извлекает число из первого непустого значения по списку ключей.
// Выбирается первое значение, а не первое валидное: ошибка коэрции
// молча оставляет поле незаполненным.
func floatByKeys(data map[string]any, keys []string) *float64 {
	for _, key := range keys {
		raw, ok := data[key]
		if !ok || raw == nil {
			continue
		}

		switch v := raw.(type) {
		case float64:
			if v == 0 {
				continue
			}
			return &v
		case int:
			if v == 0 {
				continue
			}
			f := float64(v)
			return &f
		case json.Number:
			f, err := v.Float64()
			if err != nil {
				return nil
			}
			if f == 0 {
				continue
			}
			return &f
		case string:
			if v == "" {
				continue
			}
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil
			}
			return &f
		}
	}
	return nil
}

// timeByKeys парсит дату из первого присутствующего ключа.
// Невалидная дата молча пропускается: поле остаётся незаполненным.
func timeByKeys(data map[string]any, keys []string) *time.Time {
	for _, key := range keys {
		raw, ok := data[key]
		if !ok {
			continue
		}

		s, ok := raw.(string)
		if !ok || s == "" {
			continue
		}

		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return &t
			}
		}
	}
	return nil
}

// mapByKey возвращает вложенный документ, если он имеет форму карты.
func mapByKey(data map[string]any, key string) map[string]any {
	if m, ok := data[key].(map[string]any); ok {
		return m
	}
	return nil
}
