package hubspot

import (
	"context"
	"fmt"
	"strings"

	"github.com/ignatzorin/gigradar-integrations/internal/logger"
)

// OpportunityResult: итог обработки opportunity.
// Success выставляется только если удалось создать deal.
type OpportunityResult struct {
	Success   bool     `json:"success"`
	ContactID string   `json:"contact_id,omitempty"`
	DealID    string   `json:"deal_id,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

const jobDescriptionLimit = 500

// ProcessOpportunity создаёт контакт и deal в HubSpot по данным opportunity
// из webhook события Gigradar. Никогда не паникует: любая неожиданная
// ошибка попадает в Errors, результат возвращается всегда.
func (c *Client) ProcessOpportunity(ctx context.Context, data map[string]any) (result OpportunityResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.WithField("panic", r).Error("hubspot: паника при обработке opportunity")
			result.Errors = append(result.Errors, fmt.Sprintf("%v", r))
			result.Success = false
		}
	}()

	job, _ := data["job"].(map[string]any)
	client, _ := job["client"].(map[string]any)

	opportunityID, _ := data["id"].(string)
	jobID, _ := data["jobId"].(string)

	// Контакт: по email клиента, либо заглушка из названия компании -
	// HubSpot требует email для контакта.
	clientEmail := firstString(client["email"], job["clientEmail"])
	if clientEmail != "" {
		result.ContactID = c.CreateContact(ctx, clientEmail, ContactProps{
			FirstName: firstString(client["name"], job["clientName"]),
			Company:   firstString(client["company"], job["companyName"]),
		})
	} else {
		companyName := firstString(client["company"], job["companyName"])
		if companyName == "" {
			companyName = unknownCompanyName
		}
		placeholder := strings.ReplaceAll(strings.ToLower(companyName), " ", "_") + "@" + placeholderEmailDomain
		result.ContactID = c.CreateContact(ctx, placeholder, ContactProps{
			Company: companyName,
		})
	}

	jobTitle := firstString(job["title"])
	dealTitle := jobTitle
	if dealTitle == "" {
		dealTitle = "Untitled Job"
	}

	var amount string
	if budget := firstValue(job["budget"], job["hourlyRate"]); budget != nil {
		amount = stringifyNumber(budget)
	}

	description := firstString(job["description"])
	if len(description) > jobDescriptionLimit {
		description = description[:jobDescriptionLimit]
	}

	result.DealID = c.CreateDeal(ctx, "GigRadar Opportunity: "+dealTitle, DealProps{
		Amount:    amount,
		Stage:     DefaultDealStage,
		ContactID: result.ContactID,
		Extra: map[string]string{
			"gigradar_opportunity_id": opportunityID,
			"gigradar_job_id":         jobID,
			"job_title":               jobTitle,
			"job_description":         description,
		},
	})

	result.Success = result.DealID != ""
	return result
}

// firstString возвращает первое непустое строковое значение.
func firstString(values ...any) string {
	for _, v := range values {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// firstValue возвращает первое непустое значение любого типа.
func firstValue(values ...any) any {
	for _, v := range values {
		switch t := v.(type) {
		case nil:
			continue
		case string:
			if t != "" {
				return t
			}
		case float64:
			if t != 0 {
				return t
			}
		default:
			return v
		}
	}
	return nil
}

// stringifyNumber приводит сумму к строке для поля amount.
func stringifyNumber(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprintf("%v", v)
	}
}
