package hubspot

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeWithContactAndDeal() *fakeHubSpot {
	fake := newFakeHubSpot()
	fake.handle("/crm/v3/objects/contacts", func(w http.ResponseWriter, body map[string]any) {
		respondJSON(w, http.StatusCreated, map[string]string{"id": "contact-1"})
	})
	fake.handle("/crm/v3/objects/deals", func(w http.ResponseWriter, body map[string]any) {
		respondJSON(w, http.StatusCreated, map[string]string{"id": "deal-1"})
	})
	fake.handle("/crm/v4/associations/contacts/deals/batch/create", func(w http.ResponseWriter, body map[string]any) {
		respondJSON(w, http.StatusCreated, map[string]any{"status": "COMPLETE"})
	})
	return fake
}

func TestProcessOpportunity_FullPayload(t *testing.T) {
	fake := fakeWithContactAndDeal()
	client := newTestClient(t, fake)

	result := client.ProcessOpportunity(context.Background(), map[string]any{
		"id":    "opp-1",
		"jobId": "job-1",
		"job": map[string]any{
			"title":       "Go developer",
			"budget":      1500.0,
			"description": "Backend work",
			"client": map[string]any{
				"email":   "client@example.com",
				"name":    "Jane Smith",
				"company": "Acme Co",
			},
		},
	})

	assert.True(t, result.Success)
	assert.Equal(t, "contact-1", result.ContactID)
	assert.Equal(t, "deal-1", result.DealID)
	assert.Empty(t, result.Errors)

	deals := fake.requests("/crm/v3/objects/deals")
	require.Len(t, deals, 1)
	props := deals[0]["properties"].(map[string]any)
	assert.Equal(t, "GigRadar Opportunity: Go developer", props["dealname"])
	assert.Equal(t, "1500", props["amount"])
	assert.Equal(t, "opp-1", props["gigradar_opportunity_id"])
	assert.Equal(t, "job-1", props["gigradar_job_id"])
}

func TestProcessOpportunity_PlaceholderEmail(t *testing.T) {
	// Без email клиента контакт создаётся с заглушкой из названия компании.
	fake := fakeWithContactAndDeal()
	client := newTestClient(t, fake)

	result := client.ProcessOpportunity(context.Background(), map[string]any{
		"id": "opp-1",
		"job": map[string]any{
			"title": "Design",
			"client": map[string]any{
				"company": "Acme Co",
			},
		},
	})
	assert.True(t, result.Success)

	contacts := fake.requests("/crm/v3/objects/contacts")
	require.Len(t, contacts, 1)
	props := contacts[0]["properties"].(map[string]any)
	assert.Equal(t, "acme_co@gigradar.placeholder", props["email"])
	assert.Equal(t, "Acme Co", props["company"])
}

func TestProcessOpportunity_UnknownCompanyPlaceholder(t *testing.T) {
	fake := fakeWithContactAndDeal()
	client := newTestClient(t, fake)

	client.ProcessOpportunity(context.Background(), map[string]any{
		"id":  "opp-1",
		"job": map[string]any{"title": "Design"},
	})

	contacts := fake.requests("/crm/v3/objects/contacts")
	require.Len(t, contacts, 1)
	props := contacts[0]["properties"].(map[string]any)
	assert.Equal(t, "unknown_company@gigradar.placeholder", props["email"])
}

func TestProcessOpportunity_UntitledJob(t *testing.T) {
	fake := fakeWithContactAndDeal()
	client := newTestClient(t, fake)

	client.ProcessOpportunity(context.Background(), map[string]any{"id": "opp-1"})

	deals := fake.requests("/crm/v3/objects/deals")
	require.Len(t, deals, 1)
	props := deals[0]["properties"].(map[string]any)
	assert.Equal(t, "GigRadar Opportunity: Untitled Job", props["dealname"])
}

func TestProcessOpportunity_DescriptionTruncated(t *testing.T) {
	fake := fakeWithContactAndDeal()
	client := newTestClient(t, fake)

	client.ProcessOpportunity(context.Background(), map[string]any{
		"id": "opp-1",
		"job": map[string]any{
			"title":       "Long job",
			"description": strings.Repeat("a", 700),
		},
	})

	deals := fake.requests("/crm/v3/objects/deals")
	require.Len(t, deals, 1)
	props := deals[0]["properties"].(map[string]any)
	assert.Len(t, props["job_description"], 500)
}

func TestProcessOpportunity_DealFailureIsNotSuccess(t *testing.T) {
	fake := newFakeHubSpot()
	fake.handle("/crm/v3/objects/contacts", func(w http.ResponseWriter, body map[string]any) {
		respondJSON(w, http.StatusCreated, map[string]string{"id": "contact-1"})
	})
	fake.handle("/crm/v3/objects/deals", func(w http.ResponseWriter, body map[string]any) {
		respondJSON(w, http.StatusInternalServerError, map[string]string{"message": "boom"})
	})
	client := newTestClient(t, fake)

	result := client.ProcessOpportunity(context.Background(), map[string]any{
		"id": "opp-1",
		"job": map[string]any{
			"title":  "Go developer",
			"client": map[string]any{"email": "client@example.com"},
		},
	})

	assert.False(t, result.Success)
	assert.Equal(t, "contact-1", result.ContactID)
	assert.Empty(t, result.DealID)
}

func TestProcessOpportunity_HourlyRateFallback(t *testing.T) {
	fake := fakeWithContactAndDeal()
	client := newTestClient(t, fake)

	client.ProcessOpportunity(context.Background(), map[string]any{
		"id": "opp-1",
		"job": map[string]any{
			"title":      "Hourly job",
			"hourlyRate": 45.5,
		},
	})

	deals := fake.requests("/crm/v3/objects/deals")
	require.Len(t, deals, 1)
	props := deals[0]["properties"].(map[string]any)
	assert.Equal(t, "45.5", props["amount"])
}
