package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/gigradar-integrations/internal/logger"
)

// Дефолты для создаваемых deal.
const (
	DefaultDealStage = "appointmentscheduled"
	DefaultPipeline  = "default"

	defaultBaseURL = "https://api.hubapi.com"

	// HUBSPOT_DEFINED тип ассоциации contact → deal.
	contactToDealAssociationTypeID = 4

	placeholderEmailDomain = "gigradar.placeholder"
	unknownCompanyName     = "Unknown Company"
)

// ErrMissingAccessToken возвращается при попытке создать клиента без токена.
var ErrMissingAccessToken = errors.New("hubspot: HUBSPOT_ACCESS_TOKEN не задан")

// Client выполняет запросы к HubSpot CRM v3 API.
// Все публичные методы best-effort: ошибка API логируется и превращается
// в пустой идентификатор, а не в ошибку запроса.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
}

// New создаёт клиента HubSpot. baseURL пустой: используется продакшн API.
func New(accessToken, baseURL string) (*Client, error) {
	if accessToken == "" {
		return nil, ErrMissingAccessToken
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		accessToken: accessToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// ContactProps: опциональные свойства контакта.
type ContactProps struct {
	FirstName string
	LastName  string
	Phone     string
	Company   string
	Extra     map[string]string
}

// DealProps: опциональные свойства deal.
type DealProps struct {
	Amount    string
	CloseDate string
	Stage     string
	Pipeline  string
	ContactID string
	Extra     map[string]string
}

type objectResponse struct {
	ID string `json:"id"`
}

type searchResponse struct {
	Total   int              `json:"total"`
	Results []objectResponse `json:"results"`
}

// CreateContact создаёт контакт, email обязателен.
// При конфликте (контакт уже существует) возвращает ID существующего
// через поиск по email. Любая другая ошибка: пустой ID.
func (c *Client) CreateContact(ctx context.Context, email string, props ContactProps) string {
	properties := map[string]string{"email": email}
	if props.FirstName != "" {
		properties["firstname"] = props.FirstName
	}
	if props.LastName != "" {
		properties["lastname"] = props.LastName
	}
	if props.Phone != "" {
		properties["phone"] = props.Phone
	}
	if props.Company != "" {
		properties["company"] = props.Company
	}
	for k, v := range props.Extra {
		properties[k] = v
	}

	var contact objectResponse
	status, err := c.post(ctx, "/crm/v3/objects/contacts", map[string]any{"properties": properties}, &contact)
	if err != nil {
		if status == http.StatusConflict {
			// Контакт с таким email уже существует: ищем его.
			logger.Log.WithField("email", email).Info("hubspot: контакт уже существует, ищем по email")
			return c.FindContactByEmail(ctx, email)
		}
		logger.Log.WithFields(logrus.Fields{"email": email, "status": status}).
			WithError(err).Error("hubspot: ошибка создания контакта")
		return ""
	}

	logger.Log.WithFields(logrus.Fields{"contact_id": contact.ID, "email": email}).
		Info("hubspot: контакт создан")
	return contact.ID
}

// FindContactByEmail ищет контакт по точному совпадению email.
// Возвращает ID первого результата или пустую строку.
func (c *Client) FindContactByEmail(ctx context.Context, email string) string {
	request := map[string]any{
		"filterGroups": []map[string]any{{
			"filters": []map[string]any{{
				"propertyName": "email",
				"operator":     "EQ",
				"value":        email,
			}},
		}},
		"properties": []string{"email"},
		"limit":      1,
	}

	var result searchResponse
	status, err := c.post(ctx, "/crm/v3/objects/contacts/search", request, &result)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"email": email, "status": status}).
			WithError(err).Error("hubspot: ошибка поиска контакта")
		return ""
	}

	if len(result.Results) == 0 {
		return ""
	}
	return result.Results[0].ID
}

// CreateDeal создаёт deal и, если указан контакт, ассоциирует deal с ним.
// Ошибка ассоциации логируется, но не влияет на возвращаемый ID.
func (c *Client) CreateDeal(ctx context.Context, dealName string, props DealProps) string {
	properties := map[string]string{"dealname": dealName}
	if props.Amount != "" {
		properties["amount"] = props.Amount
	}
	if props.CloseDate != "" {
		properties["closedate"] = props.CloseDate
	}
	properties["dealstage"] = props.Stage
	if props.Stage == "" {
		properties["dealstage"] = DefaultDealStage
	}
	properties["pipeline"] = props.Pipeline
	if props.Pipeline == "" {
		properties["pipeline"] = DefaultPipeline
	}
	for k, v := range props.Extra {
		properties[k] = v
	}

	var deal objectResponse
	status, err := c.post(ctx, "/crm/v3/objects/deals", map[string]any{"properties": properties}, &deal)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"deal_name": dealName, "status": status}).
			WithError(err).Error("hubspot: ошибка создания deal")
		return ""
	}

	logger.Log.WithFields(logrus.Fields{"deal_id": deal.ID, "deal_name": dealName}).
		Info("hubspot: deal создан")

	if props.ContactID != "" {
		if err := c.associateDealToContact(ctx, deal.ID, props.ContactID); err != nil {
			logger.Log.WithFields(logrus.Fields{"deal_id": deal.ID, "contact_id": props.ContactID}).
				WithError(err).Error("hubspot: ошибка ассоциации deal с контактом")
		}
	}

	return deal.ID
}

// associateDealToContact связывает deal с контактом через batch association API.
func (c *Client) associateDealToContact(ctx context.Context, dealID, contactID string) error {
	request := map[string]any{
		"inputs": []map[string]any{{
			"from": map[string]string{"id": contactID},
			"to":   map[string]string{"id": dealID},
			"types": []map[string]any{{
				"associationCategory": "HUBSPOT_DEFINED",
				"associationTypeId":   contactToDealAssociationTypeID,
			}},
		}},
	}

	_, err := c.post(ctx, "/crm/v4/associations/contacts/deals/batch/create", request, nil)
	return err
}

// post выполняет POST запрос и декодирует JSON ответ в out (если задан).
// Возвращает HTTP статус и ошибку для кодов >= 400.
func (c *Client) post(ctx context.Context, path string, payload any, out any) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errorBody map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&errorBody)
		return resp.StatusCode, fmt.Errorf("hubspot: код ответа %d: %v", resp.StatusCode, errorBody)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}

	return resp.StatusCode, nil
}
