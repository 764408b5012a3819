package share

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"harvester/internal/core"
	"harvester/internal/log"
)

// DefaultCountryCode is prefixed to 10-digit contacts.
const DefaultCountryCode = "91"

// ErrNotConfigured is returned when direct delivery was requested without
// Cloud API credentials.
var ErrNotConfigured = errors.New("whatsapp delivery not configured")

// WhatsAppConfig holds the Cloud API settings.
type WhatsAppConfig struct {
	BaseURL       string
	APIVersion    string
	AccessToken   string
	PhoneNumberID string
	CountryCode   string
}

func (c WhatsAppConfig) Enabled() bool {
	return c.AccessToken != "" && c.PhoneNumberID != ""
}

// Sender delivers a bill text to a farmer.
type Sender interface {
	SendBill(ctx context.Context, r core.FarmerRecord) (messageID string, err error)
}

// WhatsAppClient is a resty-backed Sender using the WhatsApp Cloud API.
type WhatsAppClient struct {
	httpClient    *resty.Client
	phoneNumberID string
	countryCode   string
	logger        *log.Logger
}

func NewWhatsAppClient(cfg WhatsAppConfig) (*WhatsAppClient, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	if base == "" {
		base = "https://graph.facebook.com"
	}
	version := cfg.APIVersion
	if version == "" {
		version = "v21.0"
	}
	countryCode := cfg.CountryCode
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}

	client := resty.New().
		SetBaseURL(fmt.Sprintf("%s/%s", base, version)).
		SetHeader("Authorization", fmt.Sprintf("Bearer %s", cfg.AccessToken)).
		SetHeader("Content-Type", "application/json").
		SetTimeout(15 * time.Second)

	return &WhatsAppClient{
		httpClient:    client,
		phoneNumberID: cfg.PhoneNumberID,
		countryCode:   countryCode,
		logger:        log.WithComponent(log.ComponentShare),
	}, nil
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// SendBill sends the bill text to the farmer's contact number.
func (c *WhatsAppClient) SendBill(ctx context.Context, r core.FarmerRecord) (string, error) {
	to, err := Recipient(r.Contact, c.countryCode)
	if err != nil {
		return "", err
	}
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text": map[string]any{
			"body":        Text(r),
			"preview_url": false,
		},
	}

	result := new(sendResponse)
	apiErr := new(apiError)
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(result).
		SetError(apiErr).
		Post(fmt.Sprintf("%s/messages", c.phoneNumberID))
	if err != nil {
		return "", fmt.Errorf("send whatsapp message: %w", err)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		code := resp.StatusCode()
		if apiErr.Error.Code != 0 {
			code = apiErr.Error.Code
		}
		return "", fmt.Errorf("whatsapp api error: code=%d, message=%s", code, apiErr.Error.Message)
	}

	var id string
	if len(result.Messages) > 0 {
		id = result.Messages[0].ID
	}
	c.logger.InfoContext(ctx, "Bill sent",
		log.FieldRecordID, r.ID,
		log.FieldBillNo, int64(r.BillNo),
		"message_id", id)
	return id, nil
}
