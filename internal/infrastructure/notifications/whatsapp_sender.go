package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/entities"
	apperrors "github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/pkg/errors"
)

const defaultWhatsAppBaseURL = "https://graph.facebook.com/v18.0"

// WhatsAppCloudSender delivers the SMS channel through the WhatsApp Cloud API,
// for deployments where members are reached on WhatsApp instead of SMS.
type WhatsAppCloudSender struct {
	accessToken   string
	phoneNumberID string
	baseURL       string
	httpClient    *http.Client
}

// NewWhatsAppCloudSender creates a new WhatsApp sender
func NewWhatsAppCloudSender(accessToken, phoneNumberID, baseURL string) (*WhatsAppCloudSender, error) {
	if accessToken == "" || phoneNumberID == "" {
		return nil, fmt.Errorf("whatsapp access token and phone number id must be set")
	}
	if baseURL == "" {
		baseURL = defaultWhatsAppBaseURL
	}
	return &WhatsAppCloudSender{
		accessToken:   accessToken,
		phoneNumberID: phoneNumberID,
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type whatsAppText struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type whatsAppMessage struct {
	MessagingProduct string       `json:"messaging_product"`
	RecipientType    string       `json:"recipient_type"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             whatsAppText `json:"text"`
}

// Send delivers msg as a plain text message. The API wants the number
// without the leading plus.
func (w *WhatsAppCloudSender) Send(ctx context.Context, msg *entities.Message) error {
	if msg.Channel != entities.ChannelSMS {
		return apperrors.NewInternalError(fmt.Sprintf("whatsapp cannot deliver %s messages", msg.Channel), nil)
	}

	payload, err := json.Marshal(whatsAppMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               strings.TrimPrefix(msg.Recipient, "+"),
		Type:             "text",
		Text:             whatsAppText{Body: msg.Body},
	})
	if err != nil {
		return apperrors.NewInternalError("failed to marshal whatsapp message", err)
	}

	url := fmt.Sprintf("%s/%s/messages", w.baseURL, w.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return apperrors.NewInternalError("failed to create whatsapp request", err)
	}
	req.Header.Set("Authorization", "Bearer "+w.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return apperrors.NewExternalError("whatsapp request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return apperrors.NewExternalError("failed to read whatsapp response", err)
	}

	if resp.StatusCode != http.StatusOK {
		reason := gjson.GetBytes(body, "error.message").String()
		if reason == "" {
			reason = http.StatusText(resp.StatusCode)
		}
		return apperrors.NewExternalError(
			fmt.Sprintf("whatsapp api error (status %d)", resp.StatusCode),
			fmt.Errorf("%s", reason),
		)
	}

	if gjson.GetBytes(body, "messages.0.id").String() == "" {
		return apperrors.NewExternalError("no message id in whatsapp response", nil)
	}
	return nil
}
