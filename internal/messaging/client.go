package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/inkworks/booking-broker/internal/events"
	"github.com/inkworks/booking-broker/pkg/logging"
)

// freeFormLimit is the channel's maximum free-form body length.
const freeFormLimit = 1024

// Client delivers one outbound payload to the channel provider and returns
// the provider message id.
type Client interface {
	Send(ctx context.Context, payload events.MessagePayload) (string, error)
}

// WhatsAppClient talks to the WhatsApp Cloud API.
type WhatsAppClient struct {
	httpClient    *http.Client
	baseURL       string
	phoneNumberID string
	accessToken   string
	dryRun        bool
	logger        *logging.Logger
}

type WhatsAppConfig struct {
	BaseURL       string
	PhoneNumberID string
	AccessToken   string
	DryRun        bool
}

func NewWhatsAppClient(cfg WhatsAppConfig, logger *logging.Logger) *WhatsAppClient {
	if logger == nil {
		logger = logging.Default()
	}
	return &WhatsAppClient{
		httpClient:    &http.Client{Timeout: 15 * time.Second},
		baseURL:       cfg.BaseURL,
		phoneNumberID: cfg.PhoneNumberID,
		accessToken:   cfg.AccessToken,
		dryRun:        cfg.DryRun,
		logger:        logger,
	}
}

type waTextBody struct {
	Body string `json:"body"`
}

type waLanguage struct {
	Code string `json:"code"`
}

type waParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type waComponent struct {
	Type       string        `json:"type"`
	Parameters []waParameter `json:"parameters"`
}

type waTemplate struct {
	Name       string        `json:"name"`
	Language   waLanguage    `json:"language"`
	Components []waComponent `json:"components,omitempty"`
}

type waRequest struct {
	MessagingProduct string      `json:"messaging_product"`
	To               string      `json:"to"`
	Type             string      `json:"type"`
	Text             *waTextBody `json:"text,omitempty"`
	Template         *waTemplate `json:"template,omitempty"`
}

type waResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Send posts either a free-form text or a pre-approved template message.
func (c *WhatsAppClient) Send(ctx context.Context, payload events.MessagePayload) (string, error) {
	req := waRequest{
		MessagingProduct: "whatsapp",
		To:               payload.To,
	}
	if payload.TemplateName != "" {
		req.Type = "template"
		req.Template = &waTemplate{
			Name:     payload.TemplateName,
			Language: waLanguage{Code: "en"},
		}
		if len(payload.TemplateParams) > 0 {
			req.Template.Components = []waComponent{{
				Type:       "body",
				Parameters: orderedParameters(payload.TemplateParams),
			}}
		}
	} else {
		body := payload.Body
		if len([]rune(body)) > freeFormLimit {
			body = string([]rune(body)[:freeFormLimit])
		}
		req.Type = "text"
		req.Text = &waTextBody{Body: body}
	}

	if c.dryRun {
		c.logger.Info("whatsapp dry-run send",
			"to", payload.To,
			"type", req.Type,
			"template", payload.TemplateName,
		)
		return "dry-run", nil
	}

	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("messaging: marshal send request: %w", err)
	}
	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("messaging: build send request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("messaging: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("messaging: read send response: %w", err)
	}

	var parsed waResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("messaging: decode send response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 300 || parsed.Error != nil {
		msg := "unknown error"
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return "", fmt.Errorf("messaging: provider rejected send (status %d): %s", resp.StatusCode, msg)
	}
	if len(parsed.Messages) == 0 {
		return "", fmt.Errorf("messaging: provider returned no message id")
	}
	return parsed.Messages[0].ID, nil
}

// orderedParameters flattens the ordered map {"1": ..., "2": ...} into the
// positional parameter list the template API expects.
func orderedParameters(params map[string]string) []waParameter {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, aerr := strconv.Atoi(keys[i])
		b, berr := strconv.Atoi(keys[j])
		if aerr == nil && berr == nil {
			return a < b
		}
		return keys[i] < keys[j]
	})
	out := make([]waParameter, 0, len(keys))
	for _, k := range keys {
		out = append(out, waParameter{Type: "text", Text: params[k]})
	}
	return out
}
