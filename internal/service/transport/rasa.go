package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/rasa-chat/backend/internal/model/chat"
)

// DefaultWebhookURL is the Rasa REST channel of a locally running agent.
const DefaultWebhookURL = "http://localhost:5005/webhooks/rest/webhook"

const maxErrorBody = 4 << 10

type rasaRequest struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

type rasaReply struct {
	RecipientID string `json:"recipient_id"`
	Text        string `json:"text"`
}

// RasaClient talks to the Rasa REST channel webhook.
type RasaClient struct {
	webhookURL string
	httpClient *http.Client
}

// RasaOption customises a RasaClient.
type RasaOption func(*RasaClient)

// WithHTTPClient replaces the HTTP client, e.g. to set a request timeout.
func WithHTTPClient(client *http.Client) RasaOption {
	return func(c *RasaClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewRasaClient returns a client posting to webhookURL.
func NewRasaClient(webhookURL string, opts ...RasaOption) *RasaClient {
	if webhookURL == "" {
		webhookURL = DefaultWebhookURL
	}
	c := &RasaClient{
		webhookURL: webhookURL,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send posts {sender, message} and maps the reply array to fragments in order.
func (c *RasaClient) Send(ctx context.Context, senderID, text string) ([]chat.Fragment, error) {
	body, err := json.Marshal(rasaRequest{Sender: senderID, Message: text})
	if err != nil {
		return nil, errors.Wrap(err, "encode rasa request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build rasa request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "post rasa webhook")
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		log.Debug().
			Str("component", "transport").
			Int("status", resp.StatusCode).
			Bytes("body", detail).
			Msg("rasa webhook rejected message")
		return nil, errors.Wrapf(ErrStatus, "status %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read rasa reply")
	}

	var replies []rasaReply
	if err := json.Unmarshal(payload, &replies); err != nil {
		return nil, errors.Wrapf(ErrMalformed, "decode rasa reply: %v", err)
	}

	fragments := make([]chat.Fragment, 0, len(replies))
	for _, r := range replies {
		fragments = append(fragments, chat.Fragment{RecipientID: r.RecipientID, Text: r.Text})
	}
	return fragments, nil
}
