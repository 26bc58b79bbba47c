// Package resend delivers alert emails through the Resend HTTP API.
package resend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JakeFAU/sellerguard/internal/monitor"
	"github.com/JakeFAU/sellerguard/internal/notify"
)

// DefaultBaseURL is the public Resend endpoint.
const DefaultBaseURL = "https://api.resend.com"

const maxResponseBytes = 1 << 20

// Config controls the sender.
type Config struct {
	APIKey     string
	BaseURL    string
	From       string
	To         []string
	Timeout    time.Duration
	HTTPClient *http.Client
	Clock      monitor.Clock
}

// Sender implements notify.Sender with one POST /emails per call.
type Sender struct {
	apiKey  string
	baseURL string
	from    string
	to      []string
	timeout time.Duration
	client  *http.Client
	clock   monitor.Clock
}

var _ notify.Sender = (*Sender)(nil)

// New validates cfg and builds a Sender.
func New(cfg Config) (*Sender, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("resend api key is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("resend sender address is required")
	}
	if len(cfg.To) == 0 {
		return nil, errors.New("at least one recipient is required")
	}
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Transport: http.DefaultTransport}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = wallClock{}
	}
	return &Sender{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(base, "/"),
		from:    cfg.From,
		to:      append([]string(nil), cfg.To...),
		timeout: cfg.Timeout,
		client:  client,
		clock:   clock,
	}, nil
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }

type emailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
}

type emailResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Send performs one delivery attempt.
func (s *Sender) Send(ctx context.Context, alert monitor.Alert) (monitor.DeliveryReceipt, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	msg := notify.Render(alert)
	payload, err := json.Marshal(emailRequest{From: s.from, To: s.to, Subject: msg.Subject, Text: msg.Text})
	if err != nil {
		return monitor.DeliveryReceipt{}, notify.NewPermanent(0, "encode email", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/emails", bytes.NewReader(payload))
	if err != nil {
		return monitor.DeliveryReceipt{}, notify.NewPermanent(0, "build email request", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return monitor.DeliveryReceipt{}, notify.NewTransient(0, "email provider unreachable", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return monitor.DeliveryReceipt{}, notify.NewTransient(resp.StatusCode, "read email provider response", err)
	}

	var parsed emailResponse
	_ = json.Unmarshal(body, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := parsed.Message
		if strings.TrimSpace(message) == "" {
			message = fmt.Sprintf("email provider returned status %d", resp.StatusCode)
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return monitor.DeliveryReceipt{}, notify.NewTransient(resp.StatusCode, message, nil)
		}
		return monitor.DeliveryReceipt{}, notify.NewPermanent(resp.StatusCode, message, nil)
	}

	return monitor.DeliveryReceipt{MessageID: parsed.ID, DeliveredAt: s.clock.Now()}, nil
}
