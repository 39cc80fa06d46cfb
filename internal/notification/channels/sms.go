package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dealerdesk_backend/internal/notification/dispatch"
	"dealerdesk_backend/platform/config"
	"dealerdesk_backend/platform/phone"

	"golang.org/x/time/rate"
)

const maxSMSLength = 320

// SMSSink posts text messages to an HTTP SMS gateway.
type SMSSink struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
}

type smsRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// NewSMSSink returns nil when no gateway is configured.
func NewSMSSink(cfg config.SMSConfig) *SMSSink {
	if !cfg.IsSMSEnabled() {
		return nil
	}
	perSecond := cfg.GetSMSRatePerSecond()
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &SMSSink{
		baseURL: strings.TrimRight(cfg.GetSMSGatewayURL(), "/"),
		apiKey:  cfg.GetSMSGatewayKey(),
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (s *SMSSink) Send(ctx context.Context, d dispatch.Delivery) error {
	to, err := phone.ParseE164(d.Recipient.Phone, phone.DefaultRegion)
	if err != nil {
		return fmt.Errorf("sms recipient: %w", err)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("sms rate limit: %w", err)
	}

	body, err := json.Marshal(smsRequest{To: to, Body: smsText(d.Message)})
	if err != nil {
		return fmt.Errorf("marshal sms payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("sms request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("sms gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return nil
}

func smsText(m dispatch.Message) string {
	text := m.Title + ": " + m.Body
	if m.Link != "" {
		text += " " + m.Link
	}
	if r := []rune(text); len(r) > maxSMSLength {
		text = string(r[:maxSMSLength-1]) + "…"
	}
	return text
}
