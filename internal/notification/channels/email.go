// Package channels holds the outbound sinks used by the notification dispatcher.
package channels

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net"
	"time"

	"dealerdesk_backend/internal/notification/dispatch"
	"dealerdesk_backend/platform/config"

	gomail "github.com/wneessen/go-mail"
)

//go:embed templates/*.html
var templateFS embed.FS

var emailTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type leadEmailData struct {
	Title         string
	RecipientName string
	Body          string
	Link          string
}

func renderLeadEmail(d dispatch.Delivery) (string, error) {
	var buf bytes.Buffer
	err := emailTemplates.ExecuteTemplate(&buf, "lead_notification.html", leadEmailData{
		Title:         d.Message.Title,
		RecipientName: d.Recipient.DisplayName(),
		Body:          d.Message.Body,
		Link:          d.Message.Link,
	})
	if err != nil {
		return "", fmt.Errorf("render email: %w", err)
	}
	return buf.String(), nil
}

// EmailSink delivers notifications over SMTP.
type EmailSink struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

// NewEmailSink returns nil when SMTP is not configured.
func NewEmailSink(cfg config.EmailConfig) *EmailSink {
	if !cfg.IsEmailEnabled() {
		return nil
	}
	return &EmailSink{
		host:      cfg.GetSMTPHost(),
		port:      cfg.GetSMTPPort(),
		username:  cfg.GetSMTPUsername(),
		password:  cfg.GetSMTPPassword(),
		fromName:  cfg.GetSMTPFromName(),
		fromEmail: cfg.GetSMTPFromEmail(),
	}
}

func (s *EmailSink) Send(ctx context.Context, d dispatch.Delivery) error {
	content, err := renderLeadEmail(d)
	if err != nil {
		return err
	}

	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.AddToFormat(d.Recipient.DisplayName(), d.Recipient.Email); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(d.Message.Title)
	msg.SetBodyString(gomail.TypeTextHTML, content)
	msg.AddAlternativeString(gomail.TypeTextPlain, d.Message.Body)

	opts := []gomail.Option{
		gomail.WithPort(s.port),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15 * time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, network, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, network, addr)
		}),
	}
	if s.username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.username),
			gomail.WithPassword(s.password),
		)
	}

	client, err := gomail.NewClient(s.host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
