package identity

import (
	"context"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	gomail "github.com/wneessen/go-mail"
)

// SMTPConfig configures the SMTP invitation sender
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
}

// SMTPInviter delivers invitation e-mails over SMTP.
// It implements Inviter for deployments whose identity provider does not send invites.
type SMTPInviter struct {
	cfg    SMTPConfig
	logger logrus.FieldLogger
}

const subjectInvitation = "You have been invited to join %s"

var invitationTemplate = template.Must(template.New("invitation").Parse(`<!DOCTYPE html>
<html><body>
<p>Hello{{if .FullName}} {{.FullName}}{{end}},</p>
<p>You have been invited to join <strong>{{.TenantName}}</strong> as {{.Role}}.</p>
<p><a href="{{.AcceptURL}}">Accept invitation</a></p>
</body></html>`))

type invitationData struct {
	FullName   string
	TenantName string
	Role       string
	AcceptURL  string
}

// NewSMTPInviter creates a new SMTP invitation sender
func NewSMTPInviter(cfg SMTPConfig, logger logrus.FieldLogger) *SMTPInviter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &SMTPInviter{cfg: cfg, logger: logger.WithField("component", "smtp_inviter")}
}

// SendInvitation renders and sends the invitation e-mail
func (s *SMTPInviter) SendInvitation(ctx context.Context, email, redirectURL string, metadata map[string]interface{}) error {
	msg, err := s.buildMessage(email, redirectURL, metadata)
	if err != nil {
		return err
	}

	client, err := gomail.NewClient(s.cfg.Host,
		gomail.WithPort(s.cfg.Port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.cfg.Username),
		gomail.WithPassword(s.cfg.Password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	s.logger.WithField("email", email).Info("invitation e-mail sent")
	return nil
}

// buildMessage renders the invitation without sending it
func (s *SMTPInviter) buildMessage(email, redirectURL string, metadata map[string]interface{}) (*gomail.Msg, error) {
	tenantName := metadataString(metadata, "tenant_name")
	if tenantName == "" {
		tenantName = "your team"
	}

	acceptURL, err := withQuery(redirectURL, map[string]string{
		"tenant_id": metadataString(metadata, "tenant_id"),
		"email":     email,
	})
	if err != nil {
		return nil, err
	}

	var body strings.Builder
	if err := invitationTemplate.Execute(&body, invitationData{
		FullName:   metadataString(metadata, "full_name"),
		TenantName: tenantName,
		Role:       metadataString(metadata, "role"),
		AcceptURL:  acceptURL,
	}); err != nil {
		return nil, fmt.Errorf("failed to render invitation: %w", err)
	}

	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.cfg.FromName, s.cfg.FromEmail); err != nil {
		return nil, fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(email); err != nil {
		return nil, fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(fmt.Sprintf(subjectInvitation, tenantName))
	msg.SetBodyString(gomail.TypeTextHTML, body.String())
	return msg, nil
}

func withQuery(raw string, params map[string]string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid redirect URL: %w", err)
	}
	q := u.Query()
	for k, v := range params {
		if v != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
