package services

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/recollector/auth-service/internal/config"
	"github.com/recollector/auth-service/internal/utils"
)

const organizationName = "Recollector"

// Mailer delivers password-reset messages.
type Mailer interface {
	SendPasswordReset(ctx context.Context, to, resetToken string, validFor time.Duration) error
}

// sendClient is the part of *sendgrid.Client the mailer needs.
type sendClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

type sendgridMailer struct {
	client  sendClient
	from    string
	appURL  string
	sandbox bool
}

// NewMailer returns a SendGrid mailer, or a log-only mailer when no API key
// is configured.
func NewMailer(cfg *config.Config) Mailer {
	if cfg.SendGridAPIKey == "" {
		utils.Logger.Warn("SENDGRID_API_KEY not set; password reset emails will only be logged")
		return logMailer{}
	}
	return &sendgridMailer{
		client:  sendgrid.NewSendClient(cfg.SendGridAPIKey),
		from:    cfg.SendGridFrom,
		appURL:  cfg.AppUrl,
		sandbox: cfg.LDFlag_SendgridSandboxMode,
	}
}

func (m *sendgridMailer) SendPasswordReset(ctx context.Context, to, resetToken string, validFor time.Duration) error {
	link := resetLink(m.appURL, to, resetToken)

	from := mail.NewEmail(organizationName, m.from)
	recipient := mail.NewEmail("", to)
	subject := organizationName + " - Password Reset"
	plainTextContent := fmt.Sprintf("Reset your password here: %s (code %s). The link expires in %d minutes.",
		link, resetToken, int(validFor.Minutes()))
	htmlContent := fmt.Sprintf(passwordResetEmailHTML, int(validFor.Minutes()), link, resetToken, time.Now().Year())
	message := mail.NewSingleEmail(from, subject, recipient, plainTextContent, htmlContent)

	if m.sandbox {
		ms := mail.NewMailSettings()
		ms.SetSandboxMode(mail.NewSetting(true))
		message.MailSettings = ms
	}

	resp, sendErr := m.client.SendWithContext(ctx, message)
	if sendErr != nil {
		utils.Logger.WithError(sendErr).Errorf("Failed to send password reset email to %s via SendGrid", to)
		return fmt.Errorf("%w: failed to send email via sendgrid: %v", utils.ErrExternalServiceFailure, sendErr)
	}
	if resp != nil && resp.StatusCode >= 400 {
		return fmt.Errorf("%w: sendgrid status %d", utils.ErrExternalServiceFailure, resp.StatusCode)
	}
	return nil
}

type logMailer struct{}

func (logMailer) SendPasswordReset(_ context.Context, to, resetToken string, validFor time.Duration) error {
	utils.Logger.WithField("to", to).Infof("password reset requested (valid %s); email delivery disabled", validFor)
	utils.Logger.Debugf("password reset token for %s: %s", to, resetToken)
	return nil
}

func resetLink(appURL, email, token string) string {
	q := url.Values{}
	q.Set("email", email)
	q.Set("token", token)
	return appURL + "/reset-password?" + q.Encode()
}
