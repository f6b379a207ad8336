package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	mail "github.com/go-mail/mail/v2"

	"github.com/helixir/oa-compliance-service/internal/config"
	"github.com/helixir/oa-compliance-service/internal/domain"
)

// Mail subjects.
const (
	SubjectUploaded = "[oac] Successful upload"
	SubjectComplete = "[oac] Processing complete"
)

const uploadedBody = `Thank you for submitting your spreadsheet %s for compliance checking.

Your upload was successful and is now queued for processing. You can follow its progress at:

%s

We will email you again when processing is complete.
`

const completeBody = `Compliance checking of your spreadsheet %s is complete.

You can see the final status and download the results from:

%s
`

// Mailer emails the submitter when a job is uploaded and when it completes.
type Mailer struct {
	cfg  config.MailConfig
	send func(*mail.Message) error
}

// NewMailer creates a mailer that sends through the configured SMTP server
// with mandatory STARTTLS.
func NewMailer(cfg config.MailConfig) *Mailer {
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.StartTLSPolicy = mail.MandatoryStartTLS
	d.TLSConfig = &tls.Config{ServerName: cfg.Host}
	d.Timeout = 30 * time.Second

	return &Mailer{
		cfg: cfg,
		send: func(m *mail.Message) error {
			return d.DialAndSend(m)
		},
	}
}

// Notify sends the mail for job.submitted and job.completed. Other events,
// disabled mail and jobs without a contact address are ignored.
func (m *Mailer) Notify(ctx context.Context, eventType string, job *domain.SpreadsheetJob) error {
	if !m.cfg.Enabled || job.ContactEmail == "" {
		return nil
	}

	url := ProgressURL(m.cfg.ServiceBaseURL, job.ID)

	var subject, body string
	switch eventType {
	case domain.EventTypeJobSubmitted:
		subject, body = SubjectUploaded, fmt.Sprintf(uploadedBody, job.Filename, url)
	case domain.EventTypeJobCompleted:
		subject, body = SubjectComplete, fmt.Sprintf(completeBody, job.Filename, url)
	default:
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", job.ContactEmail)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := m.send(msg); err != nil {
		return fmt.Errorf("send %q to %s: %w", subject, job.ContactEmail, err)
	}
	return nil
}
