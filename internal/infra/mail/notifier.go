package mail

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gomail "github.com/wneessen/go-mail"

	"github.com/bryanwahyu/vindereg/internal/domain/vehicle"
)

// Options configure SMTP delivery.
type Options struct {
	Host     string
	Port     int
	Username string
	Password string
	UseTLS   bool
	Timeout  time.Duration

	Sender string
	// Recipients is the default list; Success/Failure override per category
	// when non-empty.
	Recipients        []string
	SuccessRecipients []string
	FailureRecipients []string

	// SubjectPrefix tags every subject, e.g. "[vindereg-prod] ".
	SubjectPrefix string
}

// Notifier delivers run summaries and alerts over SMTP.
type Notifier struct {
	opts Options
	log  *slog.Logger
}

func New(opts Options, log *slog.Logger) *Notifier {
	return &Notifier{opts: opts, log: log}
}

// Send delivers one plain-text message to the category's recipient list.
func (n *Notifier) Send(ctx context.Context, category vehicle.NotifyCategory, subject, body string) error {
	targets := n.recipients(category)
	if len(targets) == 0 {
		return fmt.Errorf("no recipients configured for category %s", category)
	}

	msg := gomail.NewMsg()
	if err := msg.From(n.opts.Sender); err != nil {
		return fmt.Errorf("setting sender: %w", err)
	}
	if err := msg.To(targets...); err != nil {
		return fmt.Errorf("setting recipients: %w", err)
	}
	msg.Subject(n.opts.SubjectPrefix + subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)

	clientOpts := []gomail.Option{
		gomail.WithPort(n.opts.Port),
		gomail.WithTimeout(n.opts.Timeout),
	}
	if n.opts.UseTLS {
		clientOpts = append(clientOpts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	} else {
		clientOpts = append(clientOpts, gomail.WithTLSPolicy(gomail.NoTLS))
	}
	if n.opts.Username != "" {
		clientOpts = append(clientOpts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(n.opts.Username),
			gomail.WithPassword(n.opts.Password),
		)
	}

	client, err := gomail.NewClient(n.opts.Host, clientOpts...)
	if err != nil {
		return fmt.Errorf("building SMTP client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending %q: %w", subject, err)
	}
	n.log.Info("notification sent", "subject", subject, "recipients", len(targets))
	return nil
}

func (n *Notifier) recipients(category vehicle.NotifyCategory) []string {
	switch category {
	case vehicle.NotifySuccess:
		if len(n.opts.SuccessRecipients) > 0 {
			return n.opts.SuccessRecipients
		}
	case vehicle.NotifyFailure:
		if len(n.opts.FailureRecipients) > 0 {
			return n.opts.FailureRecipients
		}
	}
	return n.opts.Recipients
}
