// Package notify turns domain events into queued emails. Enqueue failures are
// logged and never returned, so a committed write is never undone by mail.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/intex-outreach/backend/internal/models"
	"github.com/intex-outreach/backend/pkg/queue"
)

// Enqueuer accepts email jobs. *queue.Queue implements it.
type Enqueuer interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) (string, error)
}

// Notifier builds and enqueues portal emails.
type Notifier struct {
	q       Enqueuer
	orgName string
	logger  *zap.Logger
}

// New returns a Notifier. A nil Enqueuer disables email.
func New(q Enqueuer, orgName string, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{q: q, orgName: orgName, logger: logger}
}

// DonationReceipt queues a thank-you note for a donation.
func (n *Notifier) DonationReceipt(ctx context.Context, to, name string, d *models.Donation) {
	if n == nil || d == nil {
		return
	}
	greeting := "Hello"
	if name = strings.TrimSpace(name); name != "" {
		greeting = "Hello " + name
	}
	body := fmt.Sprintf("%s,\n\nThank you for your gift of $%.2f on %s to %s.\nYour support makes our programs possible.\n",
		greeting, d.Amount, d.DonatedOn.Format("January 2, 2006"), n.orgName)
	n.send(ctx, queue.EmailPayload{
		EmailType:      models.EmailTypeDonationReceipt,
		RecipientEmail: to,
		RecipientName:  name,
		Subject:        "Thank you for supporting " + n.orgName,
		BodyText:       body,
	})
}

// RegistrationConfirmation queues a confirmation for a new registration.
func (n *Notifier) RegistrationConfirmation(ctx context.Context, to, name string, ev *models.Event) {
	if n == nil || ev == nil {
		return
	}
	var b strings.Builder
	if name = strings.TrimSpace(name); name != "" {
		fmt.Fprintf(&b, "Hi %s,\n\n", name)
	} else {
		b.WriteString("Hi,\n\n")
	}
	fmt.Fprintf(&b, "You are registered for %s on %s.\n", ev.Template.Name, ev.StartsAt.Format("Mon Jan 2, 2006 at 3:04 PM"))
	if ev.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", ev.Location)
	}
	b.WriteString("\nSee you there!\n")
	n.send(ctx, queue.EmailPayload{
		EmailType:      models.EmailTypeRegistrationConfirmation,
		RecipientEmail: to,
		RecipientName:  name,
		Subject:        "Registration confirmed: " + ev.Template.Name,
		BodyText:       b.String(),
	})
}

func (n *Notifier) send(ctx context.Context, p queue.EmailPayload) {
	if n == nil || n.q == nil || strings.TrimSpace(p.RecipientEmail) == "" {
		return
	}
	// Detach from the request so a client disconnect does not drop the job.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	jobID, err := n.q.EnqueueEmail(ctx, p)
	if err != nil {
		n.logger.Warn("email enqueue failed", zap.String("email_type", p.EmailType), zap.Error(err))
		return
	}
	n.logger.Debug("email queued", zap.String("job_id", jobID), zap.String("email_type", p.EmailType))
}
