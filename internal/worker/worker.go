// Package worker delivers queued emails and records each attempt.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/intex-outreach/backend/internal/metrics"
	"github.com/intex-outreach/backend/internal/models"
	"github.com/intex-outreach/backend/pkg/mailer"
	"github.com/intex-outreach/backend/pkg/queue"
)

// Jobs is the email job source. *queue.Queue implements it.
type Jobs interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) (deadLettered bool, err error)
}

// Sender delivers one message. *mailer.SMTP implements it.
type Sender interface {
	Send(ctx context.Context, msg mailer.Message) error
}

// Logs records delivery attempts. *emaillogs.Repository implements it.
type Logs interface {
	Insert(ctx context.Context, l *models.EmailLog) error
}

// EmailProcessor sends email jobs, retrying failures until the job is dead-lettered.
type EmailProcessor struct {
	jobs    Jobs
	sender  Sender
	logs    Logs
	metrics *metrics.Metrics
	logger  *zap.Logger
	backoff time.Duration
	now     func() time.Time
}

// NewEmailProcessor creates an email processor. m may be nil.
func NewEmailProcessor(jobs Jobs, sender Sender, logs Logs, m *metrics.Metrics, logger *zap.Logger) *EmailProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailProcessor{
		jobs:    jobs,
		sender:  sender,
		logs:    logs,
		metrics: m,
		logger:  logger,
		backoff: queue.RetryBackoff,
		now:     time.Now,
	}
}

// Process sends one job and records the attempt. A returned error means the
// job should be retried.
func (p *EmailProcessor) Process(ctx context.Context, job *queue.Job) error {
	payload, err := job.Email()
	if err != nil {
		// Undecodable jobs can never succeed; drop them.
		p.logger.Error("discarding email job", zap.String("job_id", job.ID), zap.Error(err))
		return nil
	}
	entry := &models.EmailLog{
		JobID:          job.ID,
		EmailType:      payload.EmailType,
		RecipientEmail: payload.RecipientEmail,
		Subject:        payload.Subject,
		Attempt:        job.Attempt + 1,
	}
	sendErr := p.sender.Send(ctx, mailer.Message{
		To:       payload.RecipientEmail,
		ToName:   payload.RecipientName,
		Subject:  payload.Subject,
		BodyText: payload.BodyText,
		BodyHTML: payload.BodyHTML,
	})
	if sendErr != nil {
		entry.Status = models.EmailLogStatusFailed
		entry.ErrorMessage = sendErr.Error()
	} else {
		sent := p.now()
		entry.Status = models.EmailLogStatusSent
		entry.SentAt = &sent
	}
	p.metrics.EmailDelivered(sendErr == nil)
	if err := p.logs.Insert(ctx, entry); err != nil {
		p.logger.Warn("email log insert failed", zap.String("job_id", job.ID), zap.Error(err))
	}
	if sendErr != nil {
		return sendErr
	}
	p.logger.Info("email sent", zap.String("job_id", job.ID), zap.String("email_type", payload.EmailType))
	return nil
}

// Run dequeues and processes jobs until ctx is cancelled.
func (p *EmailProcessor) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			p.logger.Info("email worker stopping")
			return
		}
		job, err := p.jobs.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}
		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			dead, reErr := p.jobs.Retry(ctx, job)
			if reErr != nil {
				p.logger.Error("retry enqueue failed", zap.String("job_id", job.ID), zap.Error(reErr))
			}
			if !dead {
				p.sleep(ctx)
			}
		}
	}
}

func (p *EmailProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
