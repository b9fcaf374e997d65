package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intex-outreach/backend/internal/metrics"
	"github.com/intex-outreach/backend/internal/models"
	"github.com/intex-outreach/backend/pkg/mailer"
	"github.com/intex-outreach/backend/pkg/queue"
)

// memJobs mimics the Redis queue: retries go to the back of the list and jobs
// past queue.MaxRetries go to the dead-letter list.
type memJobs struct {
	mu     sync.Mutex
	ready  []*queue.Job
	dead   []*queue.Job
	cancel context.CancelFunc
}

func (q *memJobs) Dequeue(context.Context) (*queue.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ready) == 0 {
		q.cancel()
		return nil, nil
	}
	j := q.ready[0]
	q.ready = q.ready[1:]
	return j, nil
}

func (q *memJobs) Retry(_ context.Context, j *queue.Job) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j.Attempt++
	if j.Attempt >= queue.MaxRetries {
		q.dead = append(q.dead, j)
		return true, nil
	}
	q.ready = append(q.ready, j)
	return false, nil
}

type fakeSender struct {
	fail map[string]bool
	sent []mailer.Message
}

func (s *fakeSender) Send(_ context.Context, m mailer.Message) error {
	if s.fail[m.To] {
		return errors.New("550 mailbox unavailable")
	}
	s.sent = append(s.sent, m)
	return nil
}

type memLogs struct{ rows []models.EmailLog }

func (l *memLogs) Insert(_ context.Context, e *models.EmailLog) error {
	l.rows = append(l.rows, *e)
	return nil
}

func emailJob(t *testing.T, id, to string) *queue.Job {
	body, err := json.Marshal(queue.EmailPayload{
		EmailType:      models.EmailTypeDonationReceipt,
		RecipientEmail: to,
		Subject:        "Thank you",
		BodyText:       "Thanks!",
	})
	require.NoError(t, err)
	return &queue.Job{ID: id, Type: queue.JobTypeEmail, Payload: body}
}

func TestProcessRecordsSentAttempt(t *testing.T) {
	sender := &fakeSender{}
	logs := &memLogs{}
	m := metrics.New()
	p := NewEmailProcessor(nil, sender, logs, m, nil)
	fixed := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	require.NoError(t, p.Process(context.Background(), emailJob(t, "j1", "ada@example.org")))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Thank you", sender.sent[0].Subject)
	require.Len(t, logs.rows, 1)
	assert.Equal(t, models.EmailLogStatusSent, logs.rows[0].Status)
	assert.Equal(t, 1, logs.rows[0].Attempt)
	assert.Equal(t, &fixed, logs.rows[0].SentAt)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmailsSent))
}

func TestProcessDropsUndecodableJob(t *testing.T) {
	logs := &memLogs{}
	p := NewEmailProcessor(nil, &fakeSender{}, logs, nil, nil)
	err := p.Process(context.Background(), &queue.Job{ID: "x", Type: "sms", Payload: []byte(`{}`)})
	assert.NoError(t, err)
	assert.Empty(t, logs.rows)
}

func TestRunRetriesThenDeadLetters(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	jobs := &memJobs{cancel: cancel, ready: []*queue.Job{
		emailJob(t, "ok", "ada@example.org"),
		emailJob(t, "bad", "bounce@example.org"),
	}}
	sender := &fakeSender{fail: map[string]bool{"bounce@example.org": true}}
	logs := &memLogs{}
	m := metrics.New()
	p := NewEmailProcessor(jobs, sender, logs, m, nil)
	p.backoff = time.Millisecond

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}

	assert.Len(t, sender.sent, 1)
	require.Len(t, jobs.dead, 1)
	assert.Equal(t, "bad", jobs.dead[0].ID)
	assert.Equal(t, queue.MaxRetries, jobs.dead[0].Attempt)

	var failed []int
	for _, r := range logs.rows {
		if r.Status == models.EmailLogStatusFailed {
			failed = append(failed, r.Attempt)
			assert.Equal(t, "550 mailbox unavailable", r.ErrorMessage)
		}
	}
	assert.Equal(t, []int{1, 2, 3}, failed)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.EmailsFailed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmailsSent))
}
