package queue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobEmailDecodes(t *testing.T) {
	body, err := json.Marshal(EmailPayload{EmailType: "donation_receipt", RecipientEmail: "a@b.org", Subject: "Thanks"})
	require.NoError(t, err)

	job := Job{ID: "1", Type: JobTypeEmail, Payload: body}
	p, err := job.Email()
	require.NoError(t, err)
	assert.Equal(t, "a@b.org", p.RecipientEmail)
	assert.Equal(t, "Thanks", p.Subject)
}

func TestJobEmailRejectsOtherTypes(t *testing.T) {
	job := Job{ID: "1", Type: "analytics", Payload: json.RawMessage(`{}`)}
	_, err := job.Email()
	assert.Error(t, err)
}

func TestJobEmailRejectsBadPayload(t *testing.T) {
	job := Job{ID: "1", Type: JobTypeEmail, Payload: json.RawMessage(`"nope"`)}
	_, err := job.Email()
	assert.Error(t, err)
}
