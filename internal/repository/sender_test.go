package repository

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nimbuschat/nimbus-backend/internal/models"
)

func TestSenderMapping(t *testing.T) {
	assert.Equal(t, "assistant", StoredSender(models.SenderBot))
	assert.Equal(t, "user", StoredSender(models.SenderUser))

	assert.Equal(t, models.SenderBot, LocalSender("assistant"))
	assert.Equal(t, models.SenderUser, LocalSender("user"))
	// Unknown labels degrade to user rather than leaking remote vocabulary.
	assert.Equal(t, models.SenderUser, LocalSender("system"))
}

func TestMessageToModel(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	row := Message{
		ID:         "m1",
		SessionID:  "s1",
		Content:    "hello",
		Sender:     "assistant",
		CreatedAt:  ts,
		ModelUsed:  sql.NullString{String: "gpt-4o", Valid: true},
		TokensUsed: sql.NullInt64{Int64: 42, Valid: true},
	}

	msg := row.ToModel()
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "s1", msg.SessionID)
	assert.Equal(t, models.SenderBot, msg.Sender)
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, ts, msg.Timestamp)
	assert.Equal(t, "gpt-4o", msg.Model)
	assert.Equal(t, 42, msg.Tokens)

	// Null model/tokens stay zero-valued.
	plain := Message{ID: "m2", Sender: "user", Content: "hi", CreatedAt: ts}
	assert.Empty(t, plain.ToModel().Model)
	assert.Zero(t, plain.ToModel().Tokens)
}
