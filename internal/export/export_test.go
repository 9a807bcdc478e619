package export

import (
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbuschat/nimbus-backend/internal/models"
)

func sampleTranscript() (models.Session, []models.Message) {
	ts := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	session := models.Session{ID: "s1", Title: "Trip planning", CreatedAt: ts, UpdatedAt: ts}
	messages := []models.Message{
		{ID: "m1", SessionID: "s1", Sender: models.SenderUser, Text: "hi", Timestamp: ts},
		{ID: "m2", SessionID: "s1", Sender: models.SenderBot, Text: "hello, \"friend\"", Timestamp: ts.Add(time.Minute), Model: "gpt-4o", Tokens: 12},
	}
	return session, messages
}

func TestTranscript_JSON(t *testing.T) {
	session, messages := sampleTranscript()

	out, err := Transcript(FormatJSON, session, messages)
	require.NoError(t, err)

	var decoded struct {
		Session  models.Session   `json:"session"`
		Messages []models.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "Trip planning", decoded.Session.Title)
	require.Len(t, decoded.Messages, 2)
	assert.Equal(t, models.SenderUser, decoded.Messages[0].Sender)
	assert.Equal(t, models.SenderBot, decoded.Messages[1].Sender)
}

func TestTranscript_Text(t *testing.T) {
	session, messages := sampleTranscript()

	out, err := Transcript(FormatText, session, messages)
	require.NoError(t, err)

	text := string(out)
	assert.Contains(t, text, "# Trip planning")
	assert.Contains(t, text, "You: hi")
	assert.Contains(t, text, "Assistant: hello")
	// Order preserved.
	assert.Less(t, strings.Index(text, "You: hi"), strings.Index(text, "Assistant:"))
}

func TestTranscript_CSV(t *testing.T) {
	session, messages := sampleTranscript()

	out, err := Transcript(FormatCSV, session, messages)
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(string(out))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"timestamp", "sender", "text", "model", "tokens"}, records[0])
	assert.Equal(t, "user", records[1][1])
	assert.Equal(t, "bot", records[2][1])
	assert.Equal(t, `hello, "friend"`, records[2][2], "quoting survives the round trip")
	assert.Equal(t, "12", records[2][4])
}

func TestTranscript_UnknownFormat(t *testing.T) {
	session, messages := sampleTranscript()
	_, err := Transcript(Format("pdf"), session, messages)
	assert.ErrorIs(t, err, ErrUnknownFormat)
}
