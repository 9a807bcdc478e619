package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nimbuschat/nimbus-backend/internal/models"
)

// Format selects a transcript output format.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
	FormatCSV  Format = "csv"
)

// ErrUnknownFormat is returned for unsupported export formats.
var ErrUnknownFormat = fmt.Errorf("unknown export format")

// Transcript renders a session's messages in the requested format. It is
// pure and synchronous: everything works off the in-memory message list,
// with no remote dependency.
func Transcript(format Format, session models.Session, messages []models.Message) ([]byte, error) {
	switch format {
	case FormatJSON:
		return renderJSON(session, messages)
	case FormatText:
		return []byte(renderText(session, messages)), nil
	case FormatCSV:
		return renderCSV(messages)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// ContentType returns the MIME type for a format.
func ContentType(format Format) string {
	switch format {
	case FormatJSON:
		return "application/json"
	case FormatCSV:
		return "text/csv"
	default:
		return "text/plain; charset=utf-8"
	}
}

type jsonTranscript struct {
	Session  models.Session   `json:"session"`
	Messages []models.Message `json:"messages"`
	Exported time.Time        `json:"exported_at"`
}

func renderJSON(session models.Session, messages []models.Message) ([]byte, error) {
	return json.MarshalIndent(jsonTranscript{
		Session:  session,
		Messages: messages,
		Exported: time.Now(),
	}, "", "  ")
}

func renderText(session models.Session, messages []models.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", session.Title)
	for _, m := range messages {
		label := "You"
		if m.Sender == models.SenderBot {
			label = "Assistant"
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", m.Timestamp.Format(time.RFC3339), label, m.Text)
	}
	return b.String()
}

func renderCSV(messages []models.Message) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"timestamp", "sender", "text", "model", "tokens"}); err != nil {
		return nil, err
	}
	for _, m := range messages {
		tokens := ""
		if m.Tokens > 0 {
			tokens = fmt.Sprintf("%d", m.Tokens)
		}
		record := []string{
			m.Timestamp.Format(time.RFC3339),
			string(m.Sender),
			m.Text,
			m.Model,
			tokens,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
