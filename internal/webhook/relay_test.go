package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelay_RejectsInsecureTargets(t *testing.T) {
	relay := NewRelay(nil)

	err := relay.Send(context.Background(), "http://example.com/hook", "message.created", nil)
	assert.ErrorIs(t, err, ErrInsecureURL)

	err = relay.Send(context.Background(), "ftp://example.com/hook", "message.created", nil)
	assert.ErrorIs(t, err, ErrInsecureURL)
}

func TestRelay_DeliversPayload(t *testing.T) {
	var received Payload
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	relay := NewRelay(srv.Client())
	err := relay.Send(context.Background(), srv.URL, "session.deleted", map[string]string{"id": "s1"})
	require.NoError(t, err)

	assert.Equal(t, "session.deleted", received.Event)
	assert.False(t, received.Timestamp.IsZero())
}

func TestRelay_NonSuccessIsFailure(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	relay := NewRelay(srv.Client())
	err := relay.Send(context.Background(), srv.URL, "message.created", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
