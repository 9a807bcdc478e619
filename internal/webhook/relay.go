package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrInsecureURL is returned for non-HTTPS targets, rejected before any I/O.
var ErrInsecureURL = errors.New("webhook target must use https")

// Payload is the body POSTed to the user-supplied endpoint.
type Payload struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Relay delivers one-shot event notifications to a user-configured HTTPS
// endpoint. There is no queue and no retry; a failed delivery is the
// caller's to surface.
type Relay struct {
	client *http.Client
	log    *logrus.Entry
}

// NewRelay creates a relay. A nil client gets a 10 second default.
func NewRelay(client *http.Client) *Relay {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Relay{
		client: client,
		log:    logrus.WithField("component", "webhook"),
	}
}

// Send POSTs {event, timestamp, data} to the target URL. Non-HTTPS targets
// are rejected before any request is made; non-2xx responses are failures.
func (r *Relay) Send(ctx context.Context, target, event string, data interface{}) error {
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}
	if u.Scheme != "https" {
		return ErrInsecureURL
	}

	body, err := json.Marshal(Payload{Event: event, Timestamp: time.Now(), Data: data})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		r.log.WithFields(logrus.Fields{"event": event, "status": resp.StatusCode}).Warn("webhook delivery rejected")
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
