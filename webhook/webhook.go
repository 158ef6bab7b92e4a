// Package webhook delivers end-of-run reports to an HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/use-agent/rewardrunner/models"
)

// EventRunCompleted is sent once per account after its run ends.
const EventRunCompleted = "run.completed"

// SignatureHeader carries "sha256=<hex>" of the body when a secret is set.
const SignatureHeader = "X-Rewardrunner-Signature"

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string            `json:"type"`
	RunID     string            `json:"run_id"`
	Account   string            `json:"account"`
	Timestamp int64             `json:"timestamp"`
	Data      *models.RunReport `json:"data"`
}

// NewRunCompleted builds the run.completed event for report.
func NewRunCompleted(report *models.RunReport) *Event {
	return &Event{
		Type:      EventRunCompleted,
		RunID:     report.RunID,
		Account:   report.Account,
		Timestamp: time.Now().Unix(),
		Data:      report,
	}
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Notifier posts events to one endpoint. Async deliveries are tracked so
// shutdown can wait for them, or cut them short.
type Notifier struct {
	url    string
	secret string
	client *http.Client

	// delays are the waits before each async retry.
	delays []time.Duration

	// ctx bounds async deliveries; cancel ends their retries early.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Notifier. It returns nil when url is empty; a nil Notifier
// drops every event.
func New(url, secret string) *Notifier {
	if url == "" {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Notifier{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
		delays: []time.Duration{1 * time.Second, 5 * time.Second, 30 * time.Second},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Deliver sends event synchronously.
func (n *Notifier) Deliver(ctx context.Context, event *Event) error {
	if n == nil {
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Rewardrunner-Webhook/1.0")
	if n.secret != "" {
		req.Header.Set(SignatureHeader, Sign(n.secret, body))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// DeliverAsync sends event in the background, retrying after 1s, 5s and 30s.
func (n *Notifier) DeliverAsync(event *Event) {
	if n == nil {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		attempt := 0
		operation := func() error {
			attempt++
			ctx, cancel := context.WithTimeout(n.ctx, 10*time.Second)
			defer cancel()
			return n.Deliver(ctx, event)
		}
		notify := func(err error, next time.Duration) {
			slog.Warn("webhook delivery failed",
				"url", n.url,
				"event", event.Type,
				"run_id", event.RunID,
				"attempt", attempt,
				"next_delay", next,
				"error", err,
			)
		}

		b := backoff.WithContext(&schedule{delays: n.delays}, n.ctx)
		if err := backoff.RetryNotify(operation, b, notify); err != nil {
			slog.Error("webhook delivery gave up",
				"url", n.url,
				"event", event.Type,
				"run_id", event.RunID,
				"attempts", attempt,
				"error", err,
			)
			return
		}
		slog.Info("webhook delivered",
			"url", n.url,
			"event", event.Type,
			"account", event.Account,
			"run_id", event.RunID,
			"attempt", attempt,
		)
	}()
}

// Wait blocks until pending async deliveries finish. When ctx ends first,
// outstanding retries are cancelled and Wait returns ctx.Err() once they
// have stopped. Async deliveries made after that fail immediately.
func (n *Notifier) Wait(ctx context.Context) error {
	if n == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		n.cancel()
		<-done
		return ctx.Err()
	}
}

// schedule is a backoff.BackOff over a fixed list of delays.
type schedule struct {
	delays []time.Duration
	next   int
}

func (s *schedule) NextBackOff() time.Duration {
	if s.next >= len(s.delays) {
		return backoff.Stop
	}
	d := s.delays[s.next]
	s.next++
	return d
}

func (s *schedule) Reset() { s.next = 0 }
