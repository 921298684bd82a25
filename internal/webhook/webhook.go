package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	standardwebhooks "github.com/standard-webhooks/standard-webhooks/libraries/go"
)

const (
	EventApplied  = "migration.applied"
	EventFailed   = "migration.failed"
	EventReverted = "migration.reverted"
)

// Notifier posts migration events to a single endpoint. All events of one
// Notifier share a run ID so receivers can group them.
type Notifier struct {
	url         string
	secret      string
	events      map[string]bool
	runID       string
	client      *http.Client
	retryDelays []time.Duration
	sem         chan struct{}
	wg          sync.WaitGroup
	logger      *slog.Logger
}

// NewNotifier creates a Notifier for url. An empty events list subscribes to
// every event.
func NewNotifier(url, secret string, events []string) *Notifier {
	n := &Notifier{
		url:         url,
		secret:      secret,
		runID:       uuid.NewString(),
		client:      newClient(),
		retryDelays: []time.Duration{time.Second, 5 * time.Second, 15 * time.Second},
		sem:         make(chan struct{}, 4),
		logger:      slog.Default(),
	}
	if len(events) > 0 {
		n.events = make(map[string]bool, len(events))
		for _, ev := range events {
			n.events[ev] = true
		}
	}
	return n
}

// SetClient overrides the HTTP client used for webhook delivery.
func (n *Notifier) SetClient(c *http.Client) { n.client = c }

func (n *Notifier) SetLogger(l *slog.Logger) { n.logger = l }

// RunID identifies this process's migration run in every payload.
func (n *Notifier) RunID() string { return n.runID }

// Fire sends an event asynchronously. It is a no-op for a Notifier without a
// URL or for events outside the configured filter.
func (n *Notifier) Fire(event string, data map[string]any) {
	if n == nil || n.url == "" {
		return
	}
	if n.events != nil && !n.events[event] {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.deliver(event, data)
	}()
}

// Wait blocks until every fired event has been delivered or given up on.
func (n *Notifier) Wait() {
	if n == nil {
		return
	}
	n.wg.Wait()
}

func (n *Notifier) MigrationApplied(version string, took time.Duration) {
	n.Fire(EventApplied, map[string]any{"version": version, "duration_ms": took.Milliseconds()})
}

func (n *Notifier) MigrationFailed(version string, err error) {
	n.Fire(EventFailed, map[string]any{"version": version, "error": err.Error()})
}

func (n *Notifier) MigrationReverted(version string, took time.Duration) {
	n.Fire(EventReverted, map[string]any{"version": version, "duration_ms": took.Milliseconds()})
}

func (n *Notifier) deliver(event string, data map[string]any) {
	msgID := "msg_" + uuid.NewString()
	ts := time.Now().UTC()

	payload, err := json.Marshal(map[string]any{
		"type":      event,
		"timestamp": ts.Format(time.RFC3339),
		"run_id":    n.runID,
		"data":      data,
	})
	if err != nil {
		n.logger.Error("webhook: marshal payload", "err", err)
		return
	}

	maxAttempts := 1 + len(n.retryDelays)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		// Hold a slot only for the network call so sleeping retries don't
		// block other events.
		n.sem <- struct{}{}
		status, dur, sendErr := n.send(msgID, ts, payload)
		<-n.sem

		log := n.logger.With("event", event, "webhook_id", msgID, "attempt", attempt, "duration", dur)
		if sendErr == nil && status >= 200 && status < 300 {
			log.Debug("webhook delivered", "status", status)
			return
		}
		if sendErr != nil {
			log.Warn("webhook delivery failed", "err", sendErr)
		} else {
			log.Warn("webhook delivery rejected", "status", status)
		}

		// Don't retry on 406: the receiver is explicitly rejecting the payload.
		if sendErr == nil && status == http.StatusNotAcceptable {
			return
		}

		if attempt < maxAttempts {
			time.Sleep(n.retryDelays[attempt-1])
		}
	}
	n.logger.Error("webhook: giving up", "event", event, "webhook_id", msgID, "attempts", maxAttempts)
}

func (n *Notifier) send(msgID string, ts time.Time, payload []byte) (int, time.Duration, error) {
	req, err := http.NewRequest(http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("webhook-id", msgID)
	req.Header.Set("webhook-timestamp", fmt.Sprintf("%d", ts.Unix()))

	if n.secret != "" {
		wh, err := standardwebhooks.NewWebhook(strings.TrimPrefix(n.secret, "whsec_"))
		if err != nil {
			return 0, 0, fmt.Errorf("init webhook signer: %w", err)
		}
		sig, err := wh.Sign(msgID, ts, payload)
		if err != nil {
			return 0, 0, fmt.Errorf("sign webhook: %w", err)
		}
		req.Header.Set("webhook-signature", sig)
	}

	start := time.Now()
	resp, err := n.client.Do(req)
	dur := time.Since(start)
	if err != nil {
		return 0, dur, err
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	return resp.StatusCode, dur, nil
}

func newClient() *http.Client {
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	return &http.Client{
		Timeout: 10 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
		Transport: &http.Transport{
			DialContext: dialer.DialContext,
		},
	}
}
