package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/sydlexius/linernotes/internal/event"
)

const (
	maxRetries     = 3
	requestTimeout = 10 * time.Second
)

// Dispatcher delivers events to the webhooks subscribed to them.
type Dispatcher struct {
	hooks      []Webhook
	httpClient *http.Client
	baseDelay  time.Duration
	wg         sync.WaitGroup
	logger     *slog.Logger
}

// NewDispatcher creates a Dispatcher. hooks must already be validated.
func NewDispatcher(hooks []Webhook, logger *slog.Logger) *Dispatcher {
	return NewDispatcherWithHTTPClient(hooks, &http.Client{Timeout: requestTimeout}, logger)
}

// NewDispatcherWithHTTPClient creates a dispatcher with a custom HTTP client (for testing).
func NewDispatcherWithHTTPClient(hooks []Webhook, httpClient *http.Client, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		hooks:      hooks,
		httpClient: httpClient,
		baseDelay:  time.Second,
		logger:     logger.With(slog.String("component", "webhook-dispatcher")),
	}
}

// Subscribe registers the dispatcher for every event type any webhook wants.
func (d *Dispatcher) Subscribe(bus *event.Bus) {
	seen := make(map[event.Type]bool)
	for _, w := range d.hooks {
		for _, t := range w.Events {
			if !seen[t] {
				seen[t] = true
				bus.Subscribe(t, d.HandleEvent)
			}
		}
	}
}

// HandleEvent is an event.Handler that delivers e to each matching webhook
// in the background.
func (d *Dispatcher) HandleEvent(e event.Event) {
	for i := range d.hooks {
		w := &d.hooks[i]
		if !w.wants(e.Type) {
			continue
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.deliver(w, e)
		}()
	}
}

// Wait blocks until in-flight deliveries finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		d.logger.Warn("abandoning pending webhook deliveries")
	}
}

func (d *Dispatcher) deliver(w *Webhook, e event.Event) {
	body, contentType := formatPayload(w, e)

	attempt := 0
	b := retry.WithMaxRetries(maxRetries-1, retry.NewExponential(d.baseDelay))
	err := retry.Do(context.Background(), b, func(ctx context.Context) error {
		attempt++
		if err := d.send(ctx, w.URL, body, contentType); err != nil {
			d.logger.Warn("webhook delivery failed",
				"webhook", w.Name,
				"event", string(e.Type),
				"attempt", attempt,
				"error", err,
			)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		d.logger.Error("webhook delivery exhausted retries",
			"webhook", w.Name,
			"event", string(e.Type),
			"error", err,
		)
		return
	}
	d.logger.Debug("webhook delivered", "webhook", w.Name, "event", string(e.Type), "attempt", attempt)
}

func (d *Dispatcher) send(ctx context.Context, url string, body []byte, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", "LinerNotes-Webhook/1.0")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()        //nolint:errcheck
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	if resp.StatusCode >= 400 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
