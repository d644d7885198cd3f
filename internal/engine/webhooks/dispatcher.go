package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"zapgate/internal/platform/audit"
	"zapgate/internal/platform/models"
)

const maxResponseBytes = 1024

var (
	ErrNotConfigured = errors.New("webhooks: no destination url configured")
	ErrBreakerOpen   = errors.New("webhooks: circuit breaker open")
)

// Recorder persists one audit row per delivery attempt.
type Recorder interface {
	Record(ctx context.Context, e audit.Entry) error
}

// Delivery is a frozen, ready-to-sign request body.
type Delivery struct {
	Event         string
	CorrelationID string
	GabineteID    string
	Body          []byte
}

// Result describes one HTTP attempt. StatusCode is 0 when no response
// was received.
type Result struct {
	StatusCode int
	Response   []byte
	Error      string
	Latency    time.Duration
}

type Dispatcher struct {
	url      string
	secret   string
	client   *http.Client
	breaker  *Breaker
	recorder Recorder
	tracer   trace.Tracer
}

func NewDispatcher(url, secret string, timeout time.Duration, breaker *Breaker, recorder Recorder) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		url:      url,
		secret:   secret,
		client:   &http.Client{Timeout: timeout},
		breaker:  breaker,
		recorder: recorder,
		tracer:   otel.Tracer("zapgate/webhooks"),
	}
}

func (d *Dispatcher) Configured() bool {
	return d.url != ""
}

// Send POSTs the body once. A non-nil error means no attempt was made
// (unconfigured, breaker open); HTTP and network failures are reported in
// the Result and audited.
func (d *Dispatcher) Send(ctx context.Context, del Delivery) (*Result, error) {
	if !d.Configured() {
		return nil, ErrNotConfigured
	}
	if d.breaker != nil && !d.breaker.Allow() {
		return nil, ErrBreakerOpen
	}

	ctx, span := d.tracer.Start(ctx, "webhooks.Send", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("webhook.event", del.Event),
		attribute.String("webhook.correlation_id", del.CorrelationID),
	)

	res := d.do(ctx, del)

	span.SetAttributes(attribute.Int("http.response.status_code", res.StatusCode))
	if !isSuccess(res.StatusCode) {
		span.SetStatus(codes.Error, res.Error)
	}

	if d.breaker != nil {
		// 4xx is the receiver rejecting the payload, not the receiver being down.
		if res.StatusCode == 0 || res.StatusCode >= 500 {
			d.breaker.Failure()
		} else {
			d.breaker.Success()
		}
	}

	d.record(ctx, del, res)

	logEvent := log.Info()
	if !isSuccess(res.StatusCode) {
		logEvent = log.Warn().Str("error", res.Error)
	}
	logEvent.
		Str("event", del.Event).
		Str("correlation_id", del.CorrelationID).
		Int("status", res.StatusCode).
		Dur("latency", res.Latency).
		Msg("outbound webhook attempt")

	return res, nil
}

func (d *Dispatcher) do(ctx context.Context, del Delivery) *Result {
	start := time.Now()
	res := &Result{}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(del.Body))
	if err != nil {
		res.Error = err.Error()
		return res
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", Sign(d.secret, del.Body))
	req.Header.Set("Idempotency-Key", del.CorrelationID)
	req.Header.Set("X-Event", del.Event)

	resp, err := d.client.Do(req)
	res.Latency = time.Since(start)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer resp.Body.Close()

	res.StatusCode = resp.StatusCode
	res.Response, _ = io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	// drain so the connection can be reused
	_, _ = io.Copy(io.Discard, resp.Body)

	if !isSuccess(resp.StatusCode) {
		res.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return res
}

func (d *Dispatcher) record(ctx context.Context, del Delivery, res *Result) {
	if d.recorder == nil {
		return
	}

	response := res.Response
	if res.StatusCode == 0 {
		response, _ = json.Marshal(map[string]string{"error": res.Error})
	}

	_ = d.recorder.Record(ctx, audit.Entry{
		Source:         models.SourceOutbound,
		EventType:      del.Event,
		CorrelationID:  del.CorrelationID,
		GabineteID:     del.GabineteID,
		IdempotencyKey: del.CorrelationID,
		StatusCode:     res.StatusCode,
		Request:        del.Body,
		Response:       response,
	})
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
