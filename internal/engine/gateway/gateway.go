// Package gateway runs one inbound WhatsApp-automation call end to end:
// replay, identity, permission, action and audit.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"zapgate/internal/engine/actions"
	"zapgate/internal/engine/idempotency"
	"zapgate/internal/engine/identity"
	"zapgate/internal/engine/permissions"
	"zapgate/internal/platform/audit"
	"zapgate/internal/platform/metrics"
	"zapgate/internal/platform/models"
)

// Request is an authenticated inbound call. Raw is the body as received.
type Request struct {
	Route          string
	IdempotencyKey string
	Raw            []byte
}

type Response struct {
	StatusCode    int
	Body          []byte
	Kind          Kind
	CorrelationID string
	Replayed      bool
}

type inbound struct {
	WhatsApp string          `json:"whatsapp_e164"`
	Phone    string          `json:"phone"`
	Payload  json.RawMessage `json:"payload"`
}

type successBody struct {
	OK bool `json:"ok"`
	*actions.Result
}

type Service struct {
	db       *sqlx.DB
	store    *idempotency.Store
	resolver *identity.Resolver
	audit    *audit.Logger
	routes   map[string]actions.Route
	timeout  time.Duration
	tracer   trace.Tracer
}

func NewService(db *sqlx.DB, store *idempotency.Store, resolver *identity.Resolver, auditLog *audit.Logger, routes []actions.Route, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	byEvent := make(map[string]actions.Route, len(routes))
	for _, r := range routes {
		byEvent[r.EventType] = r
	}
	return &Service{
		db:       db,
		store:    store,
		resolver: resolver,
		audit:    auditLog,
		routes:   byEvent,
		timeout:  timeout,
		tracer:   otel.Tracer("zapgate/gateway"),
	}
}

// Process always returns a terminal response and writes exactly one
// audit row for it.
func (s *Service) Process(ctx context.Context, req Request) *Response {
	start := time.Now()
	correlationID := uuid.New().String()

	ctx, span := s.tracer.Start(ctx, "gateway.Process")
	defer span.End()
	span.SetAttributes(
		attribute.String("gateway.route", req.Route),
		attribute.String("gateway.correlation_id", correlationID),
	)

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, gabineteID := s.process(opCtx, req, correlationID)
	resp.CorrelationID = correlationID

	_ = s.audit.Record(ctx, audit.Entry{
		Source:         models.SourceInbound,
		EventType:      req.Route,
		CorrelationID:  correlationID,
		GabineteID:     gabineteID,
		IdempotencyKey: req.IdempotencyKey,
		StatusCode:     resp.StatusCode,
		Request:        req.Raw,
		Response:       resp.Body,
	})

	span.SetAttributes(
		attribute.Int("http.response.status_code", resp.StatusCode),
		attribute.Bool("gateway.replayed", resp.Replayed),
	)
	if resp.Kind == Internal {
		span.SetStatus(codes.Error, "internal")
	}

	metrics.InboundRequests.WithLabelValues(req.Route, strconv.Itoa(resp.StatusCode)).Inc()
	metrics.InboundDuration.WithLabelValues(req.Route).Observe(time.Since(start).Seconds())
	if resp.Replayed {
		metrics.IdempotentReplays.WithLabelValues(req.Route).Inc()
	}

	log.Info().
		Str("route", req.Route).
		Str("correlation_id", correlationID).
		Str("gabinete_id", gabineteID).
		Int("status", resp.StatusCode).
		Bool("replayed", resp.Replayed).
		Dur("duration", time.Since(start)).
		Msg("inbound webhook processed")

	return resp
}

// Refuse answers a call that never reaches Process, such as a bad token
// or an unreadable body. It is audited without a tenant and never cached.
func (s *Service) Refuse(ctx context.Context, req Request, k Kind, message string) *Response {
	resp := &Response{
		StatusCode:    k.Status(),
		Body:          ErrorBody(k, message),
		Kind:          k,
		CorrelationID: uuid.New().String(),
	}

	_ = s.audit.Record(ctx, audit.Entry{
		Source:         models.SourceInbound,
		EventType:      req.Route,
		CorrelationID:  resp.CorrelationID,
		IdempotencyKey: req.IdempotencyKey,
		StatusCode:     resp.StatusCode,
		Request:        req.Raw,
		Response:       resp.Body,
	})
	metrics.InboundRequests.WithLabelValues(req.Route, strconv.Itoa(resp.StatusCode)).Inc()
	log.Warn().
		Str("route", req.Route).
		Str("correlation_id", resp.CorrelationID).
		Str("kind", k.String()).
		Msg("inbound webhook refused")

	return resp
}

func (s *Service) process(ctx context.Context, req Request, correlationID string) (*Response, string) {
	route, ok := s.routes[req.Route]
	if !ok {
		return failure(NotFound, ""), ""
	}

	if req.IdempotencyKey != "" {
		stored, err := s.store.Get(ctx, req.Route, req.IdempotencyKey)
		if err != nil {
			return s.internal(req, correlationID, err), ""
		}
		if stored != nil {
			return replay(stored), stored.GabineteID
		}
	}

	in, err := parse(req.Raw)
	if err != nil {
		return failure(Validation, err.Error()), ""
	}

	id, err := s.resolver.Resolve(ctx, in.phone())
	if err != nil {
		return s.internal(req, correlationID, err), ""
	}
	if id == nil {
		return s.settle(ctx, req, correlationID, "", failure(IdentityNotFound, "")), ""
	}

	handler := route.Handler
	if !permissions.Allowed(id.Role, handler.Action()) {
		return s.settle(ctx, req, correlationID, id.TenantID, failure(Forbidden, "")), id.TenantID
	}

	return s.execute(ctx, req, correlationID, id, handler, in.Payload), id.TenantID
}

// execute runs the handler and the idempotency write in one transaction so
// a losing concurrent request leaves no domain row behind.
func (s *Service) execute(ctx context.Context, req Request, correlationID string, id *identity.Identity, h actions.Handler, payload json.RawMessage) *Response {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return s.internal(req, correlationID, fmt.Errorf("begin: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	result, err := h.Handle(ctx, tx, id, payload)
	if err != nil {
		var verr *actions.ValidationError
		if errors.As(err, &verr) {
			return failure(Validation, verr.Error())
		}
		return s.internal(req, correlationID, err)
	}

	resp := &Response{
		StatusCode: OK.Status(),
		Body:       encode(successBody{OK: true, Result: result}),
		Kind:       OK,
	}

	if req.IdempotencyKey != "" {
		won, err := s.store.Save(ctx, tx, s.entry(req, correlationID, id.TenantID, resp))
		if err != nil {
			return s.internal(req, correlationID, err)
		}
		if !won {
			_ = tx.Rollback()
			return s.winner(ctx, req, correlationID)
		}
	}

	if err := tx.Commit(); err != nil {
		return s.internal(req, correlationID, fmt.Errorf("commit: %w", err))
	}
	return resp
}

// settle stores a cacheable failure. If another request stored first, its
// response wins.
func (s *Service) settle(ctx context.Context, req Request, correlationID, gabineteID string, resp *Response) *Response {
	if req.IdempotencyKey == "" || !resp.Kind.Cacheable() {
		return resp
	}

	won, err := s.store.Save(ctx, s.db, s.entry(req, correlationID, gabineteID, resp))
	if err != nil {
		// the answer is still correct, it just will not be replayed
		log.Error().Err(err).Str("route", req.Route).Str("correlation_id", correlationID).Msg("failed to store idempotent response")
		return resp
	}
	if !won {
		return s.winner(ctx, req, correlationID)
	}
	return resp
}

func (s *Service) winner(ctx context.Context, req Request, correlationID string) *Response {
	stored, err := s.store.Get(ctx, req.Route, req.IdempotencyKey)
	if err != nil {
		return s.internal(req, correlationID, err)
	}
	if stored == nil {
		return s.internal(req, correlationID, errors.New("idempotency key held but not readable"))
	}
	return replay(stored)
}

func (s *Service) entry(req Request, correlationID, gabineteID string, resp *Response) idempotency.Entry {
	return idempotency.Entry{
		Route:         req.Route,
		Key:           req.IdempotencyKey,
		StatusCode:    resp.StatusCode,
		Response:      resp.Body,
		CorrelationID: correlationID,
		GabineteID:    gabineteID,
	}
}

func (s *Service) internal(req Request, correlationID string, err error) *Response {
	log.Error().Err(err).
		Str("route", req.Route).
		Str("correlation_id", correlationID).
		Msg("inbound webhook failed")
	return failure(Internal, "")
}

func failure(k Kind, message string) *Response {
	return &Response{StatusCode: k.Status(), Body: ErrorBody(k, message), Kind: k}
}

func replay(e *idempotency.Entry) *Response {
	kind := OK
	switch e.StatusCode {
	case 403:
		kind = Forbidden
	case 404:
		kind = IdentityNotFound
	}
	return &Response{StatusCode: e.StatusCode, Body: e.Response, Kind: kind, Replayed: true}
}

func parse(raw []byte) (*inbound, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, errors.New("corpo da requisição vazio")
	}

	var in inbound
	if err := json.Unmarshal(trimmed, &in); err != nil {
		return nil, errors.New("JSON inválido")
	}
	if strings.TrimSpace(in.phone()) == "" {
		return nil, errors.New("whatsapp_e164: campo obrigatório")
	}
	return &in, nil
}

func (in *inbound) phone() string {
	if in.WhatsApp != "" {
		return in.WhatsApp
	}
	return in.Phone
}
