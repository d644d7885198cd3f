package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"zapgate/internal/engine/permissions"
	"zapgate/internal/engine/webhooks"
	"zapgate/internal/pkg/ids"
	"zapgate/internal/pkg/phone"
	"zapgate/internal/pkg/validator"
	"zapgate/internal/platform/mail"
	"zapgate/internal/platform/models"
	"zapgate/internal/platform/repositories"
)

var (
	ErrInvalidInput     = errors.New("invalid binding")
	ErrBindingNotFound  = errors.New("binding not found")
	ErrGabineteNotFound = errors.New("gabinete not found")
)

type CreateInput struct {
	Nome     string `json:"nome"`
	Email    string `json:"email"`
	WhatsApp string `json:"whatsapp_e164"`
	Cargo    string `json:"cargo"`
}

// UpdateInput only touches the fields that are set.
type UpdateInput struct {
	Nome     *string `json:"nome"`
	Email    *string `json:"email"`
	WhatsApp *string `json:"whatsapp_e164"`
	Cargo    *string `json:"cargo"`
	Ativo    *bool   `json:"ativo"`
}

// Service is the operator side of bindings: linking a number emits
// user_created through the outbox and a welcome email.
type Service struct {
	db     *sqlx.DB
	repo   *repositories.BindingRepository
	outbox *webhooks.Outbox
	mailer mail.Sender
}

func NewService(db *sqlx.DB, repo *repositories.BindingRepository, outbox *webhooks.Outbox, mailer mail.Sender) *Service {
	return &Service{db: db, repo: repo, outbox: outbox, mailer: mailer}
}

func (s *Service) Create(ctx context.Context, gabineteID string, in CreateInput) (*models.Binding, error) {
	b := &models.Binding{
		ID:           ids.New("usr_"),
		GabineteID:   gabineteID,
		Nome:         strings.TrimSpace(in.Nome),
		Email:        strings.TrimSpace(in.Email),
		WhatsAppE164: phone.Normalize(in.WhatsApp),
		Cargo:        strings.TrimSpace(in.Cargo),
		Ativo:        true,
	}
	if b.Cargo == "" {
		b.Cargo = string(permissions.DefaultRole)
	}
	if err := validate(b); err != nil {
		return nil, err
	}

	g, err := s.repo.GetGabinete(ctx, gabineteID)
	if err != nil {
		return nil, fmt.Errorf("load gabinete: %w", err)
	}
	if g == nil {
		return nil, ErrGabineteNotFound
	}
	b.GabineteNome = g.Nome

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.repo.CreateTx(ctx, tx.Tx, b); err != nil {
		if errors.Is(err, repositories.ErrPhoneTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("insert binding: %w", err)
	}

	env := webhooks.NewEnvelope(webhooks.EventUserCreated, uuid.New().String())
	env.User = &webhooks.UserRef{ID: b.ID, Nome: b.Nome, Email: b.Email, WhatsAppE164: b.WhatsAppE164}
	env.Gabinete = &webhooks.GabineteRef{ID: g.ID, Nome: g.Nome}
	env.Data = map[string]string{"cargo": b.Cargo}

	if _, err := s.outbox.Enqueue(ctx, tx, env); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	log.Info().
		Str("gabinete_id", gabineteID).
		Str("binding_id", b.ID).
		Str("correlation_id", env.CorrelationID).
		Msg("whatsapp number linked")

	s.notify(ctx, "whatsapp_welcome", b)
	return b, nil
}

func (s *Service) Update(ctx context.Context, gabineteID, id string, in UpdateInput) (*models.Binding, error) {
	b, err := s.repo.GetByID(ctx, gabineteID, id)
	if err != nil {
		return nil, fmt.Errorf("load binding: %w", err)
	}
	if b == nil {
		return nil, ErrBindingNotFound
	}

	if in.Nome != nil {
		b.Nome = strings.TrimSpace(*in.Nome)
	}
	if in.Email != nil {
		b.Email = strings.TrimSpace(*in.Email)
	}
	if in.WhatsApp != nil {
		b.WhatsAppE164 = phone.Normalize(*in.WhatsApp)
	}
	if in.Cargo != nil {
		b.Cargo = strings.TrimSpace(*in.Cargo)
	}
	if in.Ativo != nil {
		b.Ativo = *in.Ativo
	}
	if err := validate(b); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, b); err != nil {
		if errors.Is(err, repositories.ErrPhoneTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("update binding: %w", err)
	}
	return b, nil
}

// Deactivate revokes the number. The row is kept for the audit trail.
func (s *Service) Deactivate(ctx context.Context, gabineteID, id string) error {
	b, err := s.repo.GetByID(ctx, gabineteID, id)
	if err != nil {
		return fmt.Errorf("load binding: %w", err)
	}
	if b == nil {
		return ErrBindingNotFound
	}

	found, err := s.repo.Deactivate(ctx, gabineteID, id)
	if err != nil {
		return fmt.Errorf("deactivate binding: %w", err)
	}
	if !found {
		return ErrBindingNotFound
	}

	log.Info().Str("gabinete_id", gabineteID).Str("binding_id", id).Msg("whatsapp number unlinked")

	if b.Ativo {
		s.notify(ctx, "whatsapp_unlinked", b)
	}
	return nil
}

func (s *Service) List(ctx context.Context, gabineteID string) ([]*models.Binding, error) {
	return s.repo.ListByGabinete(ctx, gabineteID)
}

// notify is best effort; a failed email never undoes the binding change.
func (s *Service) notify(ctx context.Context, templateType string, b *models.Binding) {
	if s.mailer == nil || b.Email == "" {
		return
	}

	emailID, err := s.mailer.Send(ctx, templateType, b.Email, map[string]string{
		"nome":     b.Nome,
		"whatsapp": b.WhatsAppE164,
		"gabinete": b.GabineteNome,
		"cargo":    b.Cargo,
	})
	if err != nil {
		log.Warn().Err(err).Str("binding_id", b.ID).Str("template", templateType).Msg("failed to send binding email")
		return
	}
	log.Debug().Str("binding_id", b.ID).Str("email_id", emailID).Msg("binding email sent")
}

func validate(b *models.Binding) error {
	if b.Nome == "" {
		return fmt.Errorf("%w: nome is required", ErrInvalidInput)
	}
	if !phone.Valid(b.WhatsAppE164) {
		return fmt.Errorf("%w: whatsapp_e164 must be an E.164 number", ErrInvalidInput)
	}
	if !permissions.ValidRole(permissions.Role(b.Cargo)) {
		return fmt.Errorf("%w: unknown cargo %q", ErrInvalidInput, b.Cargo)
	}
	if b.Email != "" {
		if err := validator.Email(b.Email); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	return nil
}
