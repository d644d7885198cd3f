// Package identity maps WhatsApp numbers to the gabinete user they are
// bound to and manages those bindings.
package identity

import (
	"context"
	"fmt"

	"zapgate/internal/engine/permissions"
	"zapgate/internal/pkg/phone"
	"zapgate/internal/platform/models"
	"zapgate/internal/platform/repositories"
)

// Identity is who is behind a WhatsApp number, and in which gabinete.
type Identity struct {
	UserID      string
	TenantID    string
	Role        permissions.Role
	DisplayName string
	TenantName  string
	Email       string
	Phone       string
}

type Resolver struct {
	repo *repositories.BindingRepository
}

func NewResolver(repo *repositories.BindingRepository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve returns nil, nil when the number is unknown, unparseable or
// bound to an inactive user.
func (r *Resolver) Resolve(ctx context.Context, raw string) (*Identity, error) {
	e164 := phone.Normalize(raw)
	if e164 == "" {
		return nil, nil
	}

	b, err := r.repo.GetActiveByPhone(ctx, e164)
	if err != nil {
		return nil, fmt.Errorf("lookup binding: %w", err)
	}
	if b == nil {
		return nil, nil
	}
	return fromBinding(b), nil
}

func fromBinding(b *models.Binding) *Identity {
	role := permissions.Role(b.Cargo)
	if role == "" {
		role = permissions.DefaultRole
	}
	return &Identity{
		UserID:      b.ID,
		TenantID:    b.GabineteID,
		Role:        role,
		DisplayName: b.Nome,
		TenantName:  b.GabineteNome,
		Email:       b.Email,
		Phone:       b.WhatsAppE164,
	}
}
