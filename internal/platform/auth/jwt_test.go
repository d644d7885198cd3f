package auth

import (
	"testing"
	"time"

	"zapgate/internal/platform/config"
)

func TestTokenService_RoundTrip(t *testing.T) {
	svc := NewTokenService(config.JWTConfig{Secret: "s3cret", Issuer: "zapgate", AccessTokenTTL: time.Hour})

	token, err := svc.GenerateAccessToken("usr_1", "gab_1", "vereador")
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if claims.GabineteID != "gab_1" || claims.Role != "vereador" || claims.UserID != "usr_1" {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestTokenService_Rejects(t *testing.T) {
	svc := NewTokenService(config.JWTConfig{Secret: "s3cret", Issuer: "zapgate", AccessTokenTTL: time.Hour})
	other := NewTokenService(config.JWTConfig{Secret: "other", Issuer: "zapgate", AccessTokenTTL: time.Hour})
	expired := NewTokenService(config.JWTConfig{Secret: "s3cret", Issuer: "zapgate", AccessTokenTTL: -time.Minute})

	foreign, _ := other.GenerateAccessToken("usr_1", "gab_1", "vereador")
	stale, _ := expired.GenerateAccessToken("usr_1", "gab_1", "vereador")

	for name, token := range map[string]string{
		"wrong secret": foreign,
		"expired":      stale,
		"garbage":      "not.a.token",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.ValidateToken(token); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
