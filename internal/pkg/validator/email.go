package validator

import (
	"errors"
	"net/mail"
	"strings"
)

// Email accepts a bare address ("nome@gabinete.gov.br"); display names
// and addresses without a dotted domain are rejected.
func Email(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return errors.New("invalid email format")
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 || !strings.Contains(parts[1], ".") {
		return errors.New("invalid email domain")
	}

	return nil
}
