package validator

import "testing"

func TestEmail(t *testing.T) {
	tests := []struct {
		email   string
		wantErr bool
	}{
		{"assessor@gabinete.sp.gov.br", false},
		{"ana@example.com", false},
		{"ana@localhost", true},
		{"Ana <ana@example.com>", true},
		{"not-an-email", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			err := Email(tt.email)
			if (err != nil) != tt.wantErr {
				t.Errorf("Email(%q) error = %v, wantErr %v", tt.email, err, tt.wantErr)
			}
		})
	}
}
