package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenVerifier(t *testing.T) {
	verifier := NewTokenVerifier("test-secret", "leadhook-test")

	valid, err := verifier.Issue("user-1", "ads@example.com", time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	expired, _ := verifier.Issue("user-1", "", -time.Minute)
	noSubject, _ := verifier.Issue("", "", time.Hour)
	controlSubject, _ := verifier.Issue("a\tb", "", time.Hour)
	otherSecret, _ := NewTokenVerifier("other-secret", "leadhook-test").Issue("user-1", "", time.Hour)
	otherIssuer, _ := NewTokenVerifier("test-secret", "someone-else").Issue("user-1", "", time.Hour)
	noneAlg, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "user-1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name    string
		token   string
		wantID  string
		wantErr bool
	}{
		{name: "Valid", token: valid, wantID: "user-1"},
		{name: "Expired", token: expired, wantErr: true},
		{name: "Missing subject", token: noSubject, wantErr: true},
		{name: "Control characters in subject", token: controlSubject, wantErr: true},
		{name: "Wrong secret", token: otherSecret, wantErr: true},
		{name: "Wrong issuer", token: otherIssuer, wantErr: true},
		{name: "Unsigned", token: noneAlg, wantErr: true},
		{name: "Garbage", token: "not.a.jwt", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := verifier.Verify(tt.token)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidToken) {
					t.Fatalf("Verify() error = %v, want ErrInvalidToken", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}
			if p.ID != tt.wantID {
				t.Errorf("principal ID = %q, want %q", p.ID, tt.wantID)
			}
			if p.Email != "ads@example.com" {
				t.Errorf("principal email = %q", p.Email)
			}
		})
	}
}
