package token

import (
	"strings"
	"testing"
	"time"

	"github.com/lunahub/hub/internal/apierr"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestNewSignerRejectsShortSecret(t *testing.T) {
	if _, err := NewSigner("too-short"); err == nil {
		t.Fatal("expected error for secret under 32 bytes")
	}
}

func TestSignerIssueAndValidateRoundTrip(t *testing.T) {
	signer, err := NewSigner(testSecret)
	if err != nil {
		t.Fatalf("NewSigner() error = %v", err)
	}

	claims := Claims{
		Subject:   "11111111-1111-1111-1111-111111111111",
		SessionID: "22222222-2222-2222-2222-222222222222",
		LunaContext: LunaContext{
			CurrentModule: "aube",
		},
	}

	issued, err := signer.Issue(claims, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if issued.Raw == "" {
		t.Fatal("expected non-empty raw token")
	}
	if issued.JTI == "" {
		t.Fatal("expected non-empty jti")
	}

	got, registered, err := signer.Validate(issued.Raw)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got.Subject != claims.Subject {
		t.Errorf("Subject = %q, want %q", got.Subject, claims.Subject)
	}
	if got.LunaContext.CurrentModule != "aube" {
		t.Errorf("CurrentModule = %q, want %q", got.LunaContext.CurrentModule, "aube")
	}
	if registered.ID != issued.JTI {
		t.Errorf("registered jti = %q, want %q", registered.ID, issued.JTI)
	}
}

func TestSignerValidateExpired(t *testing.T) {
	signer, err := NewSigner(testSecret)
	if err != nil {
		t.Fatalf("NewSigner() error = %v", err)
	}

	issued, err := signer.Issue(Claims{Subject: "user"}, -time.Minute)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	_, _, err = signer.Validate(issued.Raw)
	if err == nil {
		t.Fatal("expected error for expired token")
	}
	if apierr.CodeOf(err) != apierr.CodeExpiredToken {
		t.Errorf("CodeOf(err) = %v, want %v", apierr.CodeOf(err), apierr.CodeExpiredToken)
	}
}

func TestSignerValidateTamperedSignature(t *testing.T) {
	signer, err := NewSigner(testSecret)
	if err != nil {
		t.Fatalf("NewSigner() error = %v", err)
	}

	issued, err := signer.Issue(Claims{Subject: "user"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	parts := strings.Split(issued.Raw, ".")
	if len(parts) != 3 {
		t.Fatalf("expected 3-part JWT, got %d parts", len(parts))
	}
	tampered := parts[0] + "." + parts[1] + "." + parts[2] + "tamper"

	_, _, err = signer.Validate(tampered)
	if err == nil {
		t.Fatal("expected error for tampered signature")
	}
	if apierr.CodeOf(err) != apierr.CodeInvalidToken {
		t.Errorf("CodeOf(err) = %v, want %v", apierr.CodeOf(err), apierr.CodeInvalidToken)
	}
}

func TestSignerValidateDifferentKeyRejected(t *testing.T) {
	signerA, err := NewSigner(testSecret)
	if err != nil {
		t.Fatalf("NewSigner() error = %v", err)
	}
	signerB, err := NewSigner(strings.Repeat("z", 32))
	if err != nil {
		t.Fatalf("NewSigner() error = %v", err)
	}

	issued, err := signerA.Issue(Claims{Subject: "user"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if _, _, err := signerB.Validate(issued.Raw); err == nil {
		t.Fatal("expected error validating token signed with a different key")
	}
}
