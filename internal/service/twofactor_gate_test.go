package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/chatforge/authcore/internal/repository"
	"github.com/chatforge/authcore/internal/security"
)

func newGateForTest(t *testing.T) *TwoFactorGate {
	t.Helper()
	repo := repository.NewTwoFactorRepository(newTestDB(t))
	totp := security.NewTOTPManager(security.TOTPConfig{Issuer: "authcore-test", Skew: 1})
	return NewTwoFactorGate(repo, totp, 10, 8, testLogger())
}

func TestTwoFactorGateEnrollmentFlow(t *testing.T) {
	gate := newGateForTest(t)
	ctx := context.Background()

	enrollment, err := gate.GenerateSecret(ctx, 1, "a@example.com")
	if err != nil {
		t.Fatalf("generate secret: %v", err)
	}
	if enrollment.Secret == "" || len(enrollment.BackupCodes) != 10 {
		t.Fatalf("unexpected enrollment %+v", enrollment)
	}
	if !strings.Contains(enrollment.ProvisioningURI, "a%40example.com") {
		t.Fatalf("label missing from provisioning uri %q", enrollment.ProvisioningURI)
	}

	// Pending state: verification refuses until enabled.
	if err := gate.Verify(ctx, 1, totpCodeAt(t, enrollment.Secret, time.Now())); !errors.Is(err, ErrTwoFactorNotEnabled) {
		t.Fatalf("verify before enable = %v", err)
	}

	if err := gate.Enable(ctx, 1, "000000"); !errors.Is(err, ErrInvalidTwoFactorCode) {
		t.Fatalf("enable with wrong code = %v", err)
	}
	enabled, err := gate.IsEnabled(ctx, 1)
	if err != nil || enabled {
		t.Fatalf("failed enable changed state: enabled=%v err=%v", enabled, err)
	}

	if err := gate.Enable(ctx, 1, totpCodeAt(t, enrollment.Secret, time.Now())); err != nil {
		t.Fatalf("enable: %v", err)
	}
	enabled, err = gate.IsEnabled(ctx, 1)
	if err != nil || !enabled {
		t.Fatalf("enable not committed: enabled=%v err=%v", enabled, err)
	}

	// Re-enrolling an already-enabled user is rejected, and so is a
	// second Enable, even without a code: neither may confirm success.
	if _, err := gate.GenerateSecret(ctx, 1, "a@example.com"); !errors.Is(err, ErrTwoFactorEnabled) {
		t.Fatalf("re-enrollment of enabled user = %v, want ErrTwoFactorEnabled", err)
	}
	if err := gate.Enable(ctx, 1, "000000"); !errors.Is(err, ErrTwoFactorEnabled) {
		t.Fatalf("enable while enabled = %v, want ErrTwoFactorEnabled", err)
	}
}

func TestTwoFactorGateRejectsCodeReplayWithinStep(t *testing.T) {
	gate := newGateForTest(t)
	ctx := context.Background()

	enrollment, err := gate.GenerateSecret(ctx, 1, "a@example.com")
	if err != nil {
		t.Fatalf("generate secret: %v", err)
	}
	if err := gate.Enable(ctx, 1, totpCodeAt(t, enrollment.Secret, time.Now())); err != nil {
		t.Fatalf("enable: %v", err)
	}

	// The next time step is inside the skew window and has not been
	// used yet.
	next := totpCodeAt(t, enrollment.Secret, time.Now().Add(30*time.Second))
	if err := gate.Verify(ctx, 1, next); err != nil {
		t.Fatalf("verify fresh step: %v", err)
	}
	// Replaying the same code is rejected even though it is still
	// cryptographically valid.
	if err := gate.Verify(ctx, 1, next); !errors.Is(err, ErrInvalidTwoFactorCode) {
		t.Fatalf("replay = %v, want ErrInvalidTwoFactorCode", err)
	}
}

func TestTwoFactorGateBackupCodeSingleUse(t *testing.T) {
	gate := newGateForTest(t)
	ctx := context.Background()

	enrollment, err := gate.GenerateSecret(ctx, 1, "a@example.com")
	if err != nil {
		t.Fatalf("generate secret: %v", err)
	}
	if err := gate.Enable(ctx, 1, totpCodeAt(t, enrollment.Secret, time.Now())); err != nil {
		t.Fatalf("enable: %v", err)
	}

	code := enrollment.BackupCodes[0]
	if err := gate.Verify(ctx, 1, code); err != nil {
		t.Fatalf("verify backup code: %v", err)
	}
	if err := gate.Verify(ctx, 1, code); !errors.Is(err, ErrInvalidTwoFactorCode) {
		t.Fatalf("consumed backup code accepted again: %v", err)
	}
	// The remaining codes still work.
	if err := gate.Verify(ctx, 1, enrollment.BackupCodes[1]); err != nil {
		t.Fatalf("verify second backup code: %v", err)
	}
}

func TestTwoFactorGateRegenerateReplacesBackupCodes(t *testing.T) {
	gate := newGateForTest(t)
	ctx := context.Background()

	enrollment, err := gate.GenerateSecret(ctx, 1, "a@example.com")
	if err != nil {
		t.Fatalf("generate secret: %v", err)
	}
	if err := gate.Enable(ctx, 1, totpCodeAt(t, enrollment.Secret, time.Now())); err != nil {
		t.Fatalf("enable: %v", err)
	}

	fresh, err := gate.RegenerateBackupCodes(ctx, 1, totpCodeAt(t, enrollment.Secret, time.Now().Add(30*time.Second)))
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if len(fresh) != 10 {
		t.Fatalf("expected 10 fresh codes, got %d", len(fresh))
	}
	// Old codes are gone; new codes work.
	if err := gate.Verify(ctx, 1, enrollment.BackupCodes[0]); !errors.Is(err, ErrInvalidTwoFactorCode) {
		t.Fatalf("old backup code survived regeneration: %v", err)
	}
	if err := gate.Verify(ctx, 1, fresh[0]); err != nil {
		t.Fatalf("fresh backup code rejected: %v", err)
	}
}

func TestTwoFactorGateDisableClearsEverything(t *testing.T) {
	gate := newGateForTest(t)
	ctx := context.Background()

	enrollment, err := gate.GenerateSecret(ctx, 1, "a@example.com")
	if err != nil {
		t.Fatalf("generate secret: %v", err)
	}
	if err := gate.Enable(ctx, 1, totpCodeAt(t, enrollment.Secret, time.Now())); err != nil {
		t.Fatalf("enable: %v", err)
	}

	if err := gate.Disable(ctx, 1, "000000"); !errors.Is(err, ErrInvalidTwoFactorCode) {
		t.Fatalf("disable with wrong code = %v", err)
	}
	if err := gate.Disable(ctx, 1, enrollment.BackupCodes[0]); err != nil {
		t.Fatalf("disable with backup code: %v", err)
	}

	enabled, err := gate.IsEnabled(ctx, 1)
	if err != nil || enabled {
		t.Fatalf("config survived disable: enabled=%v err=%v", enabled, err)
	}
	if err := gate.Verify(ctx, 1, totpCodeAt(t, enrollment.Secret, time.Now())); !errors.Is(err, ErrTwoFactorNotEnabled) {
		t.Fatalf("verify after disable = %v", err)
	}
}

func TestTwoFactorGateVerifyWithoutConfig(t *testing.T) {
	gate := newGateForTest(t)
	if err := gate.Verify(context.Background(), 99, "123456"); !errors.Is(err, ErrTwoFactorNotEnabled) {
		t.Fatalf("verify without config = %v", err)
	}
}

func TestTwoFactorGateBackupCodeConcurrentSpendAcceptsOnce(t *testing.T) {
	gate := newGateForTest(t)
	ctx := context.Background()

	enrollment, err := gate.GenerateSecret(ctx, 1, "a@example.com")
	if err != nil {
		t.Fatalf("generate secret: %v", err)
	}
	if err := gate.Enable(ctx, 1, totpCodeAt(t, enrollment.Secret, time.Now())); err != nil {
		t.Fatalf("enable: %v", err)
	}

	code := enrollment.BackupCodes[0]
	start := make(chan struct{})
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			<-start
			results <- gate.Verify(ctx, 1, code)
		}()
	}
	close(start)

	var accepted, rejected int
	for i := 0; i < 2; i++ {
		switch err := <-results; {
		case err == nil:
			accepted++
		case errors.Is(err, ErrInvalidTwoFactorCode):
			rejected++
		default:
			t.Fatalf("unexpected verify error: %v", err)
		}
	}
	if accepted != 1 || rejected != 1 {
		t.Fatalf("same code spent %d times (%d rejections), want exactly one acceptance", accepted, rejected)
	}
}

func TestTwoFactorGateDistinctBackupCodesSpendConcurrently(t *testing.T) {
	gate := newGateForTest(t)
	ctx := context.Background()

	enrollment, err := gate.GenerateSecret(ctx, 1, "a@example.com")
	if err != nil {
		t.Fatalf("generate secret: %v", err)
	}
	if err := gate.Enable(ctx, 1, totpCodeAt(t, enrollment.Secret, time.Now())); err != nil {
		t.Fatalf("enable: %v", err)
	}

	// Contention on the stored set must not reject a code nobody else
	// is spending.
	start := make(chan struct{})
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		code := enrollment.BackupCodes[i]
		go func() {
			<-start
			results <- gate.Verify(ctx, 1, code)
		}()
	}
	close(start)

	for i := 0; i < 2; i++ {
		if err := <-results; err != nil {
			t.Fatalf("distinct code rejected under contention: %v", err)
		}
	}
}

func TestTwoFactorGateTotpConcurrentVerifyAcceptsOnce(t *testing.T) {
	gate := newGateForTest(t)
	ctx := context.Background()

	enrollment, err := gate.GenerateSecret(ctx, 1, "a@example.com")
	if err != nil {
		t.Fatalf("generate secret: %v", err)
	}
	if err := gate.Enable(ctx, 1, totpCodeAt(t, enrollment.Secret, time.Now())); err != nil {
		t.Fatalf("enable: %v", err)
	}

	code := totpCodeAt(t, enrollment.Secret, time.Now().Add(30*time.Second))
	start := make(chan struct{})
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			<-start
			results <- gate.Verify(ctx, 1, code)
		}()
	}
	close(start)

	var accepted, rejected int
	for i := 0; i < 2; i++ {
		switch err := <-results; {
		case err == nil:
			accepted++
		case errors.Is(err, ErrInvalidTwoFactorCode):
			rejected++
		default:
			t.Fatalf("unexpected verify error: %v", err)
		}
	}
	if accepted != 1 || rejected != 1 {
		t.Fatalf("same time step accepted %d times (%d rejections), want exactly one", accepted, rejected)
	}
}
