package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chatforge/authcore/internal/domain"
	"github.com/chatforge/authcore/internal/observability"
	"github.com/chatforge/authcore/internal/repository"
	"github.com/chatforge/authcore/internal/security"
)

// TwoFactorEnrollment is returned once, at setup time. The secret and
// plaintext backup codes are never readable again afterwards.
type TwoFactorEnrollment struct {
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioning_uri"`
	BackupCodes     []string `json:"backup_codes"`
}

// TwoFactorGate manages per-user one-time-code verification: secret
// enrollment, enable/disable, code checks, and backup codes.
type TwoFactorGate struct {
	configs          repository.TwoFactorRepository
	totp             *security.TOTPManager
	backupCodeCount  int
	backupCodeLength int
	logger           *slog.Logger
}

func NewTwoFactorGate(configs repository.TwoFactorRepository, totp *security.TOTPManager, backupCodeCount, backupCodeLength int, logger *slog.Logger) *TwoFactorGate {
	return &TwoFactorGate{
		configs:          configs,
		totp:             totp,
		backupCodeCount:  backupCodeCount,
		backupCodeLength: backupCodeLength,
		logger:           logger,
	}
}

// GenerateSecret creates a fresh secret and backup codes in a pending
// (not yet enabled) state. Calling it again before Enable replaces the
// pending enrollment; calling it for an already-enabled user fails so
// an attacker with a stolen session cannot silently swap the secret.
func (g *TwoFactorGate) GenerateSecret(ctx context.Context, userID uint, label string) (*TwoFactorEnrollment, error) {
	existing, err := g.configs.FindByUserID(userID)
	if err != nil && !errors.Is(err, repository.ErrTwoFactorNotFound) {
		return nil, err
	}
	if existing != nil && existing.Enabled {
		return nil, ErrTwoFactorEnabled
	}

	secret, err := g.totp.GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}
	codes, err := security.NewBackupCodes(g.backupCodeCount, g.backupCodeLength)
	if err != nil {
		return nil, fmt.Errorf("generate backup codes: %w", err)
	}
	hashed, err := marshalBackupCodes(codes)
	if err != nil {
		return nil, err
	}

	if err := g.configs.Upsert(&domain.TwoFactorConfig{
		UserID:      userID,
		Secret:      secret,
		BackupCodes: hashed,
		Enabled:     false,
	}); err != nil {
		return nil, err
	}

	return &TwoFactorEnrollment{
		Secret:          secret,
		ProvisioningURI: g.totp.ProvisioningURI(secret, label),
		BackupCodes:     codes,
	}, nil
}

// Enable verifies a code against the pending secret and commits the
// enrollment. On failure the pending config is left untouched.
func (g *TwoFactorGate) Enable(ctx context.Context, userID uint, code string) error {
	cfg, err := g.configs.FindByUserID(userID)
	if err != nil {
		if errors.Is(err, repository.ErrTwoFactorNotFound) {
			return ErrTwoFactorNotEnabled
		}
		return err
	}
	if cfg.Enabled {
		return ErrTwoFactorEnabled
	}
	ok, counter, err := g.totp.VerifyCode(cfg.Secret, code, time.Now())
	if err != nil {
		return err
	}
	if !ok {
		observability.RecordTwoFactorVerification("totp", "failure")
		return ErrInvalidTwoFactorCode
	}
	now := time.Now().UTC()
	cfg.Enabled = true
	cfg.EnabledAt = &now
	cfg.LastUsedCounter = counter
	if err := g.configs.Upsert(cfg); err != nil {
		return err
	}
	observability.RecordTwoFactorVerification("totp", "success")
	return nil
}

// Disable requires a valid current code or unused backup code, then
// removes the whole config row so secret, codes, and flag disappear
// together.
func (g *TwoFactorGate) Disable(ctx context.Context, userID uint, code string) error {
	if err := g.Verify(ctx, userID, code); err != nil {
		return err
	}
	return g.configs.Delete(userID)
}

// Verify accepts a time-based code or an unused backup code. A matched
// backup code is removed from the set before the call returns; a
// matched time step is recorded so the same code cannot be replayed
// within its validity window.
func (g *TwoFactorGate) Verify(ctx context.Context, userID uint, code string) error {
	cfg, err := g.configs.FindByUserID(userID)
	if err != nil {
		if errors.Is(err, repository.ErrTwoFactorNotFound) {
			return ErrTwoFactorNotEnabled
		}
		return err
	}
	if !cfg.Enabled {
		return ErrTwoFactorNotEnabled
	}

	ok, counter, err := g.totp.VerifyCode(cfg.Secret, code, time.Now())
	if err != nil {
		return err
	}
	if ok {
		// The guarded update is the single-use barrier: of two
		// concurrent verifications of the same code, exactly one
		// advances the counter.
		advanced, err := g.configs.AdvanceCounter(userID, counter)
		if err != nil {
			return err
		}
		if !advanced {
			observability.SecurityEvent(ctx, "totp_replay_rejected",
				slog.Uint64("user_id", uint64(userID)),
				slog.Int64("counter", counter))
			observability.RecordTwoFactorVerification("totp", "replay")
			return ErrInvalidTwoFactorCode
		}
		observability.RecordTwoFactorVerification("totp", "success")
		return nil
	}

	// Backup codes are consumed with a compare-and-swap on the stored
	// set. A failed swap means the set changed underneath us; re-read
	// and retry, so a concurrent spend of a different code does not
	// reject this one, while a concurrent spend of the same code is
	// rejected on the next pass.
	for attempt := 0; attempt < 3; attempt++ {
		consumed, remaining, err := consumeBackupCode(cfg.BackupCodes, code)
		if err != nil {
			return err
		}
		if !consumed {
			if attempt > 0 {
				observability.SecurityEvent(ctx, "backup_code_replay_rejected",
					slog.Uint64("user_id", uint64(userID)))
				observability.RecordTwoFactorVerification("backup_code", "replay")
			} else {
				observability.RecordTwoFactorVerification("totp", "failure")
			}
			return ErrInvalidTwoFactorCode
		}
		swapped, err := g.configs.SwapBackupCodes(userID, cfg.BackupCodes, remaining)
		if err != nil {
			return err
		}
		if swapped {
			observability.SecurityEvent(ctx, "backup_code_consumed",
				slog.Uint64("user_id", uint64(userID)))
			observability.RecordTwoFactorVerification("backup_code", "success")
			return nil
		}
		cfg, err = g.configs.FindByUserID(userID)
		if err != nil {
			if errors.Is(err, repository.ErrTwoFactorNotFound) {
				return ErrTwoFactorNotEnabled
			}
			return err
		}
	}
	observability.RecordTwoFactorVerification("backup_code", "replay")
	return ErrInvalidTwoFactorCode
}

// RegenerateBackupCodes replaces the entire backup-code set after a
// valid current code.
func (g *TwoFactorGate) RegenerateBackupCodes(ctx context.Context, userID uint, code string) ([]string, error) {
	if err := g.Verify(ctx, userID, code); err != nil {
		return nil, err
	}
	codes, err := security.NewBackupCodes(g.backupCodeCount, g.backupCodeLength)
	if err != nil {
		return nil, fmt.Errorf("generate backup codes: %w", err)
	}
	hashed, err := marshalBackupCodes(codes)
	if err != nil {
		return nil, err
	}
	if err := g.configs.ReplaceBackupCodes(userID, hashed); err != nil {
		return nil, err
	}
	return codes, nil
}

// IsEnabled reports whether the user has 2FA enabled.
func (g *TwoFactorGate) IsEnabled(ctx context.Context, userID uint) (bool, error) {
	cfg, err := g.configs.FindByUserID(userID)
	if err != nil {
		if errors.Is(err, repository.ErrTwoFactorNotFound) {
			return false, nil
		}
		return false, err
	}
	return cfg.Enabled, nil
}

func marshalBackupCodes(codes []string) (string, error) {
	hashes := make([]string, 0, len(codes))
	for _, code := range codes {
		hashes = append(hashes, security.HashBackupCode(code))
	}
	payload, err := json.Marshal(hashes)
	if err != nil {
		return "", fmt.Errorf("marshal backup codes: %w", err)
	}
	return string(payload), nil
}

// consumeBackupCode removes the hash of code from the stored set. The
// bool reports whether a hash matched.
func consumeBackupCode(stored, code string) (bool, string, error) {
	if stored == "" {
		return false, stored, nil
	}
	var hashes []string
	if err := json.Unmarshal([]byte(stored), &hashes); err != nil {
		return false, stored, fmt.Errorf("unmarshal backup codes: %w", err)
	}
	target := security.HashBackupCode(code)
	for i, h := range hashes {
		if h == target {
			remaining := append(hashes[:i:i], hashes[i+1:]...)
			payload, err := json.Marshal(remaining)
			if err != nil {
				return false, stored, fmt.Errorf("marshal backup codes: %w", err)
			}
			return true, string(payload), nil
		}
	}
	return false, stored, nil
}
