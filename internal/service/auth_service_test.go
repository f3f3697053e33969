package service

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLoginIssuesTokensForNonTwoFactorAccount(t *testing.T) {
	f := newAuthFixture(t)
	f.createUser(t, "a@example.com", "correct horse")
	ctx := context.Background()
	meta := RequestMeta{IP: "10.0.0.1", UserAgent: "ua"}

	result, err := f.auth.Login(ctx, "a@example.com", "correct horse", meta)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.Tokens == nil || result.ChallengeID != "" {
		t.Fatalf("expected tokens without challenge, got %+v", result)
	}
	if result.Tokens.AccessToken == "" || result.Tokens.RefreshToken == "" {
		t.Fatal("token pair incomplete")
	}

	claims, err := f.auth.VerifyRequest(ctx, result.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("verify request: %v", err)
	}
	if claims.SessionID != result.Tokens.SessionID {
		t.Fatalf("claims session %q != issued session %q", claims.SessionID, result.Tokens.SessionID)
	}
}

func TestLoginRejectsBadPasswordAndUnknownEmailIdentically(t *testing.T) {
	f := newAuthFixture(t)
	f.createUser(t, "a@example.com", "correct horse")
	ctx := context.Background()
	meta := RequestMeta{IP: "10.0.0.1", UserAgent: "ua"}

	_, badPassword := f.auth.Login(ctx, "a@example.com", "wrong", meta)
	if !errors.Is(badPassword, ErrInvalidCredentials) {
		t.Fatalf("bad password = %v, want ErrInvalidCredentials", badPassword)
	}
	_, unknownEmail := f.auth.Login(ctx, "nobody@example.com", "wrong", meta)
	if !errors.Is(unknownEmail, ErrInvalidCredentials) {
		t.Fatalf("unknown email = %v, want ErrInvalidCredentials", unknownEmail)
	}
	if badPassword.Error() != unknownEmail.Error() {
		t.Fatalf("distinguishable failures: %q vs %q", badPassword, unknownEmail)
	}
}

func TestLoginLockoutAfterRepeatedFailures(t *testing.T) {
	f := newAuthFixture(t)
	f.createUser(t, "a@example.com", "correct horse")
	ctx := context.Background()
	meta := RequestMeta{IP: "10.0.0.1", UserAgent: "ua"}

	for i := 0; i < 5; i++ {
		if _, err := f.auth.Login(ctx, "a@example.com", "wrong", meta); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	// Locked now, even with the correct password, and the error does
	// not reveal whether the password was right.
	if _, err := f.auth.Login(ctx, "a@example.com", "correct horse", meta); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
	// A different IP is not locked.
	other := RequestMeta{IP: "10.0.0.2", UserAgent: "ua"}
	if _, err := f.auth.Login(ctx, "a@example.com", "correct horse", other); err != nil {
		t.Fatalf("other ip locked: %v", err)
	}
}

func TestTwoFactorLoginTwoStepFlow(t *testing.T) {
	f := newAuthFixture(t)
	user := f.createUser(t, "a@example.com", "correct horse")
	secret, _ := f.enrollTwoFactor(t, user.ID)
	ctx := context.Background()
	meta := RequestMeta{IP: "10.0.0.1", UserAgent: "ua"}

	step1, err := f.auth.Login(ctx, "a@example.com", "correct horse", meta)
	if err != nil {
		t.Fatalf("login step 1: %v", err)
	}
	if step1.Tokens != nil {
		t.Fatal("tokens issued before second factor")
	}
	if step1.ChallengeID == "" {
		t.Fatal("no challenge id returned")
	}

	// Wrong code keeps the challenge alive and issues nothing.
	if _, err := f.auth.CompleteTwoFactorLogin(ctx, step1.ChallengeID, "000000"); !errors.Is(err, ErrInvalidTwoFactorCode) {
		t.Fatalf("wrong code = %v", err)
	}

	code := totpCodeAt(t, secret, time.Now().Add(30*time.Second))
	step2, err := f.auth.CompleteTwoFactorLogin(ctx, step1.ChallengeID, code)
	if err != nil {
		t.Fatalf("login step 2: %v", err)
	}
	if step2.Tokens == nil {
		t.Fatal("no tokens after second factor")
	}

	// The challenge is single-use.
	if _, err := f.auth.CompleteTwoFactorLogin(ctx, step1.ChallengeID, code); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("challenge reuse = %v", err)
	}
}

func TestTwoFactorChallengeAttemptsExhaust(t *testing.T) {
	f := newAuthFixture(t)
	user := f.createUser(t, "a@example.com", "correct horse")
	f.enrollTwoFactor(t, user.ID)
	ctx := context.Background()
	meta := RequestMeta{IP: "10.0.0.1", UserAgent: "ua"}

	step1, err := f.auth.Login(ctx, "a@example.com", "correct horse", meta)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := f.auth.CompleteTwoFactorLogin(ctx, step1.ChallengeID, "000000"); err == nil {
			t.Fatalf("attempt %d succeeded with wrong code", i)
		}
	}
	if _, err := f.auth.CompleteTwoFactorLogin(ctx, step1.ChallengeID, "000000"); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected exhausted challenge, got %v", err)
	}
}

func TestLogoutRevokesTokenAndSession(t *testing.T) {
	f := newAuthFixture(t)
	f.createUser(t, "a@example.com", "correct horse")
	ctx := context.Background()
	meta := RequestMeta{IP: "10.0.0.1", UserAgent: "ua"}

	result, err := f.auth.Login(ctx, "a@example.com", "correct horse", meta)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	access := result.Tokens.AccessToken

	if _, err := f.auth.VerifyRequest(ctx, access); err != nil {
		t.Fatalf("verify before logout: %v", err)
	}
	if err := f.auth.Logout(ctx, access); err != nil {
		t.Fatalf("logout: %v", err)
	}
	// Signature and expiry are still valid; revocation and session
	// state reject it anyway.
	if _, err := f.auth.VerifyRequest(ctx, access); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("verify after logout = %v, want ErrUnauthorized", err)
	}
}

func TestRefreshAfterLogoutFailsWithSessionExpired(t *testing.T) {
	f := newAuthFixture(t)
	f.createUser(t, "a@example.com", "correct horse")
	ctx := context.Background()
	meta := RequestMeta{IP: "10.0.0.1", UserAgent: "ua"}

	result, err := f.auth.Login(ctx, "a@example.com", "correct horse", meta)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := f.auth.Logout(ctx, result.Tokens.AccessToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := f.auth.Refresh(ctx, result.Tokens.RefreshToken); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("refresh after logout = %v, want ErrSessionExpired", err)
	}
}

func TestRefreshIssuesNewAccessTokenWithoutRotation(t *testing.T) {
	f := newAuthFixture(t)
	f.createUser(t, "a@example.com", "correct horse")
	ctx := context.Background()
	meta := RequestMeta{IP: "10.0.0.1", UserAgent: "ua"}

	result, err := f.auth.Login(ctx, "a@example.com", "correct horse", meta)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	access, err := f.auth.Refresh(ctx, result.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if access.JTI == result.Tokens.AccessJTI {
		t.Fatal("refreshed access token reused jti")
	}
	if _, err := f.auth.VerifyRequest(ctx, access.Token); err != nil {
		t.Fatalf("verify refreshed token: %v", err)
	}
	// The same refresh token keeps working: no rotation.
	if _, err := f.auth.Refresh(ctx, result.Tokens.RefreshToken); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
}

func TestRefreshRejectsRevokedToken(t *testing.T) {
	f := newAuthFixture(t)
	f.createUser(t, "a@example.com", "correct horse")
	ctx := context.Background()
	meta := RequestMeta{IP: "10.0.0.1", UserAgent: "ua"}

	result, err := f.auth.Login(ctx, "a@example.com", "correct horse", meta)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	// Revoking the refresh jti directly simulates logout-by-refresh-token.
	if err := f.revocations.Revoke(ctx, result.Tokens.RefreshJTI, 1, result.Tokens.RefreshExpiresAt, "logout"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := f.auth.Refresh(ctx, result.Tokens.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("refresh with revoked token = %v, want ErrTokenRevoked", err)
	}
}

func TestRefreshRejectsGarbageToken(t *testing.T) {
	f := newAuthFixture(t)
	if _, err := f.auth.Refresh(context.Background(), "not-a-token"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("refresh garbage = %v, want ErrInvalidRefreshToken", err)
	}
}

func TestRefreshRejectsAccessTokenPresentedAsRefresh(t *testing.T) {
	f := newAuthFixture(t)
	f.createUser(t, "a@example.com", "correct horse")
	ctx := context.Background()
	meta := RequestMeta{IP: "10.0.0.1", UserAgent: "ua"}

	result, err := f.auth.Login(ctx, "a@example.com", "correct horse", meta)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := f.auth.Refresh(ctx, result.Tokens.AccessToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("access-as-refresh = %v, want ErrInvalidRefreshToken", err)
	}
}

func TestLogoutEverywhereKillsAllSessions(t *testing.T) {
	f := newAuthFixture(t)
	user := f.createUser(t, "a@example.com", "correct horse")
	ctx := context.Background()

	first, err := f.auth.Login(ctx, "a@example.com", "correct horse", RequestMeta{IP: "10.0.0.1", UserAgent: "laptop"})
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	second, err := f.auth.Login(ctx, "a@example.com", "correct horse", RequestMeta{IP: "10.0.0.2", UserAgent: "phone"})
	if err != nil {
		t.Fatalf("second login: %v", err)
	}

	count, err := f.auth.LogoutEverywhere(ctx, user.ID)
	if err != nil {
		t.Fatalf("logout everywhere: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 sessions invalidated, got %d", count)
	}
	for _, token := range []string{first.Tokens.AccessToken, second.Tokens.AccessToken} {
		if _, err := f.auth.VerifyRequest(ctx, token); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("token still valid after logout everywhere: %v", err)
		}
	}
}

func TestVerifyRequestRejectsGarbage(t *testing.T) {
	f := newAuthFixture(t)
	if _, err := f.auth.VerifyRequest(context.Background(), "garbage"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("verify garbage = %v, want ErrUnauthorized", err)
	}
}

func TestRevokeSessionEndsOnlyTheNamedSession(t *testing.T) {
	f := newAuthFixture(t)
	user := f.createUser(t, "a@example.com", "correct horse")
	ctx := context.Background()

	laptop, err := f.auth.Login(ctx, "a@example.com", "correct horse", RequestMeta{IP: "10.0.0.1", UserAgent: "laptop"})
	if err != nil {
		t.Fatalf("laptop login: %v", err)
	}
	phone, err := f.auth.Login(ctx, "a@example.com", "correct horse", RequestMeta{IP: "10.0.0.2", UserAgent: "phone"})
	if err != nil {
		t.Fatalf("phone login: %v", err)
	}

	if err := f.auth.RevokeSession(ctx, user.ID, phone.Tokens.SessionID); err != nil {
		t.Fatalf("revoke session: %v", err)
	}
	if _, err := f.auth.VerifyRequest(ctx, phone.Tokens.AccessToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("revoked session token still valid: %v", err)
	}
	if _, err := f.auth.VerifyRequest(ctx, laptop.Tokens.AccessToken); err != nil {
		t.Fatalf("unrelated session caught in revocation: %v", err)
	}
}

func TestRevokeSessionRejectsForeignAndUnknownIDs(t *testing.T) {
	f := newAuthFixture(t)
	f.createUser(t, "a@example.com", "correct horse")
	other := f.createUser(t, "b@example.com", "correct horse")
	ctx := context.Background()

	result, err := f.auth.Login(ctx, "a@example.com", "correct horse", RequestMeta{IP: "10.0.0.1", UserAgent: "ua"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := f.auth.RevokeSession(ctx, other.ID, result.Tokens.SessionID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("foreign revoke = %v, want ErrUnauthorized", err)
	}
	if err := f.auth.RevokeSession(ctx, other.ID, "no-such-session"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("unknown id revoke = %v, want ErrUnauthorized", err)
	}
	if _, err := f.auth.VerifyRequest(ctx, result.Tokens.AccessToken); err != nil {
		t.Fatalf("session harmed by rejected revoke: %v", err)
	}
}
