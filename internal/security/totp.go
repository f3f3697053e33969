package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const totpSecretBytes = 20

// TOTPConfig controls RFC 6238 code generation and verification.
type TOTPConfig struct {
	Issuer string
	Period int
	Digits int
	Skew   int
}

func (c TOTPConfig) withDefaults() TOTPConfig {
	if c.Period <= 0 {
		c.Period = 30
	}
	if c.Digits <= 0 {
		c.Digits = 6
	}
	if c.Skew < 0 {
		c.Skew = 0
	}
	return c
}

// TOTPManager generates shared secrets and verifies time-based one-time
// codes. Verification reports the matched time step so callers can enforce
// single use per step.
type TOTPManager struct {
	config TOTPConfig
}

func NewTOTPManager(cfg TOTPConfig) *TOTPManager {
	return &TOTPManager{config: cfg.withDefaults()}
}

// GenerateSecret returns a fresh random secret, base32-encoded without
// padding as authenticator apps expect.
func (m *TOTPManager) GenerateSecret() (string, error) {
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw), nil
}

// ProvisioningURI builds the otpauth:// URI embedding the account label
// for display in an authenticator app.
func (m *TOTPManager) ProvisioningURI(secret, account string) string {
	label := url.PathEscape(m.config.Issuer + ":" + account)
	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", m.config.Issuer)
	v.Set("period", strconv.Itoa(m.config.Period))
	v.Set("digits", strconv.Itoa(m.config.Digits))
	v.Set("algorithm", "SHA1")
	return "otpauth://totp/" + label + "?" + v.Encode()
}

// VerifyCode checks a submitted code against the secret within the
// configured skew window. On a match it returns the counter (time step)
// that produced the code.
func (m *TOTPManager) VerifyCode(secret, code string, now time.Time) (bool, int64, error) {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) != m.config.Digits || !isDigits(trimmed) {
		return false, 0, nil
	}
	key, err := decodeBase32(secret)
	if err != nil {
		return false, 0, errors.New("malformed totp secret")
	}
	if len(key) == 0 {
		return false, 0, errors.New("empty totp secret")
	}

	baseCounter := now.Unix() / int64(m.config.Period)
	for step := -m.config.Skew; step <= m.config.Skew; step++ {
		counter := baseCounter + int64(step)
		if counter < 0 {
			continue
		}
		generated := hotpCode(key, counter, m.config.Digits)
		if subtle.ConstantTimeCompare([]byte(generated), []byte(trimmed)) == 1 {
			return true, counter, nil
		}
	}
	return false, 0, nil
}

func hotpCode(secret []byte, counter int64, digits int) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, bin%mod)
}

func decodeBase32(secret string) ([]byte, error) {
	return base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(secret))
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
