package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

const backupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewBackupCodes returns count random single-use codes in XXXX-XXXX form.
// The alphabet omits easily confused characters.
func NewBackupCodes(count, length int) ([]string, error) {
	if count <= 0 {
		return nil, nil
	}
	if length <= 0 {
		length = 8
	}
	codes := make([]string, 0, count)
	for i := 0; i < count; i++ {
		var b strings.Builder
		for j := 0; j < length; j++ {
			if j > 0 && j%4 == 0 {
				b.WriteByte('-')
			}
			n, err := rand.Int(rand.Reader, big.NewInt(int64(len(backupCodeAlphabet))))
			if err != nil {
				return nil, fmt.Errorf("generate backup code: %w", err)
			}
			b.WriteByte(backupCodeAlphabet[n.Int64()])
		}
		codes = append(codes, b.String())
	}
	return codes, nil
}

// HashBackupCode normalizes and hashes a backup code for storage and
// lookup. Codes are compared by digest, never stored in the clear.
func HashBackupCode(code string) string {
	normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), "-", ""))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
