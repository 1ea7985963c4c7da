package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/spec-kit/visit-verification/internal/domain"
)

// CodeHasher derives the stored form of a code value. The hash binds the
// value to its member and purpose so equal digits never share a hash.
type CodeHasher struct {
	key []byte
}

// NewCodeHasher keys BLAKE2b with secret. Secrets longer than the 64 byte
// key limit are compressed first.
func NewCodeHasher(secret string) *CodeHasher {
	key := []byte(secret)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum512(key)
		key = sum[:]
	}
	return &CodeHasher{key: key}
}

func (h *CodeHasher) Hash(memberID string, purpose domain.CodePurpose, value string) string {
	mac, err := blake2b.New256(h.key)
	if err != nil {
		panic(fmt.Sprintf("blake2b key: %v", err))
	}
	mac.Write([]byte(memberID))
	mac.Write([]byte{0})
	mac.Write([]byte(purpose))
	mac.Write([]byte{0})
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}

// ValueGenerator produces the plaintext of a new code.
type ValueGenerator func(length int) (string, error)

// RandomDigits draws length decimal digits uniformly from crypto/rand.
func RandomDigits(length int) (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	digits := n.String()
	return strings.Repeat("0", length-len(digits)) + digits, nil
}

func pairLockKey(memberID string, purpose domain.CodePurpose) string {
	return "verification:" + memberID + ":" + string(purpose)
}

func visitLockKey(visitID string) string {
	return "visit:" + visitID
}

func claimLockKey(claimID string) string {
	return "claim:" + claimID
}
