// Package refcode генерирует человекочитаемые коды заявок.
package refcode

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NewRequestCode возвращает код вида REQ-YYYYMMDD-XXXX.
func NewRequestCode(now time.Time) (string, error) {
	suffix := make([]byte, 4)
	max := big.NewInt(int64(len(letters)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("refcode: %w", err)
		}
		suffix[i] = letters[n.Int64()]
	}
	return fmt.Sprintf("REQ-%s-%s", now.UTC().Format("20060102"), suffix), nil
}
