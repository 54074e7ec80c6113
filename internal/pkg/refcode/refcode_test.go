package refcode

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequestCode(t *testing.T) {
	at := time.Date(2026, 3, 14, 23, 30, 0, 0, time.FixedZone("CET", 3600))

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := NewRequestCode(at)
		require.NoError(t, err)
		assert.Regexp(t, `^REQ-20260314-[A-Z]{4}$`, code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 1)
}
