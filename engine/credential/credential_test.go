package credential

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCredential_IsExpired(t *testing.T) {
	t.Run("Should report not expired when ExpiresAt is nil", func(t *testing.T) {
		c := &Credential{}
		assert.False(t, c.IsExpired(time.Now()))
	})

	t.Run("Should report expired once now is past ExpiresAt", func(t *testing.T) {
		past := time.Now().Add(-time.Hour)
		c := &Credential{ExpiresAt: &past}
		assert.True(t, c.IsExpired(time.Now()))
	})

	t.Run("Should report not expired when ExpiresAt is in the future", func(t *testing.T) {
		future := time.Now().Add(time.Hour)
		c := &Credential{ExpiresAt: &future}
		assert.False(t, c.IsExpired(time.Now()))
	})
}
