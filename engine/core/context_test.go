package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_RequestIDContext(t *testing.T) {
	t.Run("Should set and get request id from context", func(t *testing.T) {
		ctx := context.Background()
		ctx = WithRequestID(ctx, "req-123")
		id, err := GetRequestID(ctx)
		assert.NoError(t, err)
		assert.Equal(t, "req-123", id)
	})
	t.Run("Should error when request id not present", func(t *testing.T) {
		_, err := GetRequestID(context.Background())
		assert.ErrorContains(t, err, "request id not found")
	})
}
