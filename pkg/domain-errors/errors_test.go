package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	t.Run("plain error maps to internal", func(t *testing.T) {
		assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	})

	t.Run("wrapped domain error keeps its code", func(t *testing.T) {
		err := fmt.Errorf("approve: %w", New(CodeConflict, "edge exists"))
		assert.Equal(t, CodeConflict, CodeOf(err))
		assert.True(t, HasCode(err, CodeConflict))
		assert.False(t, HasCode(err, CodeNotFound))
	})

	t.Run("wrap keeps the cause reachable", func(t *testing.T) {
		cause := errors.New("connection reset")
		err := Wrap(cause, CodeInternal, "failed to load suggestion")
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "failed to load suggestion")
	})
}
