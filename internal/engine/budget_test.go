package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepQuota_UnderLimit(t *testing.T) {
	q := NewStepQuota(100)

	for i := 0; i < 100; i++ {
		require.NoError(t, q.Check(), "step %d", i+1)
	}
	assert.Equal(t, 100, q.Current())
	assert.Equal(t, 100, q.MaxSteps())
}

func TestStepQuota_ExceedsLimit(t *testing.T) {
	q := NewStepQuota(3)

	require.NoError(t, q.Check())
	require.NoError(t, q.Check())
	require.NoError(t, q.Check())

	err := q.Check()
	require.Error(t, err)
	assert.True(t, IsStepsExceededError(err))

	var se *StepsExceededError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 4, se.Steps)
	assert.Equal(t, 3, se.Limit)
	assert.Contains(t, se.Error(), "4 steps > 3 limit")
}

func TestStepQuota_Disabled(t *testing.T) {
	for _, limit := range []int{0, -1} {
		q := NewStepQuota(limit)
		for i := 0; i < 10_000; i++ {
			require.NoError(t, q.Check())
		}
		assert.Equal(t, 10_000, q.Current())
	}
}

func TestIsStepLimitError(t *testing.T) {
	se := &StepsExceededError{Steps: 11, Limit: 10}

	assert.True(t, IsStepLimitError(se))
	assert.True(t, IsStepLimitError(fmt.Errorf("wrapped: %w", se)))
	assert.True(t, IsStepLimitError(NewStepLimitError("r", se)))
	assert.True(t, IsStepLimitError(NewDepthLimitError("r", 101, 100)))
	assert.False(t, IsStepLimitError(NewSizeLimitError("r", 5)))
	assert.False(t, IsStepLimitError(nil))
}

func TestGenError_Codes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code GenErrorCode
		is   func(error) bool
	}{
		{"size", NewSizeLimitError("expr", 10), ErrCodeSizeLimit, IsSizeLimitError},
		{"constraint", NewConstraintError("ident", "if", 8), ErrCodeConstraintUnsatisfiable, IsConstraintError},
		{"steps", NewStepLimitError("expr", &StepsExceededError{Steps: 2, Limit: 1}), ErrCodeStepLimit, IsStepLimitError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("generate: %w", tt.err)
			assert.Equal(t, tt.code, CodeOf(wrapped))
			assert.True(t, tt.is(wrapped))
			assert.Contains(t, tt.err.Error(), string(tt.code))
			assert.Contains(t, tt.err.Error(), "rule=")
		})
	}

	assert.Equal(t, GenErrorCode(""), CodeOf(&UnknownRuleError{Name: "x"}))
	assert.False(t, IsSizeLimitError(&UnknownRuleError{Name: "x"}))
}

func TestNewConstraintError_Details(t *testing.T) {
	err := NewConstraintError("ident", "if", 8)

	assert.Equal(t, "if", err.Details["forbidden"])
	assert.Equal(t, "8", err.Details["retries"])
	assert.Equal(t, "ident", err.Rule)
}
