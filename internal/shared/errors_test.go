package shared

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOfClassifiesWrappedErrors(t *testing.T) {
	negative := NewKindError("inventory: insufficient stock", ErrBusinessRule)
	cases := []struct {
		err  error
		kind Kind
	}{
		{fmt.Errorf("post: %w", ErrInvalidArgument), KindValidation},
		{fmt.Errorf("load: %w", ErrNotFound), KindNotFound},
		{fmt.Errorf("insert: %w", ErrConflict), KindConflict},
		{fmt.Errorf("record: %w", negative), KindBusinessRule},
		{fmt.Errorf("lock: %w", ErrBusy), KindInfrastructure},
		{fmt.Errorf("lock: %w", ErrTimeout), KindInfrastructure},
		{errors.Join(ErrBusinessRule, ErrConsistency), KindConsistency},
		{context.Canceled, KindUnknown},
		{nil, KindUnknown},
	}
	for _, tc := range cases {
		require.Equal(t, tc.kind, KindOf(tc.err), "err=%v", tc.err)
	}
	require.True(t, errors.Is(negative, ErrBusinessRule))
	require.Equal(t, "business_rule", KindBusinessRule.String())
}

func TestIsRetryableOnlyForInfrastructure(t *testing.T) {
	require.True(t, IsRetryable(fmt.Errorf("x: %w", ErrBusy)))
	require.True(t, IsRetryable(ErrTimeout))
	require.False(t, IsRetryable(ErrConflict))
	require.False(t, IsRetryable(ErrConsistency))
}
