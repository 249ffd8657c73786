package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	invdomain "github.com/KasparTech1/Friday01/internal/inventory/domain"
	orderdomain "github.com/KasparTech1/Friday01/internal/order/domain"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"validation", fmt.Errorf("%w: dealer id", orderdomain.ErrValidation), KindValidation},
		{"invalid quantity", invdomain.ErrInvalidQuantity, KindValidation},
		{"unknown part", fmt.Errorf("%w: X", invdomain.ErrUnknownPart), KindUnknownPart},
		{"not found", orderdomain.ErrOrderNotFound, KindNotFound},
		{"invalid state", orderdomain.ErrInvalidState, KindInvalidState},
		{"empty order", orderdomain.ErrEmptyOrder, KindEmptyOrder},
		{"availability", invdomain.ErrInsufficientAvailability, KindInsufficientAvailability},
		{"stock", invdomain.ErrInsufficientStock, KindInsufficientStock},
		{"commit wraps stock", fmt.Errorf("%w: order o: %w", invdomain.ErrCommitFailed, invdomain.ErrInsufficientStock), KindCommitFailed},
		{"commit wraps unknown part", fmt.Errorf("%w: %w", invdomain.ErrCommitFailed, invdomain.ErrUnknownPart), KindCommitFailed},
		{"canceled", context.Canceled, KindInternal},
		{"other", errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Translate(tt.err)
			var ie *Error
			require.ErrorAs(t, out, &ie)
			require.Equal(t, tt.want, ie.Kind)
			require.ErrorIs(t, out, tt.err)
			require.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestTranslateKeepsExistingKind(t *testing.T) {
	v := Validation("qty must be positive")
	require.Same(t, v, Translate(fmt.Errorf("wrapped: %w", v)))
	require.Nil(t, Translate(nil))
}
