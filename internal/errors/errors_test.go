package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"

	"github.com/victornm/wordroyale/internal/errors"
)

func TestError_Is(t *testing.T) {
	tests := map[string]struct {
		err    error
		target error
		want   bool
	}{
		"derived error should match its sentinel": {
			err:    errors.ErrRateLimited.With(errors.WithMessagef("wait %dms", 10)),
			target: errors.ErrRateLimited,
			want:   true,
		},
		"wrapped derived error should match its sentinel": {
			err:    fmt.Errorf("submit: %w", errors.ErrRoundEnded.With()),
			target: errors.ErrRoundEnded,
			want:   true,
		},
		"different reasons should not match": {
			err:    errors.ErrRoundEnded,
			target: errors.ErrRoundNotFound,
			want:   false,
		},
		"errors without reason should only match themselves": {
			err:    errors.New(errors.CodeInternal),
			target: errors.New(errors.CodeInternal),
			want:   false,
		},
		"plain errors should not match": {
			err:    stderrors.New("boom"),
			target: errors.ErrGameNotFound,
			want:   false,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}

func TestError_StatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusTooManyRequests, errors.ErrRateLimited.HTTPStatusCode())
	assert.Equal(t, http.StatusNotFound, errors.ErrGameNotFound.HTTPStatusCode())
	assert.Equal(t, http.StatusBadRequest, errors.ErrPlayerEliminated.HTTPStatusCode())
	assert.Equal(t, http.StatusInternalServerError, errors.Convert(stderrors.New("db down")).HTTPStatusCode())
	assert.Equal(t, codes.ResourceExhausted, errors.ErrRateLimited.GRPCStatus().Code())
}

func TestConvert_KeepsCause(t *testing.T) {
	cause := stderrors.New("db down")
	e := errors.Convert(fmt.Errorf("load: %w", cause))

	assert.Equal(t, errors.CodeInternal, e.Code)
	assert.ErrorIs(t, e, cause)
}
