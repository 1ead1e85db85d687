package errorbank

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func TestStatusCodeMapping(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{KindBadRequest, http.StatusBadRequest},
		{KindConflict, http.StatusConflict},
		{KindNotFound, http.StatusNotFound},
		{KindInsufficientStock, http.StatusUnprocessableEntity},
		{KindInvalidTransition, http.StatusUnprocessableEntity},
		{KindTimeout, http.StatusGatewayTimeout},
		{KindUpstream, http.StatusBadGateway},
		{KindIO, http.StatusInternalServerError},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, New(tc.kind, "").StatusCode(), string(tc.kind))
	}
}

func TestGRPCCodeMapping(t *testing.T) {
	assert.Equal(t, codes.InvalidArgument, BadRequest("x").GRPCCode())
	assert.Equal(t, codes.FailedPrecondition, InvalidTransition("x").GRPCCode())
	assert.Equal(t, codes.FailedPrecondition, InsufficientStock("x").GRPCCode())
	assert.Equal(t, codes.DeadlineExceeded, Timeout("x").GRPCCode())
	assert.Equal(t, codes.NotFound, NotFound("x").GRPCCode())
	assert.Equal(t, codes.Internal, Internal("x").GRPCCode())
}

func TestWithCauseUnwraps(t *testing.T) {
	cause := errors.New("root cause")
	err := Internal("wrapper", WithCause(cause))

	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "root cause")
}

func TestDetails(t *testing.T) {
	err := InsufficientStock("out of stock",
		WithDetail("available", 2),
		WithDetails(map[string]any{"requested": 5}),
	)

	assert.Equal(t, 2, err.Details()["available"])
	assert.Equal(t, 5, err.Details()["requested"])
}

func TestFrom(t *testing.T) {
	appErr := NotFound("missing")
	assert.Same(t, appErr, From(appErr))

	wrapped := fmt.Errorf("context: %w", appErr)
	assert.Same(t, appErr, From(wrapped))

	plain := errors.New("plain")
	converted := From(plain)
	require.NotNil(t, converted)
	assert.Equal(t, KindInternal, converted.Kind())
	assert.True(t, errors.Is(converted, plain))

	assert.Nil(t, From(nil))
}

func TestIsKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", InvalidTransition("nope"))

	assert.True(t, IsKind(err, KindInvalidTransition))
	assert.False(t, IsKind(err, KindBadRequest))
	assert.False(t, IsKind(errors.New("plain"), KindInternal))
}

func TestEmptyMessageDefaultsToKind(t *testing.T) {
	err := New(KindConflict, "")
	assert.Equal(t, "conflict", err.Message())
}
