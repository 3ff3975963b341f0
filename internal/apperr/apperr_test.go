package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{InvalidArgument, http.StatusBadRequest},
		{NotFound, http.StatusNotFound},
		{Conflict, http.StatusConflict},
		{InvalidState, http.StatusUnprocessableEntity},
		{Forbidden, http.StatusForbidden},
		{GatewayFailure, http.StatusBadGateway},
		{Internal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.HTTPStatus())
		})
	}
}

func TestKindOfWrappedError(t *testing.T) {
	cause := errors.New("dial tcp: i/o timeout")
	err := fmt.Errorf("verify: %w", Wrap(GatewayFailure, "payment gateway unavailable", cause))

	assert.Equal(t, GatewayFailure, KindOf(err))
	assert.True(t, Is(err, GatewayFailure))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "payment gateway unavailable", Message(err))
}

func TestUnclassifiedErrorIsInternal(t *testing.T) {
	err := errors.New("boom")

	assert.Equal(t, Internal, KindOf(err))
	assert.Equal(t, "internal error", Message(err))
	assert.Equal(t, "internal error", Message(New(Internal, "missing data in provider response")))
	assert.False(t, Is(nil, Internal))
}
