package errorbank

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func TestInvalidActionMessage(t *testing.T) {
	err := InvalidAction()
	assert.Equal(t, "Invalid action", err.Message())
	assert.Equal(t, KindInvalidAction, err.Kind())
	assert.True(t, err.ClientFault())
	assert.Equal(t, codes.InvalidArgument, err.GRPCCode())
}

func TestMalformedPayloadKeepsCauseMessage(t *testing.T) {
	cause := errors.New("unexpected end of JSON input")
	err := MalformedPayload(cause)

	assert.Equal(t, "unexpected end of JSON input", err.Message())
	assert.Equal(t, "unexpected end of JSON input", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestFromWrapsForeignErrors(t *testing.T) {
	cause := fmt.Errorf("quota exceeded")
	appErr := From(fmt.Errorf("wrapped: %w", Store(cause)))
	require.NotNil(t, appErr)
	assert.Equal(t, KindStore, appErr.Kind())
	assert.Equal(t, "quota exceeded", appErr.Message())
	assert.False(t, appErr.ClientFault())
	assert.Equal(t, codes.Unavailable, appErr.GRPCCode())

	plain := From(errors.New("boom"))
	assert.Equal(t, KindInternal, plain.Kind())
	assert.Equal(t, "boom", plain.Message())

	assert.Nil(t, From(nil))
}

func TestNilAppErrorIsSafe(t *testing.T) {
	var appErr *AppError
	assert.Equal(t, KindInternal, appErr.Kind())
	assert.Equal(t, "", appErr.Message())
	assert.Equal(t, codes.Internal, appErr.GRPCCode())
	assert.Nil(t, appErr.Details())
}

func TestWithDetail(t *testing.T) {
	err := InvalidAction(WithDetail("action", "dropAll"))
	assert.Equal(t, map[string]any{"action": "dropAll"}, err.Details())
	assert.True(t, err.ClientFault())
	assert.False(t, Store(errors.New("quota exceeded")).ClientFault())
}
