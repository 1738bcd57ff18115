package gateway_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolgate/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResult_Contract(t *testing.T) {
	t.Parallel()

	ok := gateway.Success(map[string]any{"value": 1})
	assert.True(t, ok.OK)
	assert.True(t, ok.Valid())
	assert.Empty(t, ok.Error)
	assert.NotNil(t, ok.Payload)

	failed := gateway.Failure(gateway.KindNotFound, "no such city")
	assert.False(t, failed.OK)
	assert.True(t, failed.Valid())
	assert.Nil(t, failed.Payload)
	assert.Equal(t, gateway.KindNotFound, failed.Error)
	assert.Equal(t, "no such city", failed.Detail)

	// both populated violates the contract
	broken := &gateway.Result{OK: true, Payload: 1, Error: gateway.KindInternal}
	assert.False(t, broken.Valid())

	// neither populated violates the contract
	empty := &gateway.Result{OK: true}
	assert.False(t, empty.Valid())
}

func TestResult_String(t *testing.T) {
	t.Parallel()

	res := gateway.Failure(gateway.KindValidation, "city cannot be empty")
	assert.Equal(t, `{"ok":false,"error":"validation","detail":"city cannot be empty"}`, res.String())
}

func TestError(t *testing.T) {
	t.Parallel()

	err := gateway.Errorf(gateway.KindUpstream, "status %d", 502)
	assert.EqualError(t, err, "upstream: status 502")
	assert.Equal(t, gateway.KindUpstream, gateway.KindOf(err))

	wrapped := errors.WithMessage(err, "weather")
	assert.Equal(t, gateway.KindUpstream, gateway.KindOf(wrapped))
}

func TestKindOf_Unshaped(t *testing.T) {
	t.Parallel()

	assert.Equal(t, gateway.KindTimeout, gateway.KindOf(context.DeadlineExceeded))
	assert.Equal(t, gateway.KindTimeout, gateway.KindOf(context.Canceled))
	assert.Equal(t, gateway.KindInternal, gateway.KindOf(errors.New("boom")))
}

func TestResultFromError(t *testing.T) {
	t.Parallel()

	res := gateway.ResultFromError(gateway.NewError(gateway.KindValidation, "message cannot be empty"))
	require.NotNil(t, res)
	assert.True(t, res.Valid())
	assert.Equal(t, gateway.KindValidation, res.Error)
	assert.Equal(t, "message cannot be empty", res.Detail)

	// unshaped errors never leak their message
	res = gateway.ResultFromError(errors.New("pq: connection reset at 10.0.0.1"))
	assert.Equal(t, gateway.KindInternal, res.Error)
	assert.Equal(t, "unexpected error", res.Detail)

	res = gateway.ResultFromError(context.DeadlineExceeded)
	assert.Equal(t, gateway.KindTimeout, res.Error)
}
