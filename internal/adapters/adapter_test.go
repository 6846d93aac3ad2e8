package adapters

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workflow-orchestrator/backend/pkg/models"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	builds := 0
	echo := AdapterFunc(func(_ context.Context, _ *models.Component, _ models.Payload, input models.Payload) (models.Payload, error) {
		return input, nil
	})
	require.NoError(t, r.Register(models.EndpointTypeFunction, func() (Adapter, error) {
		builds++
		return echo, nil
	}))

	assert.True(t, r.Has(models.EndpointTypeFunction))
	assert.False(t, r.Has(models.EndpointTypeAPI))

	for i := 0; i < 3; i++ {
		a, err := r.Resolve(models.EndpointTypeFunction)
		require.NoError(t, err)
		out, err := a.Invoke(context.Background(), nil, nil, models.Payload{"x": 1.0})
		require.NoError(t, err)
		assert.Equal(t, models.Payload{"x": 1.0}, out)
	}
	assert.Equal(t, 1, builds, "factory runs once")

	_, err := r.Resolve(models.EndpointTypeAPI)
	assert.ErrorIs(t, err, ErrNoAdapter)

	assert.Error(t, r.Register("grpc", Instance(echo)))
	assert.Error(t, r.Register(models.EndpointTypeModel, nil))
}

func TestRegistry_FactoryError(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("missing profile")
	require.NoError(t, r.Register(models.EndpointTypeModel, func() (Adapter, error) { return nil, boom }))

	_, err := r.Resolve(models.EndpointTypeModel)
	assert.ErrorIs(t, err, boom)
	_, err = r.Resolve(models.EndpointTypeModel)
	assert.ErrorIs(t, err, boom)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient", Transient(errors.New("flaky")), true},
		{"permanent", Permanent(errors.New("bad input")), false},
		{"wrapped transient", fmt.Errorf("step 2: %w", Transient(errors.New("flaky"))), true},
		{"503", StatusError(http.StatusServiceUnavailable, ""), true},
		{"429", StatusError(http.StatusTooManyRequests, ""), true},
		{"408", StatusError(http.StatusRequestTimeout, ""), true},
		{"501", StatusError(http.StatusNotImplemented, ""), false},
		{"400", StatusError(http.StatusBadRequest, "missing field"), false},
		{"404", StatusError(http.StatusNotFound, ""), false},
		{"invalid config", invalidConfig("url is required"), false},
		{"connection refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, true},
		{"net timeout", &net.OpError{Op: "read", Err: timeoutErr{}}, true},
		{"deadline", context.DeadlineExceeded, false},
		{"plain", errors.New("unknown"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestStatusError(t *testing.T) {
	err := StatusError(http.StatusBadGateway, "upstream down")
	var inv *InvocationError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, http.StatusBadGateway, inv.StatusCode)
	assert.Equal(t, "status 502: upstream returned Bad Gateway: upstream down", err.Error())
	assert.ErrorIs(t, invalidConfig("x"), ErrInvalidConfig)
}
