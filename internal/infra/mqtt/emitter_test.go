package mqtt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPublishWithoutConnectionFails(t *testing.T) {
	e := NewStatusEmitter(EmitterConfig{
		Broker:   "127.0.0.1:1",
		ClientID: "test",
		Topic:    "fiapx/analysis/status",
	}, zap.NewNop())

	err := e.PublishStatus(context.Background(), []byte(`{}`))
	assert.ErrorContains(t, err, "not connected")

	published, failed := e.Stats()
	assert.Zero(t, published)
	assert.Equal(t, uint64(1), failed)
}

func TestCloseAfterFailedConnect(t *testing.T) {
	e := NewStatusEmitter(EmitterConfig{
		Broker:   "127.0.0.1:1",
		ClientID: "test-close",
		Topic:    "fiapx/analysis/status",
	}, zap.NewNop())

	require.Error(t, e.Connect(context.Background()))
	assert.NotPanics(t, e.Close)
	assert.False(t, e.client.IsConnected())
	assert.False(t, e.isConnected())
}
