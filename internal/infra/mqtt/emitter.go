package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

type EmitterConfig struct {
	Broker   string
	ClientID string
	Topic    string
	QoS      byte
}

// StatusEmitter mirrors analysis status messages to an MQTT topic so that
// dashboards can follow jobs without a RabbitMQ binding.
type StatusEmitter struct {
	cfg    EmitterConfig
	client pahomqtt.Client
	logger *zap.Logger

	mu        sync.RWMutex
	connected bool
	published uint64
	errors    uint64
}

func NewStatusEmitter(cfg EmitterConfig, logger *zap.Logger) *StatusEmitter {
	e := &StatusEmitter{cfg: cfg, logger: logger}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.Broker))
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(pahomqtt.Client) {
		e.setConnected(true)
		logger.Info("mqtt connection established", zap.String("broker", cfg.Broker))
	}
	opts.OnConnectionLost = func(_ pahomqtt.Client, err error) {
		e.setConnected(false)
		logger.Warn("mqtt connection lost, will auto-reconnect", zap.String("broker", cfg.Broker), zap.Error(err))
	}

	e.client = pahomqtt.NewClient(opts)
	return e
}

func (e *StatusEmitter) Connect(_ context.Context) error {
	token := e.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	e.setConnected(true)
	return nil
}

// PublishStatus implements port.StatusPublisher.
func (e *StatusEmitter) PublishStatus(_ context.Context, msg []byte) error {
	if !e.isConnected() {
		e.countError()
		return fmt.Errorf("mqtt not connected")
	}

	token := e.client.Publish(e.cfg.Topic, e.cfg.QoS, false, msg)
	if !token.WaitTimeout(publishTimeout) {
		e.countError()
		return fmt.Errorf("mqtt publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("mqtt publish failed: %w", err)
	}

	e.mu.Lock()
	e.published++
	e.mu.Unlock()
	e.logger.Debug("status mirrored to mqtt", zap.String("topic", e.cfg.Topic), zap.Int("size", len(msg)))
	return nil
}

// Stats returns the number of published messages and failed attempts.
func (e *StatusEmitter) Stats() (published, failed uint64) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.published, e.errors
}

// Close stops the client, including any reconnect loop left behind by a
// failed Connect.
func (e *StatusEmitter) Close() {
	e.client.Disconnect(250)
	e.setConnected(false)
}

func (e *StatusEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *StatusEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *StatusEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
