package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "video.analysis", cfg.RabbitMQAnalysisQueue)
	assert.Equal(t, "reports", cfg.MinIOReportBucket)
	assert.Equal(t, []string{"-u", "perception/worker.py"}, cfg.PerceptionArgs)
	assert.Equal(t, 30*time.Second, cfg.PerceptionTimeout)
	assert.Equal(t, 30*time.Second, cfg.FFmpegFrameTimeout)
	assert.Empty(t, cfg.MQTTBroker)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PERCEPTION_COMMAND", "/opt/perception/bin/worker")
	t.Setenv("PERCEPTION_ARGS", "--model,yolov8n.pt,--max-faces,2")
	t.Setenv("PERCEPTION_TIMEOUT", "5s")
	t.Setenv("WORKER_COUNT", "4")
	t.Setenv("MQTT_BROKER", "mosquitto:1883")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/opt/perception/bin/worker", cfg.PerceptionCommand)
	assert.Equal(t, []string{"--model", "yolov8n.pt", "--max-faces", "2"}, cfg.PerceptionArgs)
	assert.Equal(t, 5*time.Second, cfg.PerceptionTimeout)
	assert.Equal(t, 4, cfg.WorkerCount)
	assert.Equal(t, "mosquitto:1883", cfg.MQTTBroker)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("WORKER_COUNT", "many")
	_, err := Load()
	assert.Error(t, err)
}
