package rabbitmq

import (
	"context"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
)

// TestProducer_Publish_NoChannel проверяет ошибку публикации без канала
func TestProducer_Publish_NoChannel(t *testing.T) {
	producer := NewProducer(&Connection{}, NewConfig())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := producer.Publish(ctx, []byte(`{"task_uuid":"t-1"}`), WithRoutingKey("ce.task.finished"))
	assert.ErrorContains(t, err, "not initialized")
}

// TestPublishOptions проверяет функции опций публикации
func TestPublishOptions(t *testing.T) {
	opts := &PublishOptions{}

	WithExchange("ce.events")(opts)
	WithRoutingKey("ce.qualitygate.evaluated")(opts)
	WithMandatory(true)(opts)
	WithMessageID("msg-1")(opts)
	WithHeaders(amqp091.Table{"task_type": "REPORT"})(opts)

	assert.Equal(t, "ce.events", opts.Exchange)
	assert.Equal(t, "ce.qualitygate.evaluated", opts.RoutingKey)
	assert.True(t, opts.Mandatory)
	assert.Equal(t, "msg-1", opts.MessageID)
	assert.Equal(t, "REPORT", opts.Headers["task_type"])
}

func TestConnection_IsClosed_NoConn(t *testing.T) {
	conn := &Connection{}

	assert.True(t, conn.IsClosed())
	assert.Error(t, conn.HealthCheck(context.Background()))
}

func TestNewConfig_Defaults(t *testing.T) {
	config := NewConfig()

	assert.Equal(t, "topic", config.ExchangeType)
	assert.Equal(t, 10*time.Second, config.ConfirmTimeout)
}
