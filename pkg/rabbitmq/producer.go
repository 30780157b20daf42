package rabbitmq

import (
	"context"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Producer публикует сообщения в exchange с подтверждениями брокера
type Producer struct {
	conn   *Connection
	config *Config
}

// NewProducer создает нового продюсера
func NewProducer(conn *Connection, config *Config) *Producer {
	return &Producer{conn: conn, config: config}
}

// Publish публикует сообщение и ждет подтверждения.
// Канал AMQP не потокобезопасен, поэтому публикации сериализуются.
func (p *Producer) Publish(ctx context.Context, body []byte, options ...PublishOption) error {
	opts := &PublishOptions{
		Exchange:    p.config.Exchange,
		ContentType: "application/json",
	}
	for _, option := range options {
		option(opts)
	}

	if p.conn == nil || p.conn.channel == nil {
		return fmt.Errorf("rabbitmq channel is not initialized")
	}

	p.conn.mu.Lock()
	defer p.conn.mu.Unlock()

	msg := amqp091.Publishing{
		ContentType:  opts.ContentType,
		Body:         body,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		MessageId:    opts.MessageID,
		Headers:      opts.Headers,
	}

	if err := p.conn.channel.PublishWithContext(ctx, opts.Exchange, opts.RoutingKey, opts.Mandatory, false, msg); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	timeout := p.config.ConfirmTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	select {
	case confirm, ok := <-p.conn.confirms:
		if !ok {
			return fmt.Errorf("confirmation channel closed")
		}
		if !confirm.Ack {
			return fmt.Errorf("message rejected by broker")
		}
	case <-ctx.Done():
		return fmt.Errorf("context cancelled while waiting for confirmation: %w", ctx.Err())
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for confirmation")
	}

	return nil
}

// PublishOptions представляет опции публикации
type PublishOptions struct {
	Exchange    string
	RoutingKey  string
	Mandatory   bool
	ContentType string
	MessageID   string
	Headers     amqp091.Table
}

// PublishOption функция для настройки опций публикации
type PublishOption func(*PublishOptions)

// WithExchange устанавливает exchange
func WithExchange(exchange string) PublishOption {
	return func(opts *PublishOptions) {
		opts.Exchange = exchange
	}
}

// WithRoutingKey устанавливает routing key
func WithRoutingKey(routingKey string) PublishOption {
	return func(opts *PublishOptions) {
		opts.RoutingKey = routingKey
	}
}

// WithMandatory устанавливает mandatory флаг
func WithMandatory(mandatory bool) PublishOption {
	return func(opts *PublishOptions) {
		opts.Mandatory = mandatory
	}
}

// WithMessageID устанавливает идентификатор сообщения
func WithMessageID(id string) PublishOption {
	return func(opts *PublishOptions) {
		opts.MessageID = id
	}
}

// WithHeaders устанавливает заголовки
func WithHeaders(headers amqp091.Table) PublishOption {
	return func(opts *PublishOptions) {
		opts.Headers = headers
	}
}
