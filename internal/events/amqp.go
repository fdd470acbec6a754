package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// publishTimeout bounds a single broker round trip.
const publishTimeout = 5 * time.Second

// redialInterval is the minimum gap between reconnect attempts, so an outage
// does not turn every Publish into a dial.
const redialInterval = time.Second

// ErrNotConnected is returned while the broker is down and a reconnect was
// attempted too recently.
var ErrNotConnected = errors.New("not connected to AMQP broker")

// amqpChannel is the part of *amqp091.Channel the publisher uses.
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	IsClosed() bool
	Close() error
}

type session struct {
	conn    io.Closer
	channel amqpChannel
}

func (s *session) close() {
	s.channel.Close()
	if s.conn != nil {
		s.conn.Close()
	}
}

type dialFunc func(url string) (*session, error)

func dialBroker(url string) (*session, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, err
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return &session{conn: conn, channel: channel}, nil
}

// AMQPPublisher publishes messages to a topic exchange, routed by event type.
// When the connection or channel drops it re-dials on the next Publish.
type AMQPPublisher struct {
	url          string
	exchangeName string
	dial         dialFunc
	now          func() time.Time

	mu       sync.Mutex
	sess     *session
	lastDial time.Time
}

// Dial connects to the broker at url and declares the exchange.
func Dial(url, exchangeName string) (*AMQPPublisher, error) {
	return newAMQPPublisher(url, exchangeName, dialBroker, time.Now)
}

func newAMQPPublisher(url, exchangeName string, dial dialFunc, now func() time.Time) (*AMQPPublisher, error) {
	p := &AMQPPublisher{
		url:          url,
		exchangeName: exchangeName,
		dial:         dial,
		now:          now,
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connectLocked(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *AMQPPublisher) connectLocked() error {
	p.lastDial = p.now()
	s, err := p.dial(p.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	err = s.channel.ExchangeDeclare(
		p.exchangeName, // name
		"topic",        // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		s.close()
		return fmt.Errorf("declare exchange: %w", err)
	}

	p.sess = s
	return nil
}

// channelLocked returns an open channel, reconnecting if the current one
// was closed by the broker.
func (p *AMQPPublisher) channelLocked() (amqpChannel, error) {
	if p.sess != nil && !p.sess.channel.IsClosed() {
		return p.sess.channel, nil
	}
	if p.sess != nil {
		slog.Warn("AMQP channel closed, reconnecting", "exchange", p.exchangeName)
		p.sess.close()
		p.sess = nil
	}
	if p.now().Sub(p.lastDial) < redialInterval {
		return nil, ErrNotConnected
	}
	if err := p.connectLocked(); err != nil {
		return nil, err
	}
	slog.Info("AMQP reconnected", "exchange", p.exchangeName)
	return p.sess.channel, nil
}

// Publish sends msg with its type as the routing key.
func (p *AMQPPublisher) Publish(ctx context.Context, msg *Message) error {
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	channel, err := p.channelLocked()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = channel.PublishWithContext(
		ctx,
		p.exchangeName,   // exchange
		string(msg.Type), // routing key
		false,            // mandatory
		false,            // immediate
		publishing(msg, body),
	)
	if err != nil {
		// Drop the session; the next Publish re-dials.
		p.sess.close()
		p.sess = nil
		return fmt.Errorf("publish message: %w", err)
	}

	slog.DebugContext(ctx, "Published ledger event",
		"type", msg.Type,
		"group_id", msg.GroupID,
		"exchange", p.exchangeName)

	return nil
}

// Connected reports whether the publisher holds an open channel.
func (p *AMQPPublisher) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sess != nil && !p.sess.channel.IsClosed()
}

func publishing(msg *Message, body []byte) amqp091.Publishing {
	return amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    msg.Timestamp,
		Type:         string(msg.Type),
		Body:         body,
	}
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sess != nil {
		p.sess.close()
		p.sess = nil
	}
	return nil
}
