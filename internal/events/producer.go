package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/safar/franchise-orders/internal/config"
	"github.com/segmentio/kafka-go"
)

var (
	ErrBufferFull     = errors.New("event buffer full")
	ErrProducerClosed = errors.New("event producer closed")
)

const (
	defaultBuffer = 256
	writeTimeout  = 10 * time.Second
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer queues envelopes in memory and writes them from one goroutine.
// Messages are keyed by order id so every event of an order lands on the
// same partition.
type Producer struct {
	w      messageWriter
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	inbox  chan kafka.Message
	done   chan struct{}
}

// New returns a Kafka producer, or a NopPublisher when no brokers are set.
func New(cfg config.KafkaConfig, logger *slog.Logger) Publisher {
	if len(cfg.Brokers) == 0 {
		logger.Info("kafka brokers not configured, order events disabled")
		return NopPublisher{}
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
		Transport:    &kafka.Transport{ClientID: cfg.ClientID},
	}
	return newProducer(w, defaultBuffer, logger.With(slog.String("topic", cfg.Topic)))
}

func newProducer(w messageWriter, buf int, logger *slog.Logger) *Producer {
	p := &Producer{
		w:      w,
		logger: logger,
		inbox:  make(chan kafka.Message, buf),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *Producer) run() {
	defer close(p.done)

	for m := range p.inbox {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := p.w.WriteMessages(ctx, m); err != nil {
			p.logger.Error("publish event failed",
				slog.String("key", string(m.Key)),
				slog.String("error", err.Error()))
		}
		cancel()
	}

	if err := p.w.Close(); err != nil {
		p.logger.Error("close kafka writer", slog.String("error", err.Error()))
	}
}

func (p *Producer) Publish(ctx context.Context, ev Envelope) error {
	if ev.RequestID == "" {
		ev.RequestID = requestID(ctx)
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(ev.CorrelationID),
		Value: value,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "x-event-type", Value: []byte(ev.EventType)},
			{Key: "x-event-version", Value: []byte(strconv.Itoa(ev.EventVersion))},
		},
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}

	select {
	case p.inbox <- msg:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close stops accepting events, flushes what is queued and waits for the
// writer to shut down.
func (p *Producer) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.inbox)
	}
	p.mu.Unlock()

	<-p.done
	return nil
}
