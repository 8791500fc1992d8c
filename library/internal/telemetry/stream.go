package telemetry

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-records/pkg/circuit_breaker"
)

type Event struct {
	ID        uuid.UUID         `json:"id"`
	Name      string            `json:"name"`
	Attrs     map[string]string `json:"attrs"`
	Timestamp time.Time         `json:"timestamp"`
}

// LoanStream publishes recorded events to a kafka topic.
// Events are queued into a bounded buffer and dropped when it is full;
// a single goroutine drains the buffer through the circuit breaker.
type LoanStream struct {
	producer sarama.SyncProducer
	cb       circuit_breaker.CircuitBreaker
	topic    string
	log      *zap.Logger

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewLoanStream(producer sarama.SyncProducer, topic string, buffer int, log *zap.Logger) *LoanStream {
	if buffer <= 0 {
		buffer = 1
	}
	s := &LoanStream{
		producer: producer,
		cb:       circuit_breaker.New(20, 10*time.Second, 0.5, 3),
		topic:    topic,
		log:      log.Named("loan-stream"),
		events:   make(chan Event, buffer),
		done:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

var _ Recorder = (*LoanStream)(nil)

func (s *LoanStream) RecordEvent(_ context.Context, name string, attrs map[string]string) {
	ev := Event{
		ID:        uuid.New(),
		Name:      name,
		Attrs:     copyAttrs(attrs),
		Timestamp: time.Now().UTC(),
	}
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.events <- ev:
	default:
		s.log.Debug("event dropped", zap.String("name", name))
	}
}

func (s *LoanStream) RecordDuration(context.Context, string, float64)             {}
func (s *LoanStream) IncrementCounter(context.Context, string, map[string]string) {}

func (s *LoanStream) StartSpan(ctx context.Context, _ string, _ map[string]string) (context.Context, Span) {
	return ctx, nopSpan{}
}

// Close stops accepting events, flushes the buffer and closes the producer.
func (s *LoanStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		err = s.producer.Close()
	})
	return err
}

func (s *LoanStream) run() {
	defer s.wg.Done()
	for {
		select {
		case ev := <-s.events:
			s.publish(ev)
		case <-s.done:
			for {
				select {
				case ev := <-s.events:
					s.publish(ev)
				default:
					return
				}
			}
		}
	}
}

func (s *LoanStream) publish(ev Event) {
	value, err := json.Marshal(ev)
	if err != nil {
		s.log.Debug("marshal event", zap.Error(err))
		return
	}
	err = s.cb.Call(func() error {
		_, _, err := s.producer.SendMessage(&sarama.ProducerMessage{
			Topic: s.topic,
			Key:   sarama.StringEncoder(ev.Attrs["book.id"]),
			Value: sarama.ByteEncoder(value),
		})
		return err
	})
	if err != nil {
		s.log.Debug("publish event", zap.String("name", ev.Name), zap.Error(err))
	}
}

func copyAttrs(attrs map[string]string) map[string]string {
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
