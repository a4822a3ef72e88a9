package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type keyedEvent struct {
	TaskType string `json:"task_type"`
}

func (e keyedEvent) PartitionKey() string { return e.TaskType }

type mockWriter struct{ mock.Mock }

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func TestKafkaPublisher_UsesPartitionKey(t *testing.T) {
	// ARRANGE
	writer := new(mockWriter)
	writer.On("WriteMessages", mock.Anything, mock.MatchedBy(func(msgs []kafka.Message) bool {
		return len(msgs) == 1 &&
			string(msgs[0].Key) == "curation_cycle" &&
			string(msgs[0].Value) == `{"task_type":"curation_cycle"}`
	})).Return(nil).Once()
	pub := NewKafkaPublisher(writer, zap.NewNop())

	// ACT
	err := pub.Publish(context.Background(), keyedEvent{TaskType: "curation_cycle"})

	// ASSERT
	require.NoError(t, err)
	writer.AssertExpectations(t)
}

func TestKafkaPublisher_PropagatesWriteError(t *testing.T) {
	writer := new(mockWriter)
	writer.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()

	err := NewKafkaPublisher(writer, zap.NewNop()).Publish(context.Background(), map[string]int{"a": 1})

	assert.EqualError(t, err, "broker down")
}

func TestInMemoryEventBus_Fanout(t *testing.T) {
	bus := NewInMemoryEventBus("omnizap-worker-tasks")
	a := bus.Subscribe(1)
	b := bus.Subscribe(1)

	require.NoError(t, bus.Publish(context.Background(), keyedEvent{TaskType: "rebuild_cycle"}))
	// El buffer de 1 está lleno: el segundo mensaje se descarta sin bloquear.
	require.NoError(t, bus.Publish(context.Background(), keyedEvent{TaskType: "dropped"}))

	for _, ch := range []<-chan []byte{a, b} {
		var got keyedEvent
		require.NoError(t, json.Unmarshal(<-ch, &got))
		assert.Equal(t, "rebuild_cycle", got.TaskType)
		assert.Empty(t, ch)
	}
	assert.Equal(t, "omnizap-worker-tasks", bus.Topic())
}

type fakeReader struct {
	msgs []kafka.Message
	errs []error
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		return kafka.Message{}, err
	}
	if len(r.msgs) > 0 {
		msg := r.msgs[0]
		r.msgs = r.msgs[1:]
		return msg, nil
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) Config() kafka.ReaderConfig {
	return kafka.ReaderConfig{Topic: "omnizap-worker-tasks", Brokers: []string{"localhost:9092"}}
}

type recordingHandler struct {
	mu   sync.Mutex
	keys []string
}

func (h *recordingHandler) HandleMessage(_ context.Context, key string, _ []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.keys = append(h.keys, key)
}

func (h *recordingHandler) Keys() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.keys...)
}

func TestConsumerAdapter_SkipsReadErrorsAndStopsOnCancel(t *testing.T) {
	// ARRANGE
	reader := &fakeReader{
		errs: []error{errors.New("rebalance")},
		msgs: []kafka.Message{
			{Key: []byte("curation_cycle"), Value: []byte(`{}`)},
			{Key: []byte("rebuild_cycle"), Value: []byte(`{}`)},
		},
	}
	handler := &recordingHandler{}
	ctx, cancel := context.WithCancel(context.Background())

	// ACT
	done := NewConsumerAdapter(reader, handler, zap.NewNop()).Start(ctx)

	// ASSERT
	assert.Eventually(t, func() bool { return len(handler.Keys()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"curation_cycle", "rebuild_cycle"}, handler.Keys())

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop after cancel")
	}
}
