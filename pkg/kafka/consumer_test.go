package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"baria-go/pkg/resilience"
	"baria-go/pkg/tasks"
)

type fakeReader struct {
	msgs      []kafka.Message
	errs      []error
	fetches   int
	committed []int64
	closed    bool
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.fetches++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return kafka.Message{}, err
	}
	if len(f.msgs) == 0 {
		return kafka.Message{}, context.Canceled
	}
	m := f.msgs[0]
	f.msgs = f.msgs[1:]
	return m, nil
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error {
	f.closed = true
	return nil
}

type memAttempts struct {
	mu sync.Mutex
	n  map[string]int64
}

func (a *memAttempts) Incr(_ context.Context, key string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.n[key]++
	return a.n[key], nil
}

func (a *memAttempts) Reset(_ context.Context, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.n, key)
	return nil
}

type flakyProcessor struct {
	failFirst int
	calls     int
}

func (p *flakyProcessor) Process(_ context.Context, _ tasks.DocumentProcessingTask) error {
	p.calls++
	if p.calls <= p.failFirst {
		return errors.New("tika down")
	}
	return nil
}

func taskMessage(t *testing.T, offset int64, id string) kafka.Message {
	raw, err := json.Marshal(tasks.DocumentProcessingTask{TaskID: id, DocumentID: 1, FileName: "a.pdf"})
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Value: raw}
}

func TestConsumerCommitsSuccessAndMalformed(t *testing.T) {
	r := &fakeReader{msgs: []kafka.Message{
		{Offset: 1, Value: []byte("{not json")},
		taskMessage(t, 2, "t2"),
	}}
	p := &flakyProcessor{}
	c := newConsumer(r, p, &memAttempts{n: map[string]int64{}}, 3)
	c.Run(context.Background())

	assert.Equal(t, []int64{1, 2}, r.committed)
	assert.Equal(t, 1, p.calls)
	assert.True(t, r.closed)
}

func TestConsumerRetriesThenSucceeds(t *testing.T) {
	r := &fakeReader{msgs: []kafka.Message{taskMessage(t, 5, "t5")}}
	p := &flakyProcessor{failFirst: 2}
	attempts := &memAttempts{n: map[string]int64{}}
	c := newConsumer(r, p, attempts, 3)
	c.backoff = 0
	c.Run(context.Background())

	assert.Equal(t, 3, p.calls)
	assert.Equal(t, []int64{5}, r.committed)
	assert.Empty(t, attempts.n)
}

func TestConsumerGivesUpAfterMaxAttempts(t *testing.T) {
	r := &fakeReader{msgs: []kafka.Message{taskMessage(t, 7, "t7")}}
	p := &flakyProcessor{failFirst: 100}
	c := newConsumer(r, p, &memAttempts{n: map[string]int64{}}, 3)
	c.backoff = 0
	c.Run(context.Background())

	assert.Equal(t, 3, p.calls)
	assert.Equal(t, []int64{7}, r.committed)
}

func TestConsumerSurvivesFetchErrors(t *testing.T) {
	r := &fakeReader{
		errs: []error{errors.New("broker not available"), errors.New("i/o timeout")},
		msgs: []kafka.Message{taskMessage(t, 3, "t3")},
	}
	p := &flakyProcessor{}
	c := newConsumer(r, p, &memAttempts{n: map[string]int64{}}, 3)
	c.fetchRetry = resilience.RetryConfig{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

	c.Run(context.Background())
	assert.Equal(t, 4, r.fetches)
	assert.Equal(t, 1, p.calls)
	assert.Equal(t, []int64{3}, r.committed)
	assert.True(t, r.closed)
}

func TestConsumerStopsWhileBackingOff(t *testing.T) {
	r := &fakeReader{errs: []error{errors.New("broker not available")}}
	c := newConsumer(r, &flakyProcessor{}, &memAttempts{n: map[string]int64{}}, 3)
	c.fetchRetry = resilience.RetryConfig{InitialDelay: time.Hour, MaxDelay: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
	assert.True(t, r.closed)
}

func TestSplitBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, splitBrokers(" a:9092, ,b:9092"))
}
