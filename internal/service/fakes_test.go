package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"baria-go/internal/model"
	"baria-go/internal/repository"
	"baria-go/internal/store"
	"baria-go/internal/vectorindex"
	"baria-go/pkg/llm"
)

const testDim = 4

// fakeEmbedder maps known texts to fixed vectors and everything else to a
// letter histogram, so similar texts land close together.
type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	calls   int
	texts   []string
	err     error
	dim     int
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{vectors: make(map[string][]float32), dim: testDim}
}

func (f *fakeEmbedder) Dimensions() int { return testDim }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.texts = append(f.texts, texts...)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := f.vectors[t]; ok {
			out[i] = vectorindex.Normalize(v)
			continue
		}
		v := make([]float32, f.dim)
		for _, r := range strings.ToLower(t) {
			v[int(r)%f.dim]++
		}
		out[i] = vectorindex.Normalize(v)
	}
	return out, nil
}

func (f *fakeEmbedder) embedded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func newMemoryStore() store.Store {
	return store.NewIndexedStore("memory", repository.NewMemoryChunkRepository(), vectorindex.NewFlat(testDim))
}

type fakeLLM struct {
	mu     sync.Mutex
	answer string
	err    error
	// partial is how many parts StreamChat sends before failing with err.
	partial  int
	messages [][]llm.Message
	gens     []*llm.GenerationParams
}

func (f *fakeLLM) record(messages []llm.Message, gen *llm.GenerationParams) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, messages)
	f.gens = append(f.gens, gen)
}

func (f *fakeLLM) Chat(_ context.Context, messages []llm.Message, gen *llm.GenerationParams) (string, error) {
	f.record(messages, gen)
	if f.err != nil {
		return "", f.err
	}
	return strings.TrimSpace(f.answer), nil
}

func (f *fakeLLM) StreamChat(_ context.Context, messages []llm.Message, gen *llm.GenerationParams, w llm.MessageWriter) (string, error) {
	f.record(messages, gen)
	var sent strings.Builder
	for i, part := range strings.SplitAfter(f.answer, " ") {
		if f.err != nil && i == f.partial {
			break
		}
		if err := w.WriteMessage(1, []byte(part)); err != nil {
			return "", err
		}
		sent.WriteString(part)
	}
	if f.err != nil {
		return sent.String(), f.err
	}
	return f.answer, nil
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

type memConversations struct {
	mu      sync.Mutex
	states  map[string]model.SessionState
	history map[string][]model.ChatMessage
	trail   []string
	err     error
}

func newMemConversations() *memConversations {
	return &memConversations{
		states:  make(map[string]model.SessionState),
		history: make(map[string][]model.ChatMessage),
	}
}

var _ repository.ConversationRepository = (*memConversations)(nil)

func (m *memConversations) GetState(_ context.Context, userID string) (model.SessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[userID]; ok {
		return st, nil
	}
	return model.SessionState{State: model.StateIdle}, nil
}

func (m *memConversations) SetState(_ context.Context, userID string, state model.SessionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.states[userID] = state
	m.trail = append(m.trail, state.State)
	return nil
}

func (m *memConversations) GetHistory(_ context.Context, userID string) ([]model.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return append([]model.ChatMessage(nil), m.history[userID]...), nil
}

func (m *memConversations) AppendHistory(_ context.Context, userID string, messages ...model.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.history[userID] = append(m.history[userID], messages...)
	return nil
}

type memRedFlags struct {
	mu      sync.Mutex
	entries []model.RedFlagLog
}

func (m *memRedFlags) Create(_ context.Context, entry *model.RedFlagLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memRedFlags) ListByUser(_ context.Context, userID string, _ int) ([]model.RedFlagLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.RedFlagLog
	for _, e := range m.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

type published struct {
	key   string
	value interface{}
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, key string, v interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, published{key: key, value: v})
	return nil
}

func (p *fakePublisher) messages() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.sent...)
}

// failingStore fails every call.
type failingStore struct{ store.Store }

func (failingStore) Name() string { return "failing" }

func (failingStore) Search(context.Context, []float32, int) ([]model.QueryResult, error) {
	return nil, errors.New("connection refused")
}

func int64p(v int64) *int64 { return &v }
