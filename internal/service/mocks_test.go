package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Rrens/slack-gpt/internal/domain"
	"github.com/Rrens/slack-gpt/internal/llm"
	"github.com/Rrens/slack-gpt/internal/usage"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type wordEncoder struct{}

func (wordEncoder) Encode(text string) []int {
	return make([]int, len(strings.Fields(text)))
}

func newTestTokenizer(t *testing.T) llm.Tokenizer {
	t.Helper()
	counter, err := llm.NewTokenCounter("gpt-3.5-turbo-0301", wordEncoder{})
	require.NoError(t, err)
	return counter
}

// fakeMessenger records every post and edit
type fakeMessenger struct {
	mu      sync.Mutex
	posts   []string
	updates []string
	seq     int

	postErr   error
	updateErr error
}

func (m *fakeMessenger) PostMessage(_ context.Context, channelID, text string) (MessageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.postErr != nil {
		return MessageRef{}, m.postErr
	}
	m.seq++
	m.posts = append(m.posts, text)
	return MessageRef{ChannelID: channelID, Timestamp: fmt.Sprintf("1700000000.%06d", m.seq)}, nil
}

func (m *fakeMessenger) UpdateMessage(_ context.Context, _ MessageRef, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updates = append(m.updates, text)
	return nil
}

func (m *fakeMessenger) Posts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.posts...)
}

func (m *fakeMessenger) Updates() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.updates...)
}

func (m *fakeMessenger) Posted(text string) bool {
	for _, p := range m.Posts() {
		if p == text {
			return true
		}
	}
	return false
}

// sliceStream replays fixed chunks, then reports err
type sliceStream struct {
	chunks []llm.Chunk
	idx    int
	err    error
	closed bool
}

func (s *sliceStream) Next() bool {
	if s.idx >= len(s.chunks) {
		return false
	}
	s.idx++
	return true
}

func (s *sliceStream) Current() llm.Chunk { return s.chunks[s.idx-1] }

func (s *sliceStream) Err() error {
	if s.idx >= len(s.chunks) {
		return s.err
	}
	return nil
}

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}

func fragments(words ...string) []llm.Chunk {
	chunks := make([]llm.Chunk, 0, len(words)+1)
	for _, w := range words {
		chunks = append(chunks, llm.Chunk{Content: w})
	}
	return append(chunks, llm.Chunk{FinishReason: "stop"})
}

// stubProvider streams a fixed answer. When gate is set, Stream blocks until it is closed.
type stubProvider struct {
	chunks    []llm.Chunk
	streamErr error
	midErr    error
	openErr   error

	started chan struct{}
	gate    chan struct{}

	calls    atomic.Int32
	requests chan llm.Request
}

func (p *stubProvider) Name() string              { return "stub" }
func (p *stubProvider) AvailableModels() []string { return []string{"stub-model"} }
func (p *stubProvider) DefaultModel() string      { return "stub-model" }
func (p *stubProvider) IsConfigured() bool        { return true }

func (p *stubProvider) Complete(context.Context, llm.Request) (*llm.Response, error) {
	return nil, errors.New("not implemented")
}

func (p *stubProvider) Stream(ctx context.Context, req llm.Request) (llm.Stream, error) {
	p.calls.Add(1)
	if p.requests != nil {
		p.requests <- req
	}
	if p.started != nil {
		p.started <- struct{}{}
	}
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.openErr != nil {
		return nil, p.openErr
	}
	return &sliceStream{chunks: p.chunks, err: p.midErr}, nil
}

// MockProvider is a testify mock of llm.Provider for non-streaming calls
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Name() string              { return "mock" }
func (m *MockProvider) AvailableModels() []string { return nil }
func (m *MockProvider) DefaultModel() string      { return "mock-model" }
func (m *MockProvider) IsConfigured() bool        { return true }

func (m *MockProvider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*llm.Response), args.Error(1)
}

func (m *MockProvider) Stream(ctx context.Context, req llm.Request) (llm.Stream, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(llm.Stream), args.Error(1)
}

// MockImageGenerator is a testify mock of llm.ImageGenerator
type MockImageGenerator struct {
	mock.Mock
}

func (m *MockImageGenerator) GenerateImage(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

// MockBillingSource is a testify mock of llm.BillingSource
type MockBillingSource struct {
	mock.Mock
}

func (m *MockBillingSource) MonthToDateTokens(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type fakeResolver struct {
	provider llm.Provider
}

func (r fakeResolver) GetProvider(name string) (llm.Provider, error) {
	if r.provider == nil {
		return nil, fmt.Errorf("provider not found: %s", name)
	}
	return r.provider, nil
}

// fakeSink collects usage records
type fakeSink struct {
	mu      sync.Mutex
	records []domain.UsageRecord
}

func (s *fakeSink) Append(_ context.Context, record domain.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *fakeSink) ListBetween(_ context.Context, from, to time.Time) ([]domain.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.UsageRecord
	for _, r := range s.records {
		if !r.RecordedAt.Before(from) && !r.RecordedAt.After(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeSink) Records() []domain.UsageRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.UsageRecord(nil), s.records...)
}

func newTestRecorder() (*usage.Recorder, *fakeSink) {
	sink := &fakeSink{}
	return usage.NewRecorder(sink), sink
}

type fakePoster struct {
	mu       sync.Mutex
	images   []string
	captions []string
	err      error
}

func (p *fakePoster) PostImage(_ context.Context, _, _, caption, imageURL string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.captions = append(p.captions, caption)
	p.images = append(p.images, imageURL)
	return nil
}

// barrierStore takes the first n reads and holds their results until all of them
// have arrived, simulating events that read the session at the same moment.
type barrierStore struct {
	domain.SessionStore

	mu      sync.Mutex
	waiting int
	n       int
	release chan struct{}
}

func newBarrierStore(store domain.SessionStore, n int) *barrierStore {
	return &barrierStore{SessionStore: store, n: n, release: make(chan struct{})}
}

func (s *barrierStore) Get(ctx context.Context, key domain.SessionKey) (*domain.Session, error) {
	sess, err := s.SessionStore.Get(ctx, key)

	s.mu.Lock()
	blocked := s.waiting < s.n
	if blocked {
		s.waiting++
		if s.waiting == s.n {
			close(s.release)
		}
	}
	s.mu.Unlock()

	if blocked {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return sess, err
}

// barrierAcquirer holds the first n Acquire results until all n callers have
// arrived, so every caller observes the session as it was before any of them acted.
type barrierAcquirer struct {
	domain.SessionAcquirer

	mu      sync.Mutex
	waiting int
	n       int
	release chan struct{}
}

func newBarrierAcquirer(acquirer domain.SessionAcquirer, n int) *barrierAcquirer {
	return &barrierAcquirer{SessionAcquirer: acquirer, n: n, release: make(chan struct{})}
}

func (a *barrierAcquirer) Acquire(ctx context.Context, key domain.SessionKey, ttl time.Duration) (*domain.Session, error) {
	sess, err := a.SessionAcquirer.Acquire(ctx, key, ttl)

	a.mu.Lock()
	blocked := a.waiting < a.n
	if blocked {
		a.waiting++
		if a.waiting == a.n {
			close(a.release)
		}
	}
	a.mu.Unlock()

	if blocked {
		select {
		case <-a.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return sess, err
}
