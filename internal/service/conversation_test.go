package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Rrens/slack-gpt/internal/domain"
	"github.com/Rrens/slack-gpt/internal/llm"
	"github.com/Rrens/slack-gpt/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testGreeting = "hi, ask me anything"
	testWaiting  = "please wait"
)

type conversationFixture struct {
	store     *memory.SessionStore
	messenger *fakeMessenger
	provider  *stubProvider
	sink      *fakeSink
	svc       *ConversationService
}

func newConversationFixture(t *testing.T, store *memory.SessionStore, acquirer domain.SessionAcquirer, provider *stubProvider) *conversationFixture {
	t.Helper()
	if store == nil {
		store = memory.NewSessionStore()
	}
	if acquirer == nil {
		acquirer = store
	}
	m := &fakeMessenger{}
	recorder, sink := newTestRecorder()
	svc := NewConversationService(
		store,
		acquirer,
		fakeResolver{provider: provider},
		newTestStreamer(t, m),
		m,
		recorder,
		ConversationConfig{
			SystemPrompt: "be helpful",
			HistoryLimit: 6,
			SessionTTL:   300 * time.Second,
			Greeting:     testGreeting,
			Waiting:      testWaiting,
			Failure:      testFailure,
		},
	)
	return &conversationFixture{store: store, messenger: m, provider: provider, sink: sink, svc: svc}
}

func dm(text string) domain.InboundEvent {
	return domain.InboundEvent{Surface: domain.SurfaceDirect, ActorID: "U1", ConversationID: "D1", Text: text}
}

func channelMsg(text string) domain.InboundEvent {
	return domain.InboundEvent{Surface: domain.SurfaceChannel, ActorID: "U1", ConversationID: "C1", Text: text}
}

var (
	userKey    = domain.NewSessionKey(domain.SessionDirect, "U1")
	channelKey = domain.NewSessionKey(domain.SessionChannel, "C1")
)

func TestConversation_DirectMessageCreatesSession(t *testing.T) {
	provider := &stubProvider{chunks: fragments("hello ", "back"), requests: make(chan llm.Request, 1)}
	f := newConversationFixture(t, nil, nil, provider)

	require.NoError(t, f.svc.HandleMessage(context.Background(), dm("hello")))

	sess, err := f.store.Get(context.Background(), userKey)
	require.NoError(t, err)
	assert.False(t, sess.Pending)
	require.Len(t, sess.Messages, 3)
	assert.Equal(t, domain.NewTurn(testGreeting, domain.RoleAssistant), sess.Messages[0])
	assert.Equal(t, domain.NewTurn("hello", domain.RoleUser), sess.Messages[1])
	assert.Equal(t, domain.NewTurn("hello back", domain.RoleAssistant), sess.Messages[2])

	req := <-provider.requests
	require.Len(t, req.Messages, 3)
	assert.Equal(t, domain.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, "hello", req.Messages[2].Content)

	records := f.sink.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "U1", records[0].ActorID)
	assert.Greater(t, records[0].Tokens, 0)
}

func TestConversation_HistoryStaysBounded(t *testing.T) {
	provider := &stubProvider{chunks: fragments("ok")}
	f := newConversationFixture(t, nil, nil, provider)

	for i := 0; i < 10; i++ {
		require.NoError(t, f.svc.HandleMessage(context.Background(), dm("question")))
		sess, err := f.store.Get(context.Background(), userKey)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(sess.Messages), 6)
	}

	sess, err := f.store.Get(context.Background(), userKey)
	require.NoError(t, err)
	assert.Len(t, sess.Messages, 6)
	assert.Equal(t, domain.RoleUser, sess.Messages[0].Role)
	assert.Len(t, f.sink.Records(), 10)
}

func TestConversation_ChannelWithoutSessionIsIgnored(t *testing.T) {
	provider := &stubProvider{chunks: fragments("ok")}
	f := newConversationFixture(t, nil, nil, provider)

	require.NoError(t, f.svc.HandleMessage(context.Background(), channelMsg("anyone?")))

	assert.Equal(t, int32(0), provider.calls.Load())
	assert.Empty(t, f.messenger.Posts())
	assert.Empty(t, f.sink.Records())
	_, err := f.store.Get(context.Background(), channelKey)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestConversation_StartedChannelAnswers(t *testing.T) {
	provider := &stubProvider{chunks: fragments("sure")}
	f := newConversationFixture(t, nil, nil, provider)
	require.NoError(t, f.store.Set(context.Background(), channelKey, domain.NewSession(domain.NewTurn(testGreeting, domain.RoleAssistant)), time.Minute))

	require.NoError(t, f.svc.HandleMessage(context.Background(), channelMsg("help")))

	assert.Equal(t, int32(1), provider.calls.Load())
	sess, err := f.store.Get(context.Background(), channelKey)
	require.NoError(t, err)
	assert.Len(t, sess.Messages, 3)
}

func TestConversation_PendingSessionGetsWaitingNotice(t *testing.T) {
	provider := &stubProvider{chunks: fragments("ok")}
	f := newConversationFixture(t, nil, nil, provider)
	busy := domain.NewSession(domain.NewTurn(testGreeting, domain.RoleAssistant))
	busy.Pending = true
	require.NoError(t, f.store.Set(context.Background(), userKey, busy, time.Minute))

	require.NoError(t, f.svc.HandleMessage(context.Background(), dm("hello?")))

	assert.Equal(t, int32(0), provider.calls.Load())
	assert.Equal(t, []string{testWaiting}, f.messenger.Posts())
	sess, err := f.store.Get(context.Background(), userKey)
	require.NoError(t, err)
	assert.True(t, sess.Pending)
	assert.Len(t, sess.Messages, 1)
	assert.Empty(t, f.sink.Records())
}

func TestConversation_SecondEventWhileStreamingIsDropped(t *testing.T) {
	provider := &stubProvider{
		chunks:  fragments("slow answer"),
		started: make(chan struct{}, 1),
		gate:    make(chan struct{}),
	}
	f := newConversationFixture(t, nil, nil, provider)

	done := make(chan error, 1)
	go func() { done <- f.svc.HandleMessage(context.Background(), dm("first")) }()
	<-provider.started

	require.NoError(t, f.svc.HandleMessage(context.Background(), dm("second")))
	assert.True(t, f.messenger.Posted(testWaiting))

	close(provider.gate)
	require.NoError(t, <-done)

	assert.Equal(t, int32(1), provider.calls.Load())
	sess, err := f.store.Get(context.Background(), userKey)
	require.NoError(t, err)
	assert.False(t, sess.Pending)
	assert.Equal(t, "first", sess.Messages[1].Content)
}

func runSimultaneous(t *testing.T, f *conversationFixture) {
	t.Helper()
	var wg sync.WaitGroup
	for _, text := range []string{"one", "two"} {
		wg.Add(1)
		go func(text string) {
			defer wg.Done()
			assert.NoError(t, f.svc.HandleMessage(context.Background(), dm(text)))
		}(text)
	}

	// Both stream calls or one waiting notice, whichever the acquirer allows.
	require.Eventually(t, func() bool {
		return f.provider.calls.Load() == 2 || f.messenger.Posted(testWaiting)
	}, 2*time.Second, 5*time.Millisecond)
	close(f.provider.gate)
	wg.Wait()
}

func TestConversation_UnguardedAcquireRace(t *testing.T) {
	store := memory.NewSessionStore()
	require.NoError(t, store.Set(context.Background(), userKey, domain.NewSession(), time.Minute))

	provider := &stubProvider{chunks: fragments("ok"), started: make(chan struct{}, 2), gate: make(chan struct{})}
	f := newConversationFixture(t, store, NewUnguardedAcquirer(newBarrierStore(store, 2)), provider)

	runSimultaneous(t, f)

	assert.Equal(t, int32(2), provider.calls.Load())
	assert.False(t, f.messenger.Posted(testWaiting))
}

func TestConversation_AtomicAcquireClosesRace(t *testing.T) {
	store := memory.NewSessionStore()
	require.NoError(t, store.Set(context.Background(), userKey, domain.NewSession(), time.Minute))

	provider := &stubProvider{chunks: fragments("ok"), started: make(chan struct{}, 2), gate: make(chan struct{})}
	f := newConversationFixture(t, store, store, provider)

	runSimultaneous(t, f)

	assert.Equal(t, int32(1), provider.calls.Load())
	assert.True(t, f.messenger.Posted(testWaiting))
}

func TestConversation_SimultaneousFirstMessagesCreateOneSession(t *testing.T) {
	store := memory.NewSessionStore()

	provider := &stubProvider{chunks: fragments("ok"), started: make(chan struct{}, 2), gate: make(chan struct{})}
	f := newConversationFixture(t, store, newBarrierAcquirer(store, 2), provider)

	runSimultaneous(t, f)

	assert.Equal(t, int32(1), provider.calls.Load())
	assert.True(t, f.messenger.Posted(testWaiting))

	sess, err := store.Get(context.Background(), userKey)
	require.NoError(t, err)
	assert.False(t, sess.Pending)
	require.Len(t, sess.Messages, 3)
	assert.Equal(t, testGreeting, sess.Messages[0].Content)
}

func TestConversation_FailureBeforeFragmentsClearsPending(t *testing.T) {
	provider := &stubProvider{openErr: errors.New("502 bad gateway")}
	f := newConversationFixture(t, nil, nil, provider)

	err := f.svc.HandleMessage(context.Background(), dm("hello"))
	require.Error(t, err)
	assert.True(t, domain.IsProviderError(err))

	sess, err := f.store.Get(context.Background(), userKey)
	require.NoError(t, err)
	assert.False(t, sess.Pending)
	assert.Equal(t, []domain.Turn{domain.NewTurn(testGreeting, domain.RoleAssistant)}, sess.Messages)

	records := f.sink.Records()
	require.Len(t, records, 1)
	assert.Equal(t, 0, records[0].Tokens)

	// The placeholder became the notice, so no second apology is posted.
	assert.Equal(t, []string{testFailure}, f.messenger.Updates())
	assert.False(t, f.messenger.Posted(testFailure))
}

func TestConversation_FailureMidStreamRecordsPartialTokens(t *testing.T) {
	provider := &stubProvider{
		chunks: []llm.Chunk{{Content: "partial "}, {Content: "answer"}},
		midErr: errors.New("stream truncated"),
	}
	f := newConversationFixture(t, nil, nil, provider)

	require.Error(t, f.svc.HandleMessage(context.Background(), dm("hello")))

	sess, err := f.store.Get(context.Background(), userKey)
	require.NoError(t, err)
	assert.False(t, sess.Pending)
	assert.Len(t, sess.Messages, 1)

	records := f.sink.Records()
	require.Len(t, records, 1)
	assert.Greater(t, records[0].Tokens, 0)
}

func TestConversation_MissingProviderPostsApology(t *testing.T) {
	f := newConversationFixture(t, nil, nil, nil)
	f.svc.providers = fakeResolver{}

	require.Error(t, f.svc.HandleMessage(context.Background(), dm("hello")))

	assert.True(t, f.messenger.Posted(testFailure))
	sess, err := f.store.Get(context.Background(), userKey)
	require.NoError(t, err)
	assert.False(t, sess.Pending)
	require.Len(t, f.sink.Records(), 1)
	assert.Equal(t, 0, f.sink.Records()[0].Tokens)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestConversation_ExpiredSessions(t *testing.T) {
	clock := &testClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	store := memory.NewSessionStoreWithClock(clock.Now)
	provider := &stubProvider{chunks: fragments("ok")}
	f := newConversationFixture(t, store, store, provider)
	ctx := context.Background()

	require.NoError(t, f.svc.HandleMessage(ctx, dm("first")))
	require.NoError(t, store.Set(ctx, channelKey, domain.NewSession(domain.NewTurn(testGreeting, domain.RoleAssistant)), 300*time.Second))

	clock.Advance(301 * time.Second)

	t.Run("direct message recreates", func(t *testing.T) {
		require.NoError(t, f.svc.HandleMessage(ctx, dm("again")))

		sess, err := store.Get(ctx, userKey)
		require.NoError(t, err)
		require.Len(t, sess.Messages, 3)
		assert.Equal(t, testGreeting, sess.Messages[0].Content)
		assert.Equal(t, "again", sess.Messages[1].Content)
	})

	t.Run("channel is ignored", func(t *testing.T) {
		before := provider.calls.Load()
		require.NoError(t, f.svc.HandleMessage(ctx, channelMsg("still there?")))

		assert.Equal(t, before, provider.calls.Load())
		_, err := store.Get(ctx, channelKey)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})
}

func TestConversation_UnsupportedSurface(t *testing.T) {
	provider := &stubProvider{chunks: fragments("ok")}
	f := newConversationFixture(t, nil, nil, provider)

	err := f.svc.HandleMessage(context.Background(), domain.InboundEvent{Surface: "app_home", ActorID: "U1", Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, int32(0), provider.calls.Load())
}
