package service

import (
	"context"
	"errors"
	"testing"

	"github.com/Rrens/slack-gpt/internal/domain"
	"github.com/Rrens/slack-gpt/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestImageService(provider llm.Provider, gen llm.ImageGenerator, m Messenger, poster ImagePoster) (*ImageService, *fakeSink) {
	recorder, sink := newTestRecorder()
	svc := NewImageService(fakeResolver{provider: provider}, gen, m, poster, recorder, ImageConfig{
		Drawing:         "drawing...",
		Done:            "done!",
		TranslatePrompt: "translate: %s",
	})
	return svc, sink
}

func TestImageService_DrawWithTranslation(t *testing.T) {
	provider := new(MockProvider)
	gen := new(MockImageGenerator)
	m := &fakeMessenger{}
	poster := &fakePoster{}
	svc, sink := newTestImageService(provider, gen, m, poster)

	provider.On("Complete", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return len(req.Messages) == 1 && req.Messages[0].Content == "translate: 고양이"
	})).Return(&llm.Response{Content: " a cat \n", TokensUsed: 12}, nil)
	gen.On("GenerateImage", mock.Anything, "a cat").Return("https://img.example/cat.png", nil)

	err := svc.Draw(context.Background(), "D1", domain.ImageRequest{ActorID: "U1", Description: "고양이", Translate: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"drawing..."}, m.Posts())
	assert.Equal(t, []string{"https://img.example/cat.png"}, poster.images)
	assert.Equal(t, []string{"a cat"}, poster.captions)
	records := sink.Records()
	require.Len(t, records, 1)
	assert.Equal(t, 21, records[0].Tokens)

	provider.AssertExpectations(t)
	gen.AssertExpectations(t)
}

func TestImageService_DrawWithoutTranslation(t *testing.T) {
	provider := new(MockProvider)
	gen := new(MockImageGenerator)
	svc, sink := newTestImageService(provider, gen, &fakeMessenger{}, &fakePoster{})

	gen.On("GenerateImage", mock.Anything, "a dog").Return("https://img.example/dog.png", nil)

	require.NoError(t, svc.Draw(context.Background(), "D1", domain.ImageRequest{ActorID: "U1", Description: "a dog"}))

	provider.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
	require.Len(t, sink.Records(), 1)
	assert.Equal(t, DefaultImageTokens, sink.Records()[0].Tokens)
}

func TestImageService_GenerationFailurePostsError(t *testing.T) {
	gen := new(MockImageGenerator)
	m := &fakeMessenger{}
	svc, sink := newTestImageService(new(MockProvider), gen, m, &fakePoster{})

	gen.On("GenerateImage", mock.Anything, "a dog").Return("", errors.New("content policy violation"))

	err := svc.Draw(context.Background(), "D1", domain.ImageRequest{ActorID: "U1", Description: "a dog"})
	require.Error(t, err)

	posts := m.Posts()
	require.Len(t, posts, 2)
	assert.Contains(t, posts[1], "content policy violation")
	require.Len(t, sink.Records(), 1)
	assert.Equal(t, 0, sink.Records()[0].Tokens)
}

func TestImageService_RejectsEmptyDescription(t *testing.T) {
	m := &fakeMessenger{}
	svc, sink := newTestImageService(new(MockProvider), new(MockImageGenerator), m, &fakePoster{})

	err := svc.Draw(context.Background(), "D1", domain.ImageRequest{ActorID: "U1"})
	require.Error(t, err)
	assert.Empty(t, m.Posts())
	assert.Empty(t, sink.Records())
}
