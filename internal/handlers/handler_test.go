package handlers

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"asset-synth-studio/internal/asset"
	"asset-synth-studio/internal/descriptor"
	"asset-synth-studio/internal/mediagroup"
	"asset-synth-studio/internal/studio"
)

type sentPhotos struct {
	images  []string
	caption string
}

type fakeMessenger struct {
	mu        sync.Mutex
	texts     []string
	keyboards []tgbotapi.InlineKeyboardMarkup
	photos    []sentPhotos
	answers   []string
	downloads []string
}

func (f *fakeMessenger) SendTyping(int64) {}

func (f *fakeMessenger) SendText(_ int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeMessenger) SendTextWithKeyboard(_ int64, text string, kb tgbotapi.InlineKeyboardMarkup) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	f.keyboards = append(f.keyboards, kb)
	return nil
}

func (f *fakeMessenger) AnswerCallback(_ string, text string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, text)
	return nil
}

func (f *fakeMessenger) SendPhotos(_ int64, images []string, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.photos = append(f.photos, sentPhotos{images: images, caption: caption})
	return nil
}

func (f *fakeMessenger) DownloadAsset(_ context.Context, fileID string) (asset.Asset, error) {
	f.mu.Lock()
	f.downloads = append(f.downloads, fileID)
	f.mu.Unlock()

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{G: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return asset.Asset{}, err
	}
	return asset.Asset{MimeType: "image/png", Data: buf.Bytes()}, nil
}

func (f *fakeMessenger) lastText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

type fakeService struct {
	generateErr error
}

func (s *fakeService) AnalyzeAsset(context.Context, asset.Asset) (string, error) {
	return "green dot", nil
}

func (s *fakeService) ExtractDescriptors(context.Context, asset.Asset) (descriptor.Values, error) {
	return descriptor.Values{"complexity": 5}, nil
}

func (s *fakeService) EnhancePrompt(_ context.Context, prompt string) (string, error) {
	return "an enhanced " + prompt, nil
}

func (s *fakeService) CreateImagePrompt(_ context.Context, description, prompt string, _ descriptor.Values) (string, error) {
	return strings.TrimSpace(prompt + " " + description), nil
}

func (s *fakeService) GenerateSynthesis(context.Context, string, string) ([]string, error) {
	if s.generateErr != nil {
		return nil, s.generateErr
	}
	return []string{"data:image/jpeg;base64,AAAA", "data:image/jpeg;base64,BBBB"}, nil
}

func newTestHandler(t *testing.T, svc *fakeService) (*Handler, *fakeMessenger, *studio.Studio) {
	t.Helper()
	st, err := studio.New(studio.Options{Service: svc, RequestTimeout: 5 * time.Second})
	require.NoError(t, err)
	tg := &fakeMessenger{}
	return New(Options{Telegram: tg, Studio: st}), tg, st
}

func command(chatID int64, text string) tgbotapi.Update {
	name := strings.SplitN(text, " ", 2)[0]
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: chatID},
		From:     &tgbotapi.User{ID: 7},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	}}
}

func text(chatID int64, body string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat: &tgbotapi.Chat{ID: chatID},
		From: &tgbotapi.User{ID: 7},
		Text: body,
	}}
}

func TestPlainTextSetsPrompt(t *testing.T) {
	h, tg, st := newTestHandler(t, &fakeService{})
	ctx := context.Background()

	require.NoError(t, h.HandleUpdate(ctx, text(10, "misty fjord")))
	state, err := st.Get(ctx, sessionID(10))
	require.NoError(t, err)
	assert.Equal(t, "misty fjord", state.Prompt)
	assert.Contains(t, tg.lastText(), "Prompt set")
}

func TestEnhanceAndSynthesize(t *testing.T) {
	h, tg, _ := newTestHandler(t, &fakeService{})
	ctx := context.Background()

	require.NoError(t, h.HandleUpdate(ctx, command(10, "/enhance")))
	assert.Equal(t, "Set a prompt first.", tg.lastText())

	require.NoError(t, h.HandleUpdate(ctx, command(10, "/prompt fjord")))
	require.NoError(t, h.HandleUpdate(ctx, command(10, "/enhance")))
	assert.Equal(t, "Enhanced prompt:\nan enhanced fjord", tg.lastText())

	require.NoError(t, h.HandleUpdate(ctx, command(10, "/synthesize")))
	require.Len(t, tg.photos, 1)
	assert.Len(t, tg.photos[0].images, 2)
	assert.Equal(t, "an enhanced fjord", tg.photos[0].caption)
}

func TestSynthesizeFailureReportsError(t *testing.T) {
	h, tg, _ := newTestHandler(t, &fakeService{generateErr: errors.New("quota exceeded")})
	ctx := context.Background()

	require.NoError(t, h.HandleUpdate(ctx, command(10, "/synthesize")))
	assert.Equal(t, "⚠️ quota exceeded", tg.lastText())
	assert.Empty(t, tg.photos)
}

func TestSetDescriptorAndRatio(t *testing.T) {
	h, tg, st := newTestHandler(t, &fakeService{})
	ctx := context.Background()

	require.NoError(t, h.HandleUpdate(ctx, command(10, "/set warmth 150")))
	assert.Equal(t, "warmth = 100", tg.lastText())

	require.NoError(t, h.HandleUpdate(ctx, command(10, "/set nope 1")))
	assert.Equal(t, "Unknown descriptor. See /descriptors.", tg.lastText())

	require.NoError(t, h.HandleUpdate(ctx, command(10, "/set warmth lots")))
	assert.Equal(t, "Value must be a number.", tg.lastText())

	require.NoError(t, h.HandleUpdate(ctx, command(10, "/ratio 16:09")))
	assert.Equal(t, "Aspect ratio: 16:9", tg.lastText())

	require.NoError(t, h.HandleUpdate(ctx, command(10, "/ratio")))
	require.Len(t, tg.keyboards, 1)
	assert.Len(t, tg.keyboards[0].InlineKeyboard[0], 5)

	state, err := st.Get(ctx, sessionID(10))
	require.NoError(t, err)
	assert.Equal(t, 100.0, state.Descriptors["warmth"])
}

func TestTemplateCallback(t *testing.T) {
	h, tg, st := newTestHandler(t, &fakeService{})
	ctx := context.Background()

	require.NoError(t, h.HandleUpdate(ctx, command(10, "/templates")))
	require.Len(t, tg.keyboards, 1)

	update := tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb1",
		From:    &tgbotapi.User{ID: 7},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 10}},
		Data:    cb("tpl", "dreamscape"),
	}}
	require.NoError(t, h.HandleUpdate(ctx, update))

	tpl, ok := st.Catalog().Template("dreamscape")
	require.True(t, ok)
	state, err := st.Get(ctx, sessionID(10))
	require.NoError(t, err)
	assert.Equal(t, tpl.Prompt, state.Prompt)
	assert.Contains(t, tg.lastText(), "Template applied.")

	update.CallbackQuery.Data = cb("ratio", "3:4")
	require.NoError(t, h.HandleUpdate(ctx, update))
	assert.Equal(t, "Aspect ratio: 3:4", tg.lastText())
}

func TestPhotoUploadsAsset(t *testing.T) {
	h, tg, st := newTestHandler(t, &fakeService{})
	ctx := context.Background()

	update := tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:    &tgbotapi.Chat{ID: 10},
		Caption: "in watercolor",
		Photo:   []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "large"}},
	}}
	require.NoError(t, h.HandleUpdate(ctx, update))

	assert.Equal(t, []string{"large"}, tg.downloads)
	state, err := st.Get(ctx, sessionID(10))
	require.NoError(t, err)
	assert.True(t, state.HasAsset())
	assert.Equal(t, "in watercolor", state.Prompt)
	assert.Equal(t, 5.0, state.Descriptors["complexity"])
	assert.Contains(t, tg.lastText(), "Descriptors extracted")

	require.NoError(t, h.HandleUpdate(ctx, command(10, "/clearasset")))
	state, err = st.Get(ctx, sessionID(10))
	require.NoError(t, err)
	assert.False(t, state.HasAsset())
}

func TestAlbumKeepsLastPhoto(t *testing.T) {
	h, tg, st := newTestHandler(t, &fakeService{})
	ctx := context.Background()

	done := make(chan struct{})
	h.SetMediaGroupAggregator(mediagroup.New(mediagroup.Options{
		Debounce: 10 * time.Millisecond,
		OnFlush: func(g mediagroup.Group) {
			h.HandleMediaGroup(ctx, g)
			close(done)
		},
	}))

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, h.HandleUpdate(ctx, tgbotapi.Update{Message: &tgbotapi.Message{
			Chat:         &tgbotapi.Chat{ID: 11},
			MediaGroupID: "album-1",
			Photo:        []tgbotapi.PhotoSize{{FileID: id}},
		}}))
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("album was not flushed")
	}

	assert.Equal(t, []string{"c"}, tg.downloads)
	state, err := st.Get(ctx, sessionID(11))
	require.NoError(t, err)
	assert.True(t, state.HasAsset())
}

func TestStateAndReset(t *testing.T) {
	h, tg, _ := newTestHandler(t, &fakeService{})
	ctx := context.Background()

	require.NoError(t, h.HandleUpdate(ctx, command(10, "/prompt tidal")))
	require.NoError(t, h.HandleUpdate(ctx, command(10, "/state")))
	assert.Contains(t, tg.lastText(), "Prompt: tidal")
	assert.Contains(t, tg.lastText(), "Aspect ratio: 1:1")

	require.NoError(t, h.HandleUpdate(ctx, command(10, "/reset")))
	require.NoError(t, h.HandleUpdate(ctx, command(10, "/state")))
	assert.Contains(t, tg.lastText(), "Prompt: (empty)")

	require.NoError(t, h.HandleUpdate(ctx, command(10, "/bogus")))
	assert.Equal(t, "Unknown command. Use /help.", tg.lastText())
}
