package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"asset-synth-studio/internal/asset"
	"asset-synth-studio/internal/mediagroup"
	"asset-synth-studio/internal/studio"
)

// Messenger is the part of the Telegram client the handlers use.
type Messenger interface {
	SendTyping(chatID int64)
	SendText(chatID int64, text string) error
	SendTextWithKeyboard(chatID int64, text string, kb tgbotapi.InlineKeyboardMarkup) error
	AnswerCallback(callbackID, text string, alert bool) error
	SendPhotos(chatID int64, dataURLs []string, caption string) error
	DownloadAsset(ctx context.Context, fileID string) (asset.Asset, error)
}

type Options struct {
	Telegram Messenger
	Studio   *studio.Studio
	Logger   *slog.Logger
}

type Handler struct {
	tg         Messenger
	studio     *studio.Studio
	logger     *slog.Logger
	aggregator *mediagroup.Aggregator
}

func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		tg:     opts.Telegram,
		studio: opts.Studio,
		logger: logger,
	}
}

func (h *Handler) SetMediaGroupAggregator(ag *mediagroup.Aggregator) {
	h.aggregator = ag
}

func (h *Handler) HandleUpdate(ctx context.Context, update tgbotapi.Update) error {
	if update.CallbackQuery != nil {
		return h.handleCallback(ctx, update.CallbackQuery)
	}
	if update.Message == nil {
		return nil
	}

	msg := update.Message
	chatID := msg.Chat.ID

	if msg.IsCommand() {
		return h.handleCommand(ctx, chatID, msg)
	}

	if len(msg.Photo) > 0 {
		return h.handlePhoto(ctx, chatID, msg)
	}

	if text := strings.TrimSpace(msg.Text); text != "" {
		return h.setPrompt(ctx, chatID, text)
	}

	return nil
}

// HandleMediaGroup keeps only the last photo of an album as the session's
// reference asset.
func (h *Handler) HandleMediaGroup(ctx context.Context, group mediagroup.Group) {
	if err := h.uploadPhoto(ctx, group.ChatID, group.Last(), group.Caption); err != nil {
		h.logger.Error("media group processing failed", "chat_id", group.ChatID, "err", err)
	}
}

func (h *Handler) handleCommand(ctx context.Context, chatID int64, msg *tgbotapi.Message) error {
	args := strings.TrimSpace(msg.CommandArguments())
	id := sessionID(chatID)

	switch msg.Command() {
	case "start", "help":
		if _, err := h.studio.Open(ctx, id); err != nil {
			return err
		}
		return h.tg.SendText(chatID, helpText)

	case "prompt":
		if args == "" {
			st, err := h.studio.Open(ctx, id)
			if err != nil {
				return err
			}
			if st.Prompt == "" {
				return h.tg.SendText(chatID, "No prompt yet. Send any text or use /prompt <text>.")
			}
			return h.tg.SendText(chatID, "Current prompt:\n"+st.Prompt)
		}
		return h.setPrompt(ctx, chatID, args)

	case "enhance":
		return h.enhance(ctx, chatID)

	case "ratio":
		if args == "" {
			st, err := h.studio.Open(ctx, id)
			if err != nil {
				return err
			}
			return h.tg.SendTextWithKeyboard(chatID, "Choose an aspect ratio:", ratioKeyboard(st.AspectRatio))
		}
		return h.setAspectRatio(ctx, chatID, args)

	case "set":
		return h.setDescriptor(ctx, chatID, args)

	case "descriptors":
		st, err := h.studio.Open(ctx, id)
		if err != nil {
			return err
		}
		return h.tg.SendText(chatID, formatDescriptors(h.studio.Catalog(), st.Descriptors))

	case "templates":
		if _, err := h.studio.Open(ctx, id); err != nil {
			return err
		}
		return h.tg.SendTextWithKeyboard(chatID, "Pick an inspiration template:", templateKeyboard(h.studio.Catalog().Templates()))

	case "template":
		if args == "" {
			return h.tg.SendText(chatID, "Usage: /template <id>. See /templates.")
		}
		return h.selectTemplate(ctx, chatID, args)

	case "clearasset":
		if _, err := h.studio.Open(ctx, id); err != nil {
			return err
		}
		if _, err := h.studio.UploadAsset(ctx, id, nil); err != nil {
			return h.replyError(chatID, err)
		}
		return h.tg.SendText(chatID, "Reference asset cleared. Descriptors are back to defaults.")

	case "synthesize":
		return h.synthesize(ctx, chatID)

	case "state":
		st, err := h.studio.Open(ctx, id)
		if err != nil {
			return err
		}
		return h.tg.SendText(chatID, formatState(h.studio.Catalog(), st))

	case "reset":
		if _, err := h.studio.Open(ctx, id); err != nil {
			return err
		}
		if _, err := h.studio.Reset(ctx, id); err != nil {
			return h.replyError(chatID, err)
		}
		return h.tg.SendText(chatID, "Studio reset.")

	default:
		return h.tg.SendText(chatID, "Unknown command. Use /help.")
	}
}

func (h *Handler) handlePhoto(ctx context.Context, chatID int64, msg *tgbotapi.Message) error {
	photo := msg.Photo[len(msg.Photo)-1]

	if msg.MediaGroupID != "" && h.aggregator != nil {
		var userID int64
		if msg.From != nil {
			userID = msg.From.ID
		}
		h.aggregator.Add(mediagroup.Item{
			ChatID:       chatID,
			UserID:       userID,
			MediaGroupID: msg.MediaGroupID,
			Caption:      msg.Caption,
			FileID:       photo.FileID,
		})
		return nil
	}

	return h.uploadPhoto(ctx, chatID, photo.FileID, msg.Caption)
}

func (h *Handler) uploadPhoto(ctx context.Context, chatID int64, fileID, caption string) error {
	if fileID == "" {
		return nil
	}
	id := sessionID(chatID)
	if _, err := h.studio.Open(ctx, id); err != nil {
		return err
	}

	if caption = strings.TrimSpace(caption); caption != "" {
		if _, err := h.studio.SetPrompt(ctx, id, caption); err != nil {
			return h.replyError(chatID, err)
		}
	}

	h.tg.SendTyping(chatID)
	a, err := h.tg.DownloadAsset(ctx, fileID)
	if err != nil {
		h.logger.Error("photo download failed", "chat_id", chatID, "err", err)
		return h.tg.SendText(chatID, "Could not download the photo.")
	}

	_ = h.tg.SendText(chatID, "Analyzing the reference asset...")
	st, err := h.studio.UploadAsset(ctx, id, &a)
	if err != nil {
		return h.replyError(chatID, err)
	}
	if st.Error != "" {
		return h.tg.SendText(chatID, "⚠️ "+st.Error)
	}
	return h.tg.SendText(chatID, "Reference asset set. Descriptors extracted:\n\n"+formatDescriptors(h.studio.Catalog(), st.Descriptors))
}

func (h *Handler) setPrompt(ctx context.Context, chatID int64, text string) error {
	id := sessionID(chatID)
	if _, err := h.studio.Open(ctx, id); err != nil {
		return err
	}
	if _, err := h.studio.SetPrompt(ctx, id, text); err != nil {
		return h.replyError(chatID, err)
	}
	return h.tg.SendText(chatID, "Prompt set. /enhance to refine it or /synthesize to generate.")
}

func (h *Handler) enhance(ctx context.Context, chatID int64) error {
	id := sessionID(chatID)
	st, err := h.studio.Open(ctx, id)
	if err != nil {
		return err
	}
	if st.Prompt == "" {
		return h.tg.SendText(chatID, "Set a prompt first.")
	}

	h.tg.SendTyping(chatID)
	st, err = h.studio.EnhancePrompt(ctx, id)
	if err != nil {
		return h.replyError(chatID, err)
	}
	if st.Error != "" {
		return h.tg.SendText(chatID, "⚠️ "+st.Error)
	}
	return h.tg.SendText(chatID, "Enhanced prompt:\n"+st.Prompt)
}

func (h *Handler) setAspectRatio(ctx context.Context, chatID int64, ratio string) error {
	id := sessionID(chatID)
	if _, err := h.studio.Open(ctx, id); err != nil {
		return err
	}
	st, err := h.studio.SetAspectRatio(ctx, id, ratio)
	if err != nil {
		return h.replyError(chatID, err)
	}
	return h.tg.SendText(chatID, "Aspect ratio: "+st.AspectRatio)
}

func (h *Handler) setDescriptor(ctx context.Context, chatID int64, args string) error {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return h.tg.SendText(chatID, "Usage: /set <descriptor> <value>. See /descriptors.")
	}
	value, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return h.tg.SendText(chatID, "Value must be a number.")
	}

	id := sessionID(chatID)
	if _, err := h.studio.Open(ctx, id); err != nil {
		return err
	}
	st, err := h.studio.ChangeDescriptor(ctx, id, fields[0], value)
	if err != nil {
		return h.replyError(chatID, err)
	}
	return h.tg.SendText(chatID, fmt.Sprintf("%s = %g", fields[0], st.Descriptors[fields[0]]))
}

func (h *Handler) selectTemplate(ctx context.Context, chatID int64, templateID string) error {
	id := sessionID(chatID)
	if _, err := h.studio.Open(ctx, id); err != nil {
		return err
	}
	st, err := h.studio.SelectTemplate(ctx, id, templateID)
	if err != nil {
		return h.replyError(chatID, err)
	}
	return h.tg.SendText(chatID, "Template applied.\n\n"+formatState(h.studio.Catalog(), st))
}

func (h *Handler) synthesize(ctx context.Context, chatID int64) error {
	id := sessionID(chatID)
	if _, err := h.studio.Open(ctx, id); err != nil {
		return err
	}

	h.tg.SendTyping(chatID)
	_ = h.tg.SendText(chatID, "Synthesizing, this can take a minute...")

	st, err := h.studio.Synthesize(ctx, id)
	if err != nil {
		return h.replyError(chatID, err)
	}
	if st.Error != "" {
		return h.tg.SendText(chatID, "⚠️ "+st.Error)
	}
	if len(st.GeneratedImages) == 0 {
		return h.tg.SendText(chatID, "The model returned no images. Try adjusting the prompt.")
	}

	caption := ""
	if st.LastSynthesizedPrompt != nil {
		caption = *st.LastSynthesizedPrompt
	}
	return h.tg.SendPhotos(chatID, st.GeneratedImages, caption)
}

// replyError turns caller-side studio errors into chat replies. Anything
// else is returned to the update loop for logging.
func (h *Handler) replyError(chatID int64, err error) error {
	switch {
	case errors.Is(err, studio.ErrBusy):
		return h.tg.SendText(chatID, "⏳ Still working on the previous request, please wait.")
	case errors.Is(err, studio.ErrUnknownDescriptor):
		return h.tg.SendText(chatID, "Unknown descriptor. See /descriptors.")
	case errors.Is(err, studio.ErrUnknownTemplate):
		return h.tg.SendText(chatID, "Unknown template. See /templates.")
	case errors.Is(err, studio.ErrUnsupportedAspectRatio):
		return h.tg.SendText(chatID, "Unsupported aspect ratio. Use /ratio to pick one.")
	case errors.Is(err, studio.ErrInvalidAsset):
		return h.tg.SendText(chatID, "That file is not an image I can read.")
	case errors.Is(err, studio.ErrNotFound):
		return h.tg.SendText(chatID, "Session expired. Send /start to begin again.")
	}
	_ = h.tg.SendText(chatID, "❌ Something went wrong. Please try again.")
	return err
}

func sessionID(chatID int64) string {
	return "tg-" + strconv.FormatInt(chatID, 10)
}

const helpText = "Asset Synthesis Studio\n\n" +
	"Send text to set the prompt, or a photo to use as reference asset.\n\n" +
	"/prompt <text> - set or show the prompt\n" +
	"/enhance - let the model refine the prompt\n" +
	"/ratio [w:h] - choose the aspect ratio\n" +
	"/set <descriptor> <value> - tune a descriptor\n" +
	"/descriptors - show descriptor values\n" +
	"/templates - browse inspiration templates\n" +
	"/template <id> - apply a template\n" +
	"/clearasset - drop the reference asset\n" +
	"/synthesize - generate images\n" +
	"/state - show the studio state\n" +
	"/reset - start over"
