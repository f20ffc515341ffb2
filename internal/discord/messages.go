package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/tngbot/internal/observe"
)

// MessageDispatcher answers prefixed chat messages. *command.Dispatcher
// implements it.
type MessageDispatcher interface {
	Handle(ctx context.Context, message string) (reply string, handled bool)
}

// MessageHandler replies in-channel to messages addressed to the bot.
type MessageHandler struct {
	dispatcher MessageDispatcher
}

// NewMessageHandler returns a handler answering through d.
func NewMessageHandler(d MessageDispatcher) *MessageHandler {
	return &MessageHandler{dispatcher: d}
}

// Handle processes one MessageCreate event. Messages without an author,
// from bots, or from selfID itself are ignored.
func (h *MessageHandler) Handle(s Responder, selfID string, m *discordgo.MessageCreate) {
	if m.Message == nil || m.Author == nil || m.Author.Bot || m.Author.ID == selfID || m.Content == "" {
		return
	}

	ctx, span := observe.StartSpan(context.Background(), "discord.message")
	defer span.End()

	reply, ok := h.dispatcher.Handle(ctx, m.Content)
	if !ok {
		return
	}
	observe.Logger(ctx).Debug("discord: answering message", "channel", m.ChannelID, "author", m.Author.ID)
	Send(s, m.ChannelID, reply)
}
