// Package commands implements the slash commands of the bot.
package commands

import (
	"context"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/tngbot/internal/command"
	"github.com/MrWong99/tngbot/internal/discord"
	"github.com/MrWong99/tngbot/internal/observe"
)

// maxChoices is Discord's limit on autocomplete choices.
const maxChoices = 25

// QuoteCommands handles /quote and /characters.
type QuoteCommands struct {
	dispatcher *command.Dispatcher
}

// NewQuoteCommands creates the handlers on top of d.
func NewQuoteCommands(d *command.Dispatcher) *QuoteCommands {
	return &QuoteCommands{dispatcher: d}
}

// Register registers /quote and /characters with the router.
func (qc *QuoteCommands) Register(router *discord.CommandRouter) {
	router.RegisterCommand("quote", qc.QuoteDefinition(), qc.handleQuote)
	router.RegisterAutocomplete("quote", qc.handleAutocomplete)
	router.RegisterCommand("characters", qc.CharactersDefinition(), qc.handleCharacters)
}

// QuoteDefinition returns the /quote ApplicationCommand.
func (qc *QuoteCommands) QuoteDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "quote",
		Description: "Get a generated line from a character",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:         "character",
				Description:  "Character name",
				Type:         discordgo.ApplicationCommandOptionString,
				Required:     true,
				Autocomplete: true,
			},
		},
	}
}

// CharactersDefinition returns the /characters ApplicationCommand.
func (qc *QuoteCommands) CharactersDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "characters",
		Description: "List the characters I know",
	}
}

func (qc *QuoteCommands) handleQuote(s discord.Responder, i *discordgo.InteractionCreate) {
	name := stringOption(i.ApplicationCommandData().Options, "character")
	if name == "" {
		discord.RespondEphemeral(s, i, "Please name a character.")
		return
	}

	ctx, span := observe.StartSpan(context.Background(), "discord.quote")
	defer span.End()

	reply, err := qc.dispatcher.Quote(ctx, name)
	if err != nil {
		discord.RespondEphemeral(s, i, reply)
		return
	}
	discord.Respond(s, i, reply)
}

func (qc *QuoteCommands) handleCharacters(s discord.Responder, i *discordgo.InteractionCreate) {
	discord.RespondEphemeral(s, i, qc.dispatcher.Run(context.Background(), command.List))
}

func (qc *QuoteCommands) handleAutocomplete(s discord.Responder, i *discordgo.InteractionCreate) {
	var typed string
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Focused {
			typed = strings.ToLower(opt.StringValue())
		}
	}

	var choices []*discordgo.ApplicationCommandOptionChoice
	for _, name := range qc.dispatcher.Names() {
		if !strings.HasPrefix(strings.ToLower(name), typed) {
			continue
		}
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: name, Value: name})
		if len(choices) == maxChoices {
			break
		}
	}
	discord.RespondChoices(s, i, choices)
}

func stringOption(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	for _, opt := range opts {
		if opt.Name == name && opt.Type == discordgo.ApplicationCommandOptionString {
			return strings.TrimSpace(opt.StringValue())
		}
	}
	return ""
}
