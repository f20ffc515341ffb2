package commands

import (
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/tngbot/internal/command"
	"github.com/MrWong99/tngbot/internal/discord"
	"github.com/MrWong99/tngbot/internal/discord/mock"
	"github.com/MrWong99/tngbot/internal/roster"
	"github.com/MrWong99/tngbot/pkg/markov"
)

func newQuoteCommands(t *testing.T) *QuoteCommands {
	t.Helper()
	models := map[string]*markov.Model{}
	for name, text := range map[string]string{
		"picard":  "Make it so now.",
		"pulaski": "I am a doctor.",
		"riker":   "Shields up now.",
	} {
		m, err := markov.Build(text)
		if err != nil {
			t.Fatal(err)
		}
		models[name] = m
	}
	r := roster.New(nil)
	r.Replace(models, markov.WithOriginalityCheck(false))
	return NewQuoteCommands(command.NewDispatcher("tng_bot", r))
}

func quoteInteraction(typ discordgo.InteractionType, value string, focused bool) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type: typ,
			Data: discordgo.ApplicationCommandInteractionData{
				Name: "quote",
				Options: []*discordgo.ApplicationCommandInteractionDataOption{
					{
						Name:    "character",
						Type:    discordgo.ApplicationCommandOptionString,
						Value:   value,
						Focused: focused,
					},
				},
			},
		},
	}
}

func TestQuoteDefinition(t *testing.T) {
	t.Parallel()
	qc := newQuoteCommands(t)
	def := qc.QuoteDefinition()
	if def.Name != "quote" {
		t.Errorf("Name = %q", def.Name)
	}
	if len(def.Options) != 1 || def.Options[0].Name != "character" {
		t.Fatalf("Options = %+v", def.Options)
	}
	if !def.Options[0].Autocomplete || !def.Options[0].Required {
		t.Error("character option should be required with autocomplete")
	}
}

func TestQuote_KnownCharacter(t *testing.T) {
	t.Parallel()
	qc := newQuoteCommands(t)
	s := &mock.Responder{}

	qc.handleQuote(s, quoteInteraction(discordgo.InteractionApplicationCommand, "Picard", false))

	resp := s.LastResponse()
	if resp == nil {
		t.Fatal("no response")
	}
	if resp.Data.Content != "picard: Make it so now." {
		t.Errorf("Content = %q", resp.Data.Content)
	}
	if resp.Data.Flags&discordgo.MessageFlagsEphemeral != 0 {
		t.Error("a quote should be public")
	}
}

func TestQuote_UnknownCharacterIsEphemeral(t *testing.T) {
	t.Parallel()
	qc := newQuoteCommands(t)
	s := &mock.Responder{}

	qc.handleQuote(s, quoteInteraction(discordgo.InteractionApplicationCommand, "rikker", false))

	resp := s.LastResponse()
	if resp.Data.Content != "I do not know who rikker is. Did you mean riker?" {
		t.Errorf("Content = %q", resp.Data.Content)
	}
	if resp.Data.Flags&discordgo.MessageFlagsEphemeral == 0 {
		t.Error("unknown character reply should be ephemeral")
	}
}

func TestQuote_Autocomplete(t *testing.T) {
	t.Parallel()
	qc := newQuoteCommands(t)

	tests := []struct {
		typed string
		want  []string
	}{
		{"p", []string{"picard", "pulaski"}},
		{"PI", []string{"picard"}},
		{"", []string{"picard", "pulaski", "riker"}},
		{"worf", nil},
	}
	for _, tt := range tests {
		s := &mock.Responder{}
		qc.handleAutocomplete(s, quoteInteraction(discordgo.InteractionApplicationCommandAutocomplete, tt.typed, true))
		resp := s.LastResponse()
		if resp.Type != discordgo.InteractionApplicationCommandAutocompleteResult {
			t.Fatalf("Type = %v", resp.Type)
		}
		var got []string
		for _, c := range resp.Data.Choices {
			got = append(got, c.Name)
		}
		if len(got) != len(tt.want) {
			t.Errorf("typed %q: choices = %v, want %v", tt.typed, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("typed %q: choices = %v, want %v", tt.typed, got, tt.want)
				break
			}
		}
	}
}

func TestCharacters(t *testing.T) {
	t.Parallel()
	qc := newQuoteCommands(t)
	s := &mock.Responder{}

	qc.handleCharacters(s, &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type: discordgo.InteractionApplicationCommand,
		Data: discordgo.ApplicationCommandInteractionData{Name: "characters"},
	}})

	want := "I know the below characters: \npicard\npulaski\nriker"
	if got := s.LastResponse().Data.Content; got != want {
		t.Errorf("Content = %q, want %q", got, want)
	}
}

func TestRegister(t *testing.T) {
	t.Parallel()
	qc := newQuoteCommands(t)
	router := discord.NewCommandRouter()
	qc.Register(router)

	cmds := router.ApplicationCommands()
	if len(cmds) != 2 || cmds[0].Name != "characters" || cmds[1].Name != "quote" {
		t.Errorf("registered = %v", cmds)
	}
}
