// Package command implements the chat vocabulary of the bot.
//
// A message addressed to the bot starts with the prefix "./<bot_name>",
// followed by one of:
//
//	help         the command list
//	list         the known characters, one per line
//	ping         "Make it So"
//	<character>  a generated line, as "<character>: <text>"
//
// The dispatcher is transport-agnostic; the Discord adapter and the HTTP
// API both call into it.
package command

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/MrWong99/tngbot/internal/observe"
	"github.com/MrWong99/tngbot/internal/roster"
	"github.com/MrWong99/tngbot/pkg/markov"
)

// Command names.
const (
	Help  = "help"
	List  = "list"
	Ping  = "ping"
	Quote = "quote"
)

// PingReply is the answer to ping.
const PingReply = "Make it So"

// Characters is the part of the roster the dispatcher needs.
type Characters interface {
	Generate(ctx context.Context, name string, rng markov.Rand) (roster.Character, markov.Sentence, error)
	Names() []string
}

// Dispatcher turns chat messages into replies. It is safe for concurrent
// use.
type Dispatcher struct {
	botName   string
	chars     Characters
	suggester *Suggester
	metrics   *observe.Metrics
	rng       markov.Rand
}

// Option configures a [Dispatcher].
type Option func(*Dispatcher)

// WithMetrics sets the metrics sink. The default is [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dispatcher) {
		if m != nil {
			d.metrics = m
		}
	}
}

// WithSuggester replaces the default name suggester.
func WithSuggester(s *Suggester) Option {
	return func(d *Dispatcher) {
		if s != nil {
			d.suggester = s
		}
	}
}

// WithRand sets the randomness source for generated lines. r must be safe
// for concurrent use. The default draws from math/rand/v2.
func WithRand(r markov.Rand) Option {
	return func(d *Dispatcher) { d.rng = r }
}

// NewDispatcher returns a dispatcher answering to "./<botName>".
func NewDispatcher(botName string, chars Characters, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		botName:   botName,
		chars:     chars,
		suggester: NewSuggester(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	return d
}

// Prefix returns the prefix addressing the bot.
func (d *Dispatcher) Prefix() string {
	return "./" + d.botName
}

// Parse extracts the command word from a message. ok is false when the
// message is not addressed to the bot. A bare prefix yields [Help].
func (d *Dispatcher) Parse(message string) (word string, ok bool) {
	rest, found := strings.CutPrefix(strings.TrimSpace(message), d.Prefix())
	if !found {
		return "", false
	}
	if rest != "" && !startsWithSpace(rest) {
		// "./tng_botx" is someone else.
		return "", false
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return Help, true
	}
	return fields[0], true
}

// Handle answers a chat message. handled is false when the message is not
// addressed to the bot; the caller then stays silent.
func (d *Dispatcher) Handle(ctx context.Context, message string) (reply string, handled bool) {
	word, ok := d.Parse(message)
	if !ok {
		return "", false
	}
	return d.Run(ctx, word), true
}

// Run executes one command word.
func (d *Dispatcher) Run(ctx context.Context, word string) string {
	switch strings.ToLower(word) {
	case Help:
		d.metrics.RecordCommand(ctx, Help, observe.StatusOK)
		return d.HelpText()
	case List:
		d.metrics.RecordCommand(ctx, List, observe.StatusOK)
		return d.ListText()
	case Ping:
		d.metrics.RecordCommand(ctx, Ping, observe.StatusOK)
		return PingReply
	default:
		reply, _ := d.Quote(ctx, word)
		return reply
	}
}

// Quote generates a line for character and formats it as a reply. The
// error is non-nil when no line was produced; the reply then explains why.
func (d *Dispatcher) Quote(ctx context.Context, character string) (string, error) {
	c, s, err := d.chars.Generate(ctx, character, d.rng)
	switch {
	case err == nil:
		d.metrics.RecordCommand(ctx, Quote, observe.StatusOK)
		return fmt.Sprintf("%s: %s", c.Name, FormatReply(s.String())), nil
	case errors.Is(err, roster.ErrUnknownCharacter):
		d.metrics.RecordCommand(ctx, Quote, observe.StatusUnknown)
		return d.unknown(character), err
	case errors.Is(err, markov.ErrNoSentence):
		d.metrics.RecordCommand(ctx, Quote, observe.StatusExhausted)
		return fmt.Sprintf("%s has nothing to say right now.", c.Name), err
	default:
		d.metrics.RecordCommand(ctx, Quote, observe.StatusError)
		observe.Logger(ctx).Error("command: quote failed", "character", character, "err", err)
		return fmt.Sprintf("%s has nothing to say right now.", character), err
	}
}

// HelpText lists the commands.
func (d *Dispatcher) HelpText() string {
	p := d.Prefix()
	var b strings.Builder
	b.WriteString("I'm a silly bot that talks like Star Trek characters.\n")
	b.WriteString("Commands:\n")
	fmt.Fprintf(&b, "%s list - lists all the characters I know\n", p)
	fmt.Fprintf(&b, "%s <character> - returns a generated line as if I was that character\n", p)
	fmt.Fprintf(&b, "%s ping - checks that I am awake\n", p)
	fmt.Fprintf(&b, "%s help - prints this text", p)
	return b.String()
}

// ListText lists the loaded characters, one per line.
func (d *Dispatcher) ListText() string {
	names := d.chars.Names()
	if len(names) == 0 {
		return "I do not know any characters yet."
	}
	return "I know the below characters: \n" + strings.Join(names, "\n")
}

// Names returns the loaded character names, sorted.
func (d *Dispatcher) Names() []string {
	return d.chars.Names()
}

// Suggest returns the loaded character whose name is closest to name.
func (d *Dispatcher) Suggest(name string) (string, bool) {
	return d.suggester.Suggest(name, d.chars.Names())
}

func (d *Dispatcher) unknown(name string) string {
	reply := fmt.Sprintf("I do not know who %s is.", strings.ToLower(name))
	if s, ok := d.Suggest(name); ok {
		reply += fmt.Sprintf(" Did you mean %s?", s)
	}
	return reply
}

var linkWrapper = regexp.MustCompile(`<(htt[^<>]*)>`)

// FormatReply prepares generated text for a chat message. Links that a chat
// client wrapped in angle brackets are unwrapped.
func FormatReply(text string) string {
	return linkWrapper.ReplaceAllString(text, "$1")
}

func startsWithSpace(s string) bool {
	return strings.TrimLeft(s, " \t\r\n") != s
}
