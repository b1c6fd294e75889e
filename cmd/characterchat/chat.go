package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	charservice "characterchat/backend/character/service"
	chatservice "characterchat/backend/conversation/service"
	"characterchat/backend/internal/models"
	"characterchat/backend/pkg/di"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
)

func newChatCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <character id or name>",
		Short: "Start an interactive conversation with a character",
		Long: `Start an interactive conversation with a character.

Commands inside the chat:
  /regen   regenerate the last reply
  /clear   start over with an empty conversation
  /quit    leave the chat

Ctrl+C while a reply streams stops it; Ctrl+C at the prompt exits.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withContainer(cmd.Context(), func(ctx context.Context, c *di.Container) error {
				character, err := resolveCharacter(ctx, c.Characters, args[0])
				if err != nil {
					return err
				}

				session, err := c.Chat.OpenSession(ctx, character.ID)
				if errors.Is(err, chatservice.ErrNoCredential) {
					return errors.New("no API key stored; run `characterchat key set` first")
				}
				if err != nil {
					return err
				}
				return runChat(ctx, session, os.Stdout)
			})
		},
	}
}

// resolveCharacter accepts an id or a case-insensitive name. Names must be
// unambiguous since duplicates are allowed.
func resolveCharacter(ctx context.Context, characters *charservice.CharacterService, ref string) (*models.Character, error) {
	character, err := characters.Get(ctx, ref)
	if err == nil {
		return character, nil
	}
	if !charservice.IsNotFound(err) {
		return nil, err
	}

	all, err := characters.List(ctx)
	if err != nil {
		return nil, err
	}
	var matches []models.Character
	for _, c := range all {
		if strings.EqualFold(c.Name, ref) {
			matches = append(matches, c)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("no character with id or name %q", ref)
	case 1:
		return &matches[0], nil
	default:
		return nil, fmt.Errorf("%d characters are named %q; use an id", len(matches), ref)
	}
}

func runChat(ctx context.Context, session *chatservice.Session, out io.Writer) error {
	character := session.Character()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	printer := newReplyPrinter(out, character.Name)
	unsubscribe := session.OnChange(printer.onSnapshot)
	defer unsubscribe()

	fmt.Fprintln(out, titleStyle.Render("Chatting with "+character.Name))
	if character.Description != "" {
		fmt.Fprintln(out, infoStyle.Render(character.Description))
	}
	fmt.Fprintln(out, infoStyle.Render("/regen, /clear, /quit"))
	fmt.Fprintln(out)

	for {
		input, err := line.Prompt("you> ")
		if err != nil {
			// Ctrl+C at the prompt or EOF
			fmt.Fprintln(out)
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		switch input {
		case "/quit", "/exit":
			return nil
		case "/clear":
			session.Clear()
			fmt.Fprintln(out, infoStyle.Render("Conversation cleared."))
			continue
		case "/regen":
			printer.report(streamReply(ctx, session, printer, func(ctx context.Context) chatservice.Result {
				return session.Regenerate(ctx)
			}))
			continue
		}

		printer.report(streamReply(ctx, session, printer, func(ctx context.Context) chatservice.Result {
			return session.Send(ctx, input)
		}))
	}
}

// streamReply runs one send while Ctrl+C cancels the reply instead of
// killing the process.
func streamReply(ctx context.Context, session *chatservice.Session, printer *replyPrinter, send func(context.Context) chatservice.Result) chatservice.Result {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-sigs:
			session.Cancel()
		case <-done:
		}
	}()

	printer.begin()
	return send(ctx)
}

// replyPrinter writes the streaming assistant message incrementally.
type replyPrinter struct {
	out  io.Writer
	name string

	mu          sync.Mutex
	version     uint64
	assistantID string
	printed     int
	active      bool
}

func newReplyPrinter(out io.Writer, name string) *replyPrinter {
	return &replyPrinter{out: out, name: name}
}

func (p *replyPrinter) begin() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.active = true
	p.assistantID = ""
	p.printed = 0
}

func (p *replyPrinter) onSnapshot(snap chatservice.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if snap.Version <= p.version {
		return
	}
	p.version = snap.Version

	if !p.active || len(snap.Messages) == 0 {
		return
	}
	last := snap.Messages[len(snap.Messages)-1]
	if last.Role != models.RoleAssistant {
		return
	}
	if p.assistantID == "" {
		p.assistantID = last.ID
		fmt.Fprint(p.out, nameStyle.Render(p.name+">")+" ")
	}
	if last.ID != p.assistantID || len(last.Content) <= p.printed {
		return
	}
	fmt.Fprint(p.out, last.Content[p.printed:])
	p.printed = len(last.Content)
}

func (p *replyPrinter) report(res chatservice.Result) {
	p.mu.Lock()
	started := p.assistantID != ""
	p.active = false
	p.mu.Unlock()

	if started {
		fmt.Fprintln(p.out)
	}
	switch res.Status {
	case chatservice.StatusCancelled:
		fmt.Fprintln(p.out, warningStyle.Render("[stopped]"))
	case chatservice.StatusFailed:
		fmt.Fprintln(p.out, errorStyle.Render("Error:"), res.Reason())
	case chatservice.StatusSkipped:
		fmt.Fprintln(p.out, infoStyle.Render("Nothing to send."))
	}
	fmt.Fprintln(p.out)
}
