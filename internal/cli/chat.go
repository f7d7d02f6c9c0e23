package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/aretw0/anamnesis"
	"github.com/aretw0/anamnesis/internal/runtime"
	"github.com/aretw0/anamnesis/pkg/domain"
)

// Chat commands. Anything else is an answer.
const (
	cmdQuit    = "/quit"
	cmdRestart = "/restart"
	cmdHistory = "/history"
	cmdPhoto   = "/photo"
	cmdAbout   = "/about"
	cmdHelp    = "/help"
)

// ChatService is what the terminal chat needs from the orchestrator.
type ChatService interface {
	Handle(ctx context.Context, sessionID, message string) (anamnesis.Reply, error)
	HandleImage(ctx context.Context, sessionID string, image []byte, mimeType string) (anamnesis.Reply, error)
	Restart(ctx context.Context, sessionID string) (anamnesis.Reply, error)
	Resume(ctx context.Context, sessionID string) (anamnesis.Reply, error)
	History(ctx context.Context, userID string, limit int) ([]domain.Record, error)
}

// ChatOptions configures a terminal chat.
type ChatOptions struct {
	SessionID string
	UserID    string
	Fresh     bool

	In  io.Reader
	Out io.Writer

	// Render formats narratives for the terminal. Nil prints them as is.
	Render func(string) (string, error)
	// Style decorates system lines. Nil leaves them plain.
	Style  func(string) string
	Logger *slog.Logger
}

// RunChat drives one questionnaire over a line-based terminal until the session
// completes, the user quits, or input ends.
func RunChat(ctx context.Context, svc ChatService, opts ChatOptions) error {
	c := &chat{svc: svc, opts: opts, out: opts.Out, render: opts.Render, style: opts.Style, logger: opts.Logger}
	if c.out == nil {
		c.out = os.Stdout
	}
	if c.render == nil {
		c.render = func(s string) (string, error) { return s + "\n", nil }
	}
	if c.style == nil {
		c.style = func(s string) string { return s }
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.UserID != "" {
		ctx = anamnesis.WithUserID(ctx, opts.UserID)
	}
	in := opts.In
	if in == nil {
		in = os.Stdin
	}

	var (
		reply anamnesis.Reply
		err   error
	)
	if opts.Fresh && opts.SessionID != "" {
		reply, err = svc.Restart(ctx, opts.SessionID)
	} else {
		reply, err = svc.Resume(ctx, opts.SessionID)
	}
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	c.sessionID = reply.SessionID
	c.system("Session '%s' active. Type %s for commands.", c.sessionID, cmdHelp)
	c.show(reply.Text)

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 64*1024), 1<<20)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		c.prompt()
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(c.out)
			c.system("Interrupted. Resume later with --session %s.", c.sessionID)
			return nil
		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("failed to read input: %w", err)
			}
			fmt.Fprintln(c.out)
			return nil
		case line = <-lines:
		}

		done, err := c.dispatch(ctx, strings.TrimSpace(line))
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

type chat struct {
	svc       ChatService
	opts      ChatOptions
	out       io.Writer
	render    func(string) (string, error)
	style     func(string) string
	logger    *slog.Logger
	sessionID string
}

// dispatch handles one input line. It reports done when the chat should end.
func (c *chat) dispatch(ctx context.Context, line string) (bool, error) {
	cmd, arg, _ := strings.Cut(line, " ")
	switch strings.ToLower(cmd) {
	case cmdQuit, "q", "quit", "exit":
		c.system("Bye! Resume later with --session %s.", c.sessionID)
		return true, nil

	case cmdHelp:
		c.system("%s  start over\n    %s  your previous sessions\n    %s <file>  answer the analyses question with a photo\n    %s  about this assistant\n    %s  leave",
			cmdRestart, cmdHistory, cmdPhoto, cmdAbout, cmdQuit)
		return false, nil

	case cmdAbout:
		c.show(runtime.About + "\n\n" + runtime.Privacy)
		return false, nil

	case cmdRestart:
		reply, err := c.svc.Restart(ctx, c.sessionID)
		if err != nil {
			return false, fmt.Errorf("restart failed: %w", err)
		}
		c.show(reply.Text)
		return false, nil

	case cmdHistory:
		c.history(ctx)
		return false, nil

	case cmdPhoto:
		image, err := os.ReadFile(strings.TrimSpace(arg))
		if err != nil {
			c.system("Cannot read photo: %v", err)
			return false, nil
		}
		reply, err := c.svc.HandleImage(ctx, c.sessionID, image, "")
		return c.answer(reply, err)
	}

	reply, err := c.svc.Handle(ctx, c.sessionID, line)
	return c.answer(reply, err)
}

// answer prints a reply and classifies failures. Only unexpected errors end the chat.
func (c *chat) answer(reply anamnesis.Reply, err error) (bool, error) {
	var perr *anamnesis.PersistenceError
	switch {
	case err == nil:
	case errors.As(err, &perr):
		c.logger.Error("Record was not stored", "session_id", c.sessionID, "err", err)
		c.show(reply.Text)
		c.system("Your answers could not be saved: %v", perr.Err)
		return true, nil
	case errors.Is(err, domain.ErrGenerationFailed):
		c.logger.Warn("Generation failed", "session_id", c.sessionID, "err", err)
		c.system("⚠️ Не удалось получить ответ. Отправьте сообщение ещё раз.")
		return false, nil
	case errors.Is(err, domain.ErrMalformedInput):
		c.system("Input rejected: %v", err)
		return false, nil
	case errors.Is(err, context.Canceled):
		return true, nil
	default:
		return false, err
	}

	c.show(reply.Text)
	if reply.Done {
		c.system("Session complete.")
		return true, nil
	}
	return false, nil
}

func (c *chat) history(ctx context.Context) {
	userID := c.opts.UserID
	if userID == "" {
		userID = c.sessionID
	}
	records, err := c.svc.History(ctx, userID, 0)
	if err != nil {
		c.system("Cannot load history: %v", err)
		return
	}
	if len(records) == 0 {
		c.system("No completed sessions yet.")
		return
	}
	for _, r := range records {
		c.system("%s (%s)", r.CreatedAt.Local().Format("2006-01-02 15:04"), r.ID)
		c.show(r.Summary())
	}
}

func (c *chat) show(text string) {
	out, err := c.render(text)
	if err != nil {
		out = text + "\n"
	}
	fmt.Fprint(c.out, out)
}

func (c *chat) prompt() {
	fmt.Fprint(c.out, "> ")
}

// system prints a standardized system message.
func (c *chat) system(format string, args ...any) {
	fmt.Fprintln(c.out, c.style(">>> "+fmt.Sprintf(format, args...)))
}
