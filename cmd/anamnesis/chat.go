package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/aretw0/anamnesis"
	"github.com/aretw0/anamnesis/internal/cli"
	"github.com/aretw0/anamnesis/internal/presentation/tui"
)

const maxRenderWidth = 100

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Answer the questionnaire in the terminal",
	Long: `Runs the questionnaire interactively over stdin/stdout.
Narratives are rendered as markdown when stdout is a terminal.
Resume an interrupted session with --session.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")
		userID, _ := cmd.Flags().GetString("user")
		fresh, _ := cmd.Flags().GetBool("fresh")

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()

		app, err := cli.Build(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize: %w", err)
		}
		defer app.Close()

		opts := cli.ChatOptions{
			SessionID: sessionID,
			UserID:    userID,
			Fresh:     fresh,
			In:        os.Stdin,
			Out:       cmd.OutOrStdout(),
			Render:    tui.Plain,
			Style:     tui.NewSystemStyle(cmd.OutOrStdout()),
			Logger:    logger,
		}

		if fd := int(os.Stdout.Fd()); term.IsTerminal(fd) {
			width := 0
			if w, _, err := term.GetSize(fd); err == nil {
				width = min(w, maxRenderWidth)
			}
			opts.Render = tui.NewRenderer(width)
			tui.PrintBanner(opts.Out, strings.TrimSpace(anamnesis.Version))
		}

		return cli.RunChat(ctx, app.Service, opts)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringP("session", "s", "", "Session id to open or resume (default: a new id)")
	chatCmd.Flags().StringP("user", "u", "", "User id recorded with the completed session (default: the session id)")
	chatCmd.Flags().Bool("fresh", false, "Discard any progress stored under --session and start over")
}
