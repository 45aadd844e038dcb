package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kalambet/jarvis/internal/assistant"
	"github.com/kalambet/jarvis/internal/config"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start an interactive session in the terminal",
	Long: `Start an interactive session. Type a command per line, e.g.

  open chrome
  remind me to call mom
  create profile named Alice in Berlin

Type "exit" or press Ctrl-D to quit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		profileName, _ := cmd.Flags().GetString("profile")
		return runInteractive(cmd.Context(), profileName, os.Stdin, os.Stdout)
	},
}

func init() {
	runCmd.Flags().String("profile", "", "profile to start with (default: assistant.default_profile)")
}

func runInteractive(ctx context.Context, profileName string, stdin io.Reader, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr, cfg.Log.Level)

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	in := bufio.NewReader(stdin)
	env, err := openEnv(cfg, logger, newTermPrompter(in, stdout))
	if err != nil {
		return err
	}
	defer func() {
		if err := env.Close(); err != nil {
			logger.Warn("closing", "error", err)
		}
	}()

	if profileName == "" {
		profileName = cfg.Assistant.DefaultProfile
	}
	if !env.profiles.Exists(profileName) {
		if profileName, err = ensureDefaultProfile(env.profiles, profileName); err != nil {
			return err
		}
	}

	fmt.Fprintf(stdout, "%s (profile %s). Say \"help\" for what I can do.\n", versionLine(), colorize(colorBold, profileName))

	feed := newLineFeeder(in)
	r := &assistant.Runner{
		Assistant: env.assistant,
		Profile:   profileName,
		Present: func(out assistant.Outcome) {
			writeOutcome(stdout, out)
			if out.SwitchTo != "" {
				fmt.Fprintf(stdout, "%s\n", colorize(colorCyan, "[profile: "+out.SwitchTo+"]"))
			}
		},
		OnHint: func(h assistant.Hint) {
			if h == assistant.HintListening {
				fmt.Fprint(stdout, colorize(colorBold, "> "))
				feed.next()
			}
		},
		Logger: logger,
	}

	go feed.run(ctx)
	return r.Run(ctx, feed.lines)
}

// lineFeeder reads one input line each time next is called. Reading on
// demand keeps the password prompt and the command loop from competing
// for the same input.
type lineFeeder struct {
	in    *bufio.Reader
	ready chan struct{}
	lines chan string
}

func newLineFeeder(in *bufio.Reader) *lineFeeder {
	return &lineFeeder{
		in:    in,
		ready: make(chan struct{}, 1),
		lines: make(chan string),
	}
}

func (f *lineFeeder) next() {
	select {
	case f.ready <- struct{}{}:
	default:
	}
}

func (f *lineFeeder) run(ctx context.Context) {
	defer close(f.lines)
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.ready:
		}

		line, err := f.in.ReadString('\n')
		line = strings.TrimSpace(line)
		if line != "" {
			select {
			case f.lines <- line:
			case <-ctx.Done():
				return
			}
		} else if err == nil {
			f.next()
		}
		if err != nil {
			return
		}
	}
}
