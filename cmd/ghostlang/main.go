// Command ghostlang is the reference host for the Ghostlang engine: it
// runs a script file, evaluates an inline snippet, or drops into an
// interactive REPL, per SPEC_FULL.md §10.4.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v3"

	"github.com/GhostKellz/ghostlang-sub000/engine"
	"github.com/GhostKellz/ghostlang-sub000/stdlib"
)

func main() {
	app := &cli.Command{
		Name:  "ghostlang",
		Usage: "Run and explore Ghostlang scripts",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "code",
				Aliases: []string{"e"},
				Usage:   "evaluate <code> directly instead of a file",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to a YAML engine config (see SPEC_FULL.md §10.2)",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "per-run execution deadline",
				Value: 5 * time.Second,
			},
		},
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "file"},
		},
		Action: run,
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "ghostlang:", err)
		os.Exit(1)
	}
}

func loadEngineConfig(cmd *cli.Command) engine.Config {
	if path := cmd.String("config"); path != "" {
		cfg, err := engine.LoadConfig(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "ghostlang: config:", err)
			return engine.DefaultConfig()
		}
		return cfg
	}
	return engine.DefaultConfig()
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg := loadEngineConfig(cmd)
	timeout := cmd.Duration("timeout")

	if code := cmd.String("code"); code != "" {
		return runSnippet(cfg, code, timeout)
	}

	if file := cmd.StringArg("file"); file != "" {
		return runFile(cfg, file, timeout)
	}

	return runREPL(cfg, timeout)
}

func newBootstrappedEngine(cfg engine.Config) *engine.Engine {
	e := engine.Create(cfg)
	stdlib.Register(e)
	return e
}

func runSnippet(cfg engine.Config, src string, timeout time.Duration) error {
	e := newBootstrappedEngine(cfg)
	script, err := e.LoadScript(src)
	if err != nil {
		return err
	}
	v, err := script.Run(timeout)
	if err != nil {
		return err
	}
	if !v.IsNil() {
		fmt.Println(v.GoString())
	}
	return nil
}

func runFile(cfg engine.Config, path string, timeout time.Duration) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return runSnippet(cfg, string(data), timeout)
}

// runREPL drives an interactive session through chzyer/readline, which
// handles both a terminal and a plain pipe line-by-line. mattn/go-isatty
// only decides whether the welcome banner is printed.
func runREPL(cfg engine.Config, timeout time.Duration) error {
	interactive := isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "ghostlang> ",
		HistoryFile:     historyFilePath(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("initializing REPL: %w", err)
	}
	defer rl.Close()

	if interactive {
		fmt.Println("Ghostlang REPL — Ctrl-D to exit")
	}

	e := newBootstrappedEngine(cfg)

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		script, err := e.LoadScript(line)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		v, err := script.Run(timeout)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		if !v.IsNil() {
			fmt.Println(v.GoString())
		}
	}
}

func historyFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home + "/.ghostlang_history"
}
