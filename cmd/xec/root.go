// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/xec-sh/xec/internal/config"
	"github.com/xec-sh/xec/internal/engine"
	"github.com/xec-sh/xec/internal/sshpool"
	"github.com/xec-sh/xec/internal/xlog"
)

// Build-time variables set via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// Global flags.
var (
	verbose    bool
	quiet      bool
	cwdFlag    string
	noColor    bool
	evalCode   string
	replFlag   bool
	configPath string
	profile    string
	jsonOutput bool
	dryRun     bool
)

// eng and cfg are the process-wide composition root, built once in
// PersistentPreRunE and shared by every command handler.
var (
	eng    *engine.Engine
	cfg    *config.Config
	logger *log.Logger
)

var rootCmd = &cobra.Command{
	Use:   "xec",
	Short: "A universal command execution engine",
	Long: titleStyle.Render("xec") + subtitleStyle.Render(" - run commands against local, SSH, Docker, Kubernetes, and remote-Docker targets") + `

xec resolves a named target from its configuration tree and executes a
command against it through one consistent interface, regardless of which
substrate the target lives on.

` + subtitleStyle.Render("Examples:") + `
  xec on web-1,web-2 uptime       Run uptime over SSH on two configured hosts
  xec in api-container ls /app    Run a command inside a Docker container
  xec copy ./dist web-1:/srv/app  Copy a local path to a configured SSH host
  xec forward 8080 web-1:80       Forward a local port to a remote one
  xec run deploy                  Run the named task "deploy"`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = xlog.New(verbose, noColor)
		if quiet {
			logger.SetLevel(log.ErrorLevel)
		}

		workDir := cwdFlag
		if workDir != "" {
			if err := os.Chdir(workDir); err != nil {
				return usageError(fmt.Errorf("xec: --cwd %q: %w", workDir, err))
			}
		}

		loaded, err := config.Load(config.LoadOptions{
			ConfigPath: configPath,
			Profile:    profile,
			WorkDir:    workDir,
		})
		if err != nil {
			return fmt.Errorf("xec: loading configuration: %w", err)
		}
		cfg = loaded

		eng = engine.New(cfg, logger, sshpool.Options{})
		ctx := xlog.WithLogger(cmd.Context(), logger)
		cmd.SetContext(ctx)
		go watchReload(ctx)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if eng == nil {
			return nil
		}
		return eng.Close(cmd.Context())
	},
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if replFlag {
			return fmt.Errorf("xec: the interactive REPL is not part of this engine; use `xec run` or a built-in command instead")
		}
		if evalCode != "" {
			return runEval(cmd.Context(), evalCode, args)
		}
		if len(args) > 0 {
			return dispatchBare(cmd.Context(), cmd, args)
		}
		return cmd.Help()
	},
}

func getVersionString() string {
	if version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate)
}

// Execute is main's sole entry point into the CLI.
func Execute() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		code := 1
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			code = int(exitErr.Code)
		}
		os.Exit(code)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all but error output")
	rootCmd.PersistentFlags().StringVar(&cwdFlag, "cwd", "", "working directory for configuration discovery and local commands")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVarP(&evalCode, "eval", "e", "", "evaluate an inline script (delegates to the script-runner collaborator)")
	rootCmd.PersistentFlags().BoolVar(&replFlag, "repl", false, "start the interactive REPL (not supported by this engine)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "explicit configuration file path")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "active configuration profile")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit a single-line JSON failure block instead of a human summary")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "render the resolved target and escaped command without executing it")

	rootCmd.AddCommand(newOnCommand())
	rootCmd.AddCommand(newInCommand())
	rootCmd.AddCommand(newCopyCommand())
	rootCmd.AddCommand(newForwardCommand())
	rootCmd.AddCommand(newLogsCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newConfigCommand())
	rootCmd.AddCommand(newInspectCommand())
	rootCmd.AddCommand(newCompletionCommand())
}
