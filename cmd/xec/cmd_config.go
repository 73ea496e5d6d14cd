// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/xec-sh/xec/internal/config"
)

// newConfigCommand implements the `config show` / `config validate`
// subcommands: surface the fully merged configuration tree and its
// validation errors without running any command against a target.
func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the merged configuration tree",
	}
	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigValidateCommand())
	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the fully merged configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("xec: config show: %w", err)
			}
			if cfg.SourcePath != "" {
				fmt.Fprintf(os.Stdout, "%s %s\n", subtitleStyle.Render("source:"), cfg.SourcePath)
			}
			os.Stdout.Write(out)
			return nil
		},
	}
}

func newConfigValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration tree (profile DAG, task references, target names)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateConfig(cfg); err != nil {
				fmt.Fprintf(os.Stderr, "%s %s\n", failureSymbol(), err)
				return &ExitError{Code: 1}
			}
			fmt.Fprintf(os.Stdout, "%s configuration is valid\n", successStyle.Render("✓"))
			return nil
		},
	}
}

// validateConfig checks what Load cannot already
// guarantee by construction: every task step's target and task references
// resolve, descriptions are well-formed, and every task reachable through
// a `task` step is acyclic.
func validateConfig(cfg *config.Config) error {
	for name, t := range cfg.Tasks {
		if err := t.Description.Validate(); err != nil {
			return fmt.Errorf("task %q: %w", name, err)
		}
		if t.Target != "" {
			if _, err := cfg.ResolveTarget(t.Target); err != nil {
				return fmt.Errorf("task %q: %w", name, err)
			}
		}
		for _, tgtName := range t.Targets {
			if _, err := cfg.ResolveTarget(tgtName); err != nil {
				return fmt.Errorf("task %q: %w", name, err)
			}
		}
		for i, step := range t.Steps {
			if step.Target != "" {
				if _, err := cfg.ResolveTarget(step.Target); err != nil {
					return fmt.Errorf("task %q step %d: %w", name, i, err)
				}
			}
			if step.Task != "" {
				if err := checkTaskAcyclic(cfg, name, step.Task, map[string]bool{name: true}); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func checkTaskAcyclic(cfg *config.Config, root, next string, seen map[string]bool) error {
	if seen[next] {
		return fmt.Errorf("task %q: cycle via %q", root, next)
	}
	t, ok := cfg.Tasks[next]
	if !ok {
		return fmt.Errorf("task %q: references unknown task %q", root, next)
	}
	seen[next] = true
	defer delete(seen, next)
	for _, step := range t.Steps {
		if step.Task != "" {
			if err := checkTaskAcyclic(cfg, root, step.Task, seen); err != nil {
				return err
			}
		}
	}
	return nil
}
