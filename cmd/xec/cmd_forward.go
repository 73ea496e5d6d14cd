// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/xec-sh/xec/internal/portforward"
)

// newForwardCommand implements `forward <source>
// <destination>`: bind a local port and bridge it to a remote SSH or
// Kubernetes endpoint, blocking until interrupted or the forward exits on
// its own.
func newForwardCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forward <source> <destination>",
		Short: "Forward a local port to a remote host or pod port",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr := portforward.NewManager(cfg, eng.Pool())
			fwd, err := mgr.Open(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			defer fwd.Close()

			fmt.Fprintf(os.Stdout, "%s local port %d -> %s\n",
				subtitleStyle.Render("forwarding"), fwd.LocalPort(), cmdStyle.Render(args[1]))

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt)
			defer signal.Stop(sigCh)

			select {
			case <-cmd.Context().Done():
				return nil
			case <-sigCh:
				return nil
			case err := <-fwd.Done():
				if err != nil {
					return fmt.Errorf("forward: %w", err)
				}
				return nil
			}
		},
	}
	return cmd
}
