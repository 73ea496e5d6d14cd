// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/xec-sh/xec/internal/config"
)

// watchReload re-reads the configuration tree on SIGHUP and swaps it in
// atomically (one pointer write, single writer), so long-running commands
// like watch and forward pick up edits without restarting. A reload that
// fails to load leaves the previous tree in place.
func watchReload(ctx context.Context) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP)
	defer signal.Stop(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
			loaded, err := config.Load(config.LoadOptions{
				ConfigPath: configPath,
				Profile:    profile,
				WorkDir:    cwdFlag,
			})
			if err != nil {
				logger.Warn("configuration reload failed", "err", err)
				continue
			}
			cfg = loaded
			eng.Config = loaded
			logger.Info("configuration reloaded", "source", loaded.SourcePath)
		}
	}
}
