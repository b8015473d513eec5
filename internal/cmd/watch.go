package cmd

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/stateful/dualdoc/internal/watcher"
)

func watchCmd() *cobra.Command {
	cmd := cobra.Command{
		Use:   "watch DIR...",
		Short: "Print changes of markdown files below directories.",
		Long: `Print changes of markdown files below directories until interrupted.

Files are matched against the "watch.patterns" configuration and the
optional "watch.filter" expression.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return invoke(func(w *watcher.Watcher, logger *zap.Logger) (err error) {
				defer func() { err = multierr.Append(err, w.Close()) }()

				for _, dir := range args {
					if err := w.Watch(dir); err != nil {
						return err
					}
					logger.Debug("watching", zap.String("dir", dir))
				}

				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
				defer stop()

				for {
					select {
					case <-ctx.Done():
						return nil
					case event, ok := <-w.Events():
						if !ok {
							return nil
						}
						_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", eventColor(event.Type).Sprint(event.Type), event.Path)
					case err, ok := <-w.Errors():
						if !ok {
							return nil
						}
						cmd.PrintErrf("watch error: %v\n", err)
					}
				}
			})
		},
	}
	return &cmd
}

var eventColors = map[watcher.EventType]*color.Color{
	watcher.Created:  color.New(color.FgGreen),
	watcher.Modified: color.New(color.FgYellow),
	watcher.Removed:  color.New(color.FgRed),
	watcher.Renamed:  color.New(color.FgCyan),
}

func eventColor(t watcher.EventType) *color.Color {
	if c, ok := eventColors[t]; ok {
		return c
	}
	return color.New(color.Reset)
}
