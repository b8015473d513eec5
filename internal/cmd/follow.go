package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/stateful/dualdoc/internal/workspace"
)

func followCmd() *cobra.Command {
	var rendered bool

	cmd := cobra.Command{
		Use:   "follow FILE",
		Short: "Keep a document open and print it whenever it changes on disk.",
		Long: `Keep a document open and print it whenever it changes on disk.

The document is printed once when opened and again after every external
change, until interrupted. With --rendered the surface HTML is printed
instead of the markdown source.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return errors.WithStack(err)
			}

			return invoke(func(w *workspace.Workspace, logger *zap.Logger) (err error) {
				defer func() { err = multierr.Append(err, w.Close()) }()

				show := func(content string) {
					if rendered {
						content = w.Surface().Serialize() + "\n"
					}
					_, _ = fmt.Fprint(cmd.OutOrStdout(), content)
				}

				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
				defer stop()

				if err := w.Open(ctx, path); err != nil {
					return err
				}
				if rendered {
					if err := w.EnterRendered(); err != nil {
						return err
					}
				}
				show(w.View().Content())

				w.OnReload(show)
				logger.Debug("following", zap.String("path", path))

				if err := w.Follow(ctx); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&rendered, "rendered", false, "Print the rendered HTML instead of markdown.")

	return &cmd
}
