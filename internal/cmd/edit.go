package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/stateful/dualdoc/internal/workspace"
)

func editCmd() *cobra.Command {
	var source bool

	cmd := cobra.Command{
		Use:   "edit FILE",
		Short: "Apply an edit read from stdin to a file and save it.",
		Long: `Apply an edit read from stdin to a file and save it.

By default stdin holds the HTML of the rendered view after the edit, as a
rich-text editor would report it. The file is opened, switched to the
rendered view, edited, switched back and saved. With --source stdin holds
the new markdown source instead.

The saved content is printed to stdout.`,
		Example: `Replace the content of notes.md with a heading:
  echo '<h1>Notes</h1>' | dualdoc edit notes.md`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if f, ok := cmd.InOrStdin().(*os.File); ok && isatty.IsTerminal(f.Fd()) {
				return errors.New("edit reads the new content from stdin; pipe it in")
			}

			path, err := filepath.Abs(args[0])
			if err != nil {
				return errors.WithStack(err)
			}

			input, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return errors.Wrap(err, "failed to read from stdin")
			}

			return invoke(func(w *workspace.Workspace, logger *zap.Logger) (err error) {
				defer func() { err = multierr.Append(err, w.Close()) }()

				ctx := cmd.Context()

				if err := w.Open(ctx, path); err != nil {
					return err
				}

				if source {
					if err := w.EditSource(string(input)); err != nil {
						return err
					}
				} else {
					if err := w.EnterRendered(); err != nil {
						return err
					}
					if _, err := w.EditRendered(string(input)); err != nil {
						return err
					}
					w.LeaveRendered()
				}

				result := w.Save(ctx)
				if result.Err != nil {
					return result.Err
				}
				logger.Info("saved", zap.String("path", result.Path), zap.Bool("written", result.Saved), zap.Duration("duration", result.Duration))

				_, err = fmt.Fprint(cmd.OutOrStdout(), w.View().Content())
				return errors.Wrap(err, "failed to write result")
			})
		},
	}

	cmd.Flags().BoolVar(&source, "source", false, "Read markdown source from stdin instead of rendered HTML.")

	return &cmd
}
