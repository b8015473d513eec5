package cmd

import (
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/stateful/dualdoc/internal/config"
	"github.com/stateful/dualdoc/internal/persistence"
	"github.com/stateful/dualdoc/internal/storage"
	"github.com/stateful/dualdoc/pkg/document/converter"
	"github.com/stateful/dualdoc/pkg/document/frontmatter"
)

func fmtCmd() *cobra.Command {
	var write bool

	cmd := cobra.Command{
		Use:   "fmt FILE...",
		Short: "Normalize markdown files by passing them through the rendered view.",
		Long: `Normalize markdown files by passing them through the rendered view.

The result is what leaving the rendered view after an edit would produce.
Frontmatter is kept verbatim.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if write {
				for _, arg := range args {
					if arg == "-" {
						return errors.New("cannot use --write with stdin")
					}
				}
			}

			return invoke(func(
				cfg *config.Config,
				conv *converter.Converter,
				backend storage.Backend,
				logger *zap.Logger,
			) error {
				results := make([]string, len(args))

				g, ctx := errgroup.WithContext(cmd.Context())
				for i, arg := range args {
					i, arg := i, arg
					g.Go(func() error {
						data, err := readSource(cmd, arg)
						if err != nil {
							return err
						}

						formatted, err := format(conv, string(data), logger)
						if err != nil {
							return errors.Wrapf(err, "failed to format %q", arg)
						}
						results[i] = formatted

						if !write {
							return nil
						}

						path, err := filepath.Abs(arg)
						if err != nil {
							return errors.WithStack(err)
						}

						p := persistence.New(
							backend,
							persistence.WithSaveTimeout(cfg.Persistence.SaveTimeout),
							persistence.WithLogger(logger),
						)
						defer p.Close()

						if err := p.Load(ctx, path); err != nil {
							return err
						}
						if err := p.UpdateContent(formatted); err != nil {
							return err
						}
						return p.SaveSync(ctx).Err
					})
				}

				if err := g.Wait(); err != nil {
					return err
				}

				if write {
					return nil
				}

				for _, result := range results {
					if _, err := cmd.OutOrStdout().Write([]byte(result)); err != nil {
						return errors.Wrap(err, "failed to write result")
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&write, "write", "w", false, "Write the result back to the files instead of stdout.")

	return &cmd
}

func format(conv *converter.Converter, source string, logger *zap.Logger) (string, error) {
	fm, body := frontmatter.Split(source)

	normalized, warnings, err := conv.Convert(body)
	if err != nil {
		return "", err
	}
	for _, w := range warnings {
		logger.Info("conversion warning", zap.Stringer("warning", w))
	}

	return fm.Join(normalized), nil
}
