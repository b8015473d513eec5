package cmd

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/stateful/dualdoc/internal/config"
	"github.com/stateful/dualdoc/pkg/document/sanitize"
)

func sanitizeCmd() *cobra.Command {
	var image bool

	cmd := cobra.Command{
		Use:   "sanitize URL...",
		Short: "Print sanitized URLs, one per line.",
		Long: `Print sanitized URLs, one per line.

A rejected URL prints as an empty line.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return invoke(func(cfg *config.Config) error {
				allowed := sanitize.LinkProtocols
				if image {
					allowed = sanitize.ImageProtocols
				}
				allowed = append(append([]string(nil), allowed...), cfg.Sanitize.ExtraLinkProtocols...)

				for _, raw := range args {
					if _, err := fmt.Fprintln(cmd.OutOrStdout(), sanitize.Sanitize(raw, allowed)); err != nil {
						return errors.Wrap(err, "failed to write result")
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&image, "image", false, "Sanitize as image sources, allowing data:image URLs.")

	return &cmd
}
