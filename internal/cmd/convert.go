package cmd

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stateful/dualdoc/pkg/document"
	"github.com/stateful/dualdoc/pkg/document/converter"
	"github.com/stateful/dualdoc/pkg/document/frontmatter"
)

func convertCmd() *cobra.Command {
	cmd := cobra.Command{
		Use:   "convert FILE",
		Short: "Print the document tree of a markdown file as JSON.",
		Long: `Print the document tree of a markdown file as JSON.

Use "-" to read from stdin. Frontmatter is not part of the tree.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return invoke(func(conv *converter.Converter, logger *zap.Logger) error {
				data, err := readSource(cmd, args[0])
				if err != nil {
					return err
				}

				_, body := frontmatter.Split(string(data))

				tree, report := conv.Parse(body)
				if report.Err != nil {
					logger.Info("recovered from parse error", zap.Error(report.Err))
				}
				for _, url := range report.UnsafeURLs {
					cmd.PrintErrf("removed unsafe url: %s\n", url)
				}

				return errors.Wrap(document.Encode(cmd.OutOrStdout(), tree), "failed to encode tree")
			})
		},
	}
	return &cmd
}
