package cmd

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/stateful/dualdoc/internal/surface"
	"github.com/stateful/dualdoc/pkg/document"
	"github.com/stateful/dualdoc/pkg/document/converter"
	"github.com/stateful/dualdoc/pkg/document/frontmatter"
)

func renderCmd() *cobra.Command {
	var fromJSON bool

	cmd := cobra.Command{
		Use:   "render FILE",
		Short: "Print the HTML the rendered view shows for a markdown file.",
		Args:  cobra.ExactArgs(1),
		Example: `Render a file:
  dualdoc render README.md

Render a tree produced by "convert":
  dualdoc convert README.md | dualdoc render --json -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return invoke(func(conv *converter.Converter, s *surface.HTML) error {
				data, err := readSource(cmd, args[0])
				if err != nil {
					return err
				}

				var tree *document.Node
				if fromJSON {
					tree, err = document.Decode(bytes.NewReader(data))
					if err != nil {
						return err
					}
				} else {
					_, body := frontmatter.Split(string(data))
					tree = conv.ParseToTree(body)
				}

				if err := s.SetContent(tree); err != nil {
					return errors.Wrap(err, "failed to render")
				}

				_, err = fmt.Fprintln(cmd.OutOrStdout(), s.Serialize())
				return errors.Wrap(err, "failed to write result")
			})
		},
	}

	cmd.Flags().BoolVar(&fromJSON, "json", false, "Read a JSON document tree instead of markdown.")

	return &cmd
}
