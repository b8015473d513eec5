package cmd

import (
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stateful/dualdoc/internal/config/autoconfig"
	"github.com/stateful/dualdoc/internal/log"
)

var (
	fConfigFile string
	fSilent     bool
)

func Root() *cobra.Command {
	cmd := cobra.Command{
		Use:           "dualdoc",
		Short:         "Edit markdown documents through a rendered view",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if fSilent {
				cmd.SetErr(io.Discard)
			}
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			log.Flush()
		},
	}

	pflags := cmd.PersistentFlags()

	pflags.StringVar(&fConfigFile, "config", "", "Path to a dualdoc.yaml file. By default it is looked up in /etc/dualdoc, $HOME/.dualdoc and the current directory.")
	pflags.BoolVar(&fSilent, "silent", false, "Do not print error messages.")

	cmd.AddCommand(convertCmd())
	cmd.AddCommand(editCmd())
	cmd.AddCommand(fmtCmd())
	cmd.AddCommand(followCmd())
	cmd.AddCommand(renderCmd())
	cmd.AddCommand(sanitizeCmd())
	cmd.AddCommand(watchCmd())

	return &cmd
}

// newBuilder returns the dependency container for a single command run.
func newBuilder() (*autoconfig.Builder, error) {
	builder := autoconfig.NewBuilder()
	if fConfigFile == "" {
		return builder, nil
	}

	err := builder.Decorate(func(v *viper.Viper) *viper.Viper {
		v.SetConfigFile(fConfigFile)
		return v
	})
	return builder, err
}

func invoke(function interface{}) error {
	builder, err := newBuilder()
	if err != nil {
		return err
	}
	return builder.Invoke(function)
}
