package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lverweijen/fellegiholt/internal/logging"
)

// app carries state shared by the subcommands.
type app struct {
	verbose bool
	logger  *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{logger: logging.Nop()}
	root := &cobra.Command{
		Use:           "fellegiholt",
		Short:         "fellegiholt - locate and correct errors in records that break edit rules",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := logging.New(a.verbose)
			if err != nil {
				return err
			}
			a.logger = l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.logger.Sync()
		},
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logs on the console")

	root.AddCommand(newRunCmd(a))
	root.AddCommand(newValidateCmd(a))
	root.AddCommand(newCompileCmd(a))
	return root
}
