package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd(a *app) *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Lint a job file and compile its rules without reading data",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			j, err := a.loadJob(cfgPath)
			if err != nil {
				return err
			}
			d, err := a.newDetector(j)
			if err != nil {
				return err
			}
			for _, dg := range d.Diagnostics() {
				fmt.Fprintf(out, "skipped %s\n", dg)
			}
			fmt.Fprintf(out, "%s is valid: %d rules, %d constraints over %d fields\n",
				cfgPath, len(d.Rules()), len(d.Constraints()), len(d.Fields()))
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "configs/jobs/example.json", "job config JSON path")
	return cmd
}
