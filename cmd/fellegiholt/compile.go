package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lverweijen/fellegiholt/internal/compile"
	"github.com/lverweijen/fellegiholt/internal/rules"
)

func newCompileCmd(a *app) *cobra.Command {
	var (
		rulesPath string
		tags      []string
		opts      compile.Options
	)
	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Print the linear constraints a rule file compiles to",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			rs, err := rules.DecodeFile(rulesPath)
			if err != nil {
				return err
			}
			opts.Logger = a.logger
			c, err := compile.New(nil, opts)
			if err != nil {
				return err
			}
			for _, r := range rules.FilterTags(rs, tags...) {
				cs, err := c.Compile(r)
				if err != nil {
					fmt.Fprintf(out, "# %s: skipped: %v\n", r.Name, err)
					continue
				}
				fmt.Fprintf(out, "# %s\n", r.Name)
				for _, con := range cs {
					fmt.Fprintln(out, con.Constraint.String())
				}
			}
			fmt.Fprintf(out, "# fields: %v\n", c.Pool().Fields())
			return nil
		},
	}
	cmd.Flags().StringVarP(&rulesPath, "rules", "r", "rules/example.yaml", "rule file (YAML or JSON)")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "only compile rules carrying one of these tags")
	cmd.Flags().Float64Var(&opts.BigM, "big-m", compile.DefaultBigM, "big-M constant")
	cmd.Flags().Float64Var(&opts.Epsilon, "epsilon", compile.DefaultEpsilon, "strictness margin for negated comparisons")
	return cmd
}
