package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hed1ad/autosad/pkg/detectors"
)

func newGridCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "grid [variant...]",
		Short: "Print the hyperparameter grids the pool samples from",
		RunE: func(cmd *cobra.Command, args []string) error {
			variants := detectors.Variants
			if len(args) > 0 {
				variants = variants[:0:0]
				for _, name := range args {
					v, err := detectors.ParseVariant(name)
					if err != nil {
						return err
					}
					variants = append(variants, v)
				}
			}
			return printGrids(a, variants)
		},
	}
}

func printGrids(a *app, variants []detectors.Variant) error {
	tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	for i, v := range variants {
		if i > 0 {
			fmt.Fprintln(tw)
		}
		fmt.Fprintln(tw, v)
		for _, spec := range detectors.GridFor(v) {
			values := make([]string, spec.Len())
			for j := range values {
				values[j] = spec.At(j).String()
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", spec.Name, spec.Kind, strings.Join(values, " "))
		}
	}
	return tw.Flush()
}
