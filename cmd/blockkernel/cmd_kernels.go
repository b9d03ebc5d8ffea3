package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newKernelsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kernels",
		Short: "Inspect available kernels",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List kernelspecs and whether a generator serves their language",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := c.buildRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()
			specs := rt.session.KernelSpecs()
			if len(specs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No kernels found.")
				return nil
			}
			names := make([]string, 0, len(specs))
			for name := range specs {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				spec := specs[name]
				gen := "no generator"
				if rt.registry.HasGenerator(spec.Language) {
					gen = "generator"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s · %s · %s · %s\n", name, spec.DisplayName, spec.Language, gen)
			}
			return nil
		},
	})
	return cmd
}
