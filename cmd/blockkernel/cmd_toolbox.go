package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lexcodex/blockkernel/app/toolbar"
	"github.com/lexcodex/blockkernel/framework"
)

func newToolboxCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "toolbox",
		Short: "Inspect registered toolboxes",
	}
	cmd.AddCommand(newToolboxListCmd(c), newToolboxShowCmd(c))
	return cmd
}

func newToolboxListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List toolboxes with their enabled block counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := c.buildRegistry()
			if err != nil {
				return err
			}
			allow := c.allowList(cmd)
			for _, name := range reg.Names() {
				def, _ := reg.Toolbox(name)
				filtered := def.Clone()
				framework.FilterToolbox(filtered, allow)
				total, enabled := framework.CountBlocks(filtered)
				marker := ""
				if name == c.cfg.DefaultToolbox {
					marker = " (default)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s%s · %s · %d/%d blocks\n", name, marker, def.Kind, enabled, total)
			}
			return nil
		},
	}
}

func newToolboxShowCmd(c *cli) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show [name]",
		Short: "Show a toolbox filtered by the allow-list",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := c.buildRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()
			if len(args) == 1 {
				warnAll(cmd, rt.manager.SetToolbox(args[0]))
			}
			tb := rt.manager.ToolboxDefinition()
			if asJSON {
				data, err := json.MarshalIndent(tb, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", rt.manager.Toolbox(), toolbar.RenderToolbox(tb))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the filtered toolbox as JSON")
	return cmd
}
