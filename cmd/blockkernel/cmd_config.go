package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lexcodex/blockkernel/internal/config"
)

func newConfigCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or modify config.yaml",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration",
			RunE: func(cmd *cobra.Command, args []string) error {
				data, err := yaml.Marshal(c.cfg)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", c.cfgFile, data)
				return nil
			},
		},
		&cobra.Command{
			Use:   "get <key>",
			Short: "Read a config value by dotted key",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				data, err := config.ReadMap(c.cfgFile)
				if err != nil {
					return err
				}
				value, ok := config.Lookup(data, args[0])
				if !ok {
					return fmt.Errorf("key %s not found", args[0])
				}
				fmt.Fprintln(cmd.OutOrStdout(), config.FormatValue(value))
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Update a config value; comma separated values become lists",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				data, err := config.ReadMap(c.cfgFile)
				if err != nil {
					return err
				}
				if err := config.Assign(data, args[0], config.ParseValue(args[1])); err != nil {
					return err
				}
				if err := config.WriteMap(c.cfgFile, data); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s updated\n", args[0])
				return nil
			},
		},
	)
	return cmd
}
