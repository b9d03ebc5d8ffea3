package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lexcodex/blockkernel/framework"
	"github.com/lexcodex/blockkernel/internal/config"
	"github.com/lexcodex/blockkernel/internal/logging"
)

// cli holds the state shared by every subcommand.
type cli struct {
	workspace string
	cfgFile   string
	allow     string
	verbose   bool

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "blockkernel",
		Short:         "Toolbox and kernel management for block documents",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&c.workspace, "workspace", "", "Workspace directory")
	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "Path to blockkernel config file")
	root.PersistentFlags().StringVar(&c.allow, "allow", "", "Comma separated block types to allow (* for all)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newToolboxCmd(c),
		newKernelsCmd(c),
		newDocCmd(c),
		newSelectCmd(c),
		newConfigCmd(c),
		newServeCmd(c),
		newServeSessionCmd(c),
	)
	return root
}

func (c *cli) init(cmd *cobra.Command) error {
	if c.workspace == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		c.workspace = wd
	}
	if c.cfgFile == "" {
		c.cfgFile = config.DefaultConfigPath(c.workspace)
	}
	cfg, err := config.Load(c.cfgFile, c.workspace)
	if err != nil {
		return err
	}
	if c.verbose {
		cfg.Logging.Level = "debug"
	}
	// the toolbar owns the terminal
	if cmd.Name() == "select" && cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(config.ConfigDir(cfg.Workspace), "blockkernel.log")
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.logger = logger
	return nil
}

// allowList resolves --allow over the configured allow-list.
func (c *cli) allowList(cmd *cobra.Command) framework.AllowList {
	if cmd.Flags().Changed("allow") {
		return framework.ParseAllowList(c.allow)
	}
	return c.cfg.Allowed()
}
