package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lexcodex/blockkernel/app/toolbar"
	"github.com/lexcodex/blockkernel/toolboxes"
)

func newSelectCmd(c *cli) *cobra.Command {
	var docPath string
	cmd := &cobra.Command{
		Use:   "select",
		Short: "Open the interactive toolbox and kernel toolbar",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := c.buildRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			watcher, err := toolboxes.NewWatcher(rt.registry, c.cfg.ToolboxPaths,
				toolboxes.WithWatcherLogger(c.logger.Named("toolboxes")),
				toolboxes.WithReloadFunc(toolboxes.ReloadManager(rt.manager)))
			if err != nil {
				return err
			}
			if err := watcher.Start(cmd.Context()); err != nil {
				return err
			}
			defer watcher.Stop()

			var workspace []byte
			if docPath != "" {
				data, err := readDocument(docPath)
				if err != nil && !errors.Is(err, os.ErrNotExist) {
					return err
				}
				res, err := rt.mapper.Restore(cmd.Context(), data, rt.manager)
				if err != nil {
					return err
				}
				warnAll(cmd, res.Warnings...)
				workspace = res.Workspace
			}

			if err := toolbar.Run(cmd.Context(), rt.manager); err != nil {
				return err
			}
			if docPath == "" {
				return nil
			}
			saved, err := rt.mapper.Save(workspace, rt.manager.State())
			if err != nil {
				return err
			}
			if err := os.WriteFile(docPath, append(saved, '\n'), 0o644); err != nil {
				return err
			}
			c.logger.Info("document saved", zap.String("path", docPath))
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", docPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&docPath, "doc", "", "Document to open and save back on exit")
	return cmd
}
