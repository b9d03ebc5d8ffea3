package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/lexcodex/blockkernel/server"
	"github.com/lexcodex/blockkernel/toolboxes"
)

func newServeCmd(c *cli) *cobra.Command {
	var addr, docPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve one document's toolbox and kernel state to an editor over HTTP",
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
			}

			api := &server.APIServer{
				Manager: rt.manager,
				Mapper:  rt.mapper,
				Logger:  c.logger.Named("api"),
			}
			return api.ServeContext(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "listen", "127.0.0.1:7451", "Address to listen on")
	cmd.Flags().StringVar(&docPath, "doc", "", "Document whose toolbox and kernel to restore first")
	return cmd
}
