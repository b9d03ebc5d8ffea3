package main

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lexcodex/blockkernel/session"
)

func newServeSessionCmd(c *cli) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve-session",
		Short: "Serve the local kernel session over JSON-RPC",
		RunE: func(cmd *cobra.Command, args []string) error {
			local, err := c.localSession()
			if err != nil {
				return err
			}
			defer local.Close()
			network := c.cfg.Session.Network
			ln, err := net.Listen(network, addr)
			if err != nil {
				return err
			}
			c.logger.Info("session server listening",
				zap.String("addr", ln.Addr().String()),
				zap.Int("kernels", len(local.KernelSpecs())))
			fmt.Fprintf(cmd.OutOrStdout(), "listening on %s\n", ln.Addr())
			return session.NewRPCServer(local, c.logger.Named("rpc")).Serve(cmd.Context(), ln)
		},
	}
	cmd.Flags().StringVar(&addr, "listen", "127.0.0.1:7450", "Address to listen on")
	return cmd
}
