package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lexcodex/blockkernel/framework"
	"github.com/lexcodex/blockkernel/generators"
	"github.com/lexcodex/blockkernel/persistence"
	"github.com/lexcodex/blockkernel/session"
	"github.com/lexcodex/blockkernel/toolboxes"
)

// runtime bundles the registry, session and manager a command works with.
type runtime struct {
	registry *framework.Registry
	session  framework.SessionProvider
	manager  *framework.Manager
	mapper   *framework.DocumentMapper
	closers  []func()
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

// buildRegistry loads builtin and configured toolboxes and generators.
// Individual toolbox files that fail to parse are logged and skipped.
func (c *cli) buildRegistry() (*framework.Registry, error) {
	reg := framework.NewRegistry()
	if err := toolboxes.RegisterBuiltins(reg); err != nil {
		return nil, err
	}
	for _, dir := range c.cfg.ToolboxPaths {
		if _, err := toolboxes.LoadDir(reg, dir); err != nil {
			c.logger.Warn("toolbox dir partially loaded", zap.String("dir", dir), zap.Error(err))
		}
	}
	if err := generators.RegisterBuiltins(reg); err != nil {
		return nil, err
	}
	for _, dir := range c.cfg.GeneratorPaths {
		if err := generators.RegisterDir(reg, dir); err != nil {
			return nil, fmt.Errorf("generators %s: %w", dir, err)
		}
	}
	return reg, nil
}

// openSession connects to the configured endpoint, or starts a local
// session over the kernelspec catalog when none is set.
func (c *cli) openSession(ctx context.Context) (framework.SessionProvider, func(), error) {
	if c.cfg.Session.Endpoint != "" {
		rpc, err := session.DialRPCSession(ctx, c.cfg.Session.Network, c.cfg.Session.Endpoint, c.logger)
		if err != nil {
			return nil, nil, err
		}
		return rpc, func() { _ = rpc.Close() }, nil
	}
	local, err := c.localSession()
	if err != nil {
		return nil, nil, err
	}
	return local, local.Close, nil
}

func (c *cli) localSession() (*session.LocalSession, error) {
	specs, err := session.LoadKernelSpecs(c.cfg.KernelPaths...)
	if err != nil {
		return nil, err
	}
	return session.NewLocalSession(specs, c.logger.Named("session")), nil
}

func (c *cli) buildRuntime(cmd *cobra.Command) (*runtime, error) {
	reg, err := c.buildRegistry()
	if err != nil {
		return nil, err
	}
	sess, closeSession, err := c.openSession(cmd.Context())
	if err != nil {
		return nil, err
	}
	mgr := framework.NewManager(reg, sess,
		framework.WithLogger(c.logger.Named("manager")),
		framework.WithDefaultToolbox(c.cfg.DefaultToolbox),
		framework.WithDefaultLanguage(c.cfg.DefaultLanguage),
		framework.WithAllowedBlocks(c.allowList(cmd)),
	)
	return &runtime{
		registry: reg,
		session:  sess,
		manager:  mgr,
		mapper:   framework.NewDocumentMapper(reg, sess, c.logger.Named("documents")),
		closers:  []func(){closeSession, mgr.Close},
	}, nil
}

func (c *cli) openStore() (persistence.DocumentStore, error) {
	store, err := persistence.OpenDocumentStore(c.cfg.Store.Driver, c.cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}
	return store, nil
}

// warnAll prints non-fatal warnings to stderr.
func warnAll(cmd *cobra.Command, warnings ...error) {
	for _, w := range warnings {
		if w == nil {
			continue
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", w)
	}
}
