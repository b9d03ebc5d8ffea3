package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lexcodex/blockkernel/framework"
	"github.com/lexcodex/blockkernel/persistence"
)

func newDocCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doc",
		Short: "Read, migrate and store block documents",
	}
	cmd.AddCommand(
		newDocInspectCmd(c),
		newDocMigrateCmd(c),
		newDocGenerateCmd(c),
		newDocSaveCmd(c),
		newDocListCmd(c),
		newDocGetCmd(c),
		newDocDeleteCmd(c),
	)
	return cmd
}

func readDocument(path string) ([]byte, error) {
	if path == "-" {
		return nil, errors.New("stdin documents are not supported; pass a file path")
	}
	return os.ReadFile(path)
}

func writeOutput(cmd *cobra.Command, out string, data []byte) error {
	if out == "" {
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	return os.WriteFile(out, append(data, '\n'), 0o644)
}

func newDocInspectCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file>",
		Short: "Report a document's format and metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readDocument(args[0])
			if err != nil {
				return err
			}
			rt, err := c.buildRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()
			res, err := rt.mapper.Load(data)
			if err != nil {
				return err
			}
			format := fmt.Sprintf("v%d", framework.DocumentFormat)
			if res.Legacy {
				format = "legacy"
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "format: %s\n", format)
			fmt.Fprintf(out, "toolbox: %s\n", orDash(res.Toolbox))
			fmt.Fprintf(out, "kernel: %s\n", orDash(res.Kernel))
			for _, w := range res.Warnings {
				fmt.Fprintf(out, "warning: %v\n", w)
			}
			return nil
		},
	}
}

func newDocMigrateCmd(c *cli) *cobra.Command {
	var out, toolbox, kernel string
	cmd := &cobra.Command{
		Use:   "migrate <file>",
		Short: "Rewrite a document in the current format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readDocument(args[0])
			if err != nil {
				return err
			}
			rt, err := c.buildRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()
			res, err := rt.mapper.Load(data)
			if err != nil {
				return err
			}
			warnAll(cmd, res.Warnings...)
			state := framework.ManagerState{Toolbox: res.Toolbox, Kernel: framework.KernelIdentity{Name: res.Kernel}}
			if state.Toolbox == "" {
				state.Toolbox = c.cfg.DefaultToolbox
			}
			if toolbox != "" {
				state.Toolbox = toolbox
			}
			if kernel != "" {
				state.Kernel.Name = kernel
			}
			migrated, err := rt.mapper.Save(res.Workspace, state)
			if err != nil {
				return err
			}
			return writeOutput(cmd, out, migrated)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "Write to file instead of stdout")
	cmd.Flags().StringVar(&toolbox, "toolbox", "", "Toolbox name to record")
	cmd.Flags().StringVar(&kernel, "kernel", "", "Kernel name to record")
	return cmd
}

func newDocGenerateCmd(c *cli) *cobra.Command {
	var language string
	cmd := &cobra.Command{
		Use:   "generate <file>",
		Short: "Generate code from a document's workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readDocument(args[0])
			if err != nil {
				return err
			}
			rt, err := c.buildRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()
			res, err := rt.mapper.Load(data)
			if err != nil {
				return err
			}
			warnAll(cmd, res.Warnings...)
			lang := language
			if lang == "" && res.Kernel != "" {
				lang = rt.session.KernelSpecs()[res.Kernel].Language
			}
			if lang == "" {
				lang = c.cfg.DefaultLanguage
			}
			gen, ok := rt.registry.Generator(lang)
			if !ok {
				return fmt.Errorf("no generator for language %q", lang)
			}
			code, err := gen.WorkspaceToCode(res.Workspace)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), code)
			if !strings.HasSuffix(code, "\n") {
				fmt.Fprintln(cmd.OutOrStdout())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&language, "language", "", "Generator language (defaults to the document kernel's)")
	return cmd
}

func newDocSaveCmd(c *cli) *cobra.Command {
	var name, id string
	cmd := &cobra.Command{
		Use:   "save <file>",
		Short: "Store a document in the document store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readDocument(args[0])
			if err != nil {
				return err
			}
			rt, err := c.buildRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()
			if _, err := rt.mapper.Load(data); err != nil {
				return err
			}
			store, err := c.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			if name == "" {
				name = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}
			doc := persistence.NewStoredDocument(name, data)
			doc.ID = id
			if err := store.Save(cmd.Context(), doc); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), doc.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Document name (defaults to the file name)")
	cmd.Flags().StringVar(&id, "id", "", "Overwrite the stored document with this id")
	return cmd
}

func newDocListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			docs, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No documents stored.")
				return nil
			}
			for _, doc := range docs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\t%s\n",
					doc.ID, doc.Name, orDash(doc.Toolbox), orDash(doc.Kernel), doc.UpdatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newDocGetCmd(c *cli) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Print a stored document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			doc, ok, err := store.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("document %s not found", args[0])
			}
			return writeOutput(cmd, out, doc.Content)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "Write to file instead of stdout")
	return cmd
}

func newDocDeleteCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a stored document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			return store.Delete(cmd.Context(), args[0])
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
