package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/olta-dev/olta/internal/errors"
	"github.com/olta-dev/olta/pkg/lobby"
	"github.com/olta-dev/olta/pkg/store"
)

func inspectCmd() *cobra.Command {
	var (
		raw    bool
		driver string
		dsn    string
	)

	cmd := &cobra.Command{
		Use:   "inspect <process-id>",
		Short: "Print the stored state of a process",
		Long: `Load the latest persisted snapshot of a process from the configured
store and print a summary of its collections and documents.

The snapshot read is the one in the store, which may trail the live
state of a running server by the persistence queue's backlog.

Examples:
  olta inspect lobby-1
  olta inspect lobby-1 --json
  olta inspect lobby-1 --store=postgres --dsn=postgres://localhost/olta`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("store") {
				cfg.Store.Driver = driver
			}
			if cmd.Flags().Changed("dsn") {
				cfg.Store.DSN = dsn
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			sc := cfg.StoreConfig()
			sc.Migrate = false
			st, err := store.Open(cmd.Context(), sc)
			if err != nil {
				return errors.New("E120").Wrap(err)
			}
			defer st.Close()

			return inspect(cmd, st, args[0], raw)
		},
	}

	cmd.Flags().BoolVar(&raw, "json", false, "Print the raw snapshot JSON")
	cmd.Flags().StringVar(&driver, "store", "", "Store driver: memory, sqlite, postgres, s3")
	cmd.Flags().StringVar(&dsn, "dsn", "", "Store DSN (database file or URL)")

	return cmd
}

func inspect(cmd *cobra.Command, st store.Store, processID string, raw bool) error {
	data, err := st.Load(cmd.Context(), processID)
	if err != nil {
		return errors.New("E120").Wrap(err)
	}
	if data == nil {
		return errors.New("E160").WithDetail(processID)
	}

	out := cmd.OutOrStdout()
	if raw {
		var buf bytes.Buffer
		if err := json.Indent(&buf, data, "", "  "); err != nil {
			return errors.New("E161").WithDetail(processID).Wrap(err)
		}
		buf.WriteByte('\n')
		_, err := buf.WriteTo(out)
		return err
	}

	l, err := lobby.Unmarshal(data)
	if err != nil {
		return errors.New("E161").WithDetail(processID).Wrap(err)
	}
	return printSummary(out, l)
}

// printSummary writes one line per document, grouped by collection.
func printSummary(w io.Writer, l *lobby.Lobby) error {
	heading := color.New(color.Bold).SprintFunc()
	dim := color.New(color.FgHiBlack).SprintFunc()

	state := color.GreenString("saved")
	if l.Hot {
		state = color.YellowString("hot")
	}
	fmt.Fprintf(w, "%s %s (%s)\n", heading("Process"), l.ProcessID, state)

	names := l.Collections.Names()
	if len(names) == 0 {
		fmt.Fprintln(w, dim("  no collections"))
		return nil
	}

	total := 0
	for _, name := range names {
		c := l.Collections[name]
		fmt.Fprintf(w, "\n%s %s\n", heading(name), dim(fmt.Sprintf("(%d)", len(c))))
		for _, id := range c.IDs() {
			doc := c[id]
			fields, err := json.Marshal(doc.Payload)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "  %-6s %-9s %s %s\n", id, doc.Kind(), fields, dim("by "+doc.Creator))
			total++
		}
	}
	fmt.Fprintf(w, "\n%d documents in %d collections\n", total, len(names))
	return nil
}
