package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-dose-timer/internal/dosing"
	"github.com/tbourn/go-dose-timer/internal/services"
)

func newAddCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add <amount>",
		Short: "Record a dose taken now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[0])
			if err != nil {
				return err
			}
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			rec, err := svc.Add(cmd.Context(), amount)
			if err != nil {
				return err
			}
			e := svc.Describe(rec)
			if a.jsonOutput {
				return printJSON(cmd.OutOrStdout(), e)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s at %s (%s)\n", formatAmount(e.Amount), e.Display, shortID(e.ID))
			return nil
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the dose history, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return fmt.Errorf("--limit must be >= 0")
			}
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			entries := svc.List(cmd.Context(), limit)
			if a.jsonOutput {
				return printJSON(cmd.OutOrStdout(), entries)
			}
			printEntryTable(cmd.OutOrStdout(), entries, len(svc.Snapshot(cmd.Context())))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show at most n doses (0 = all)")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	var (
		at  string
		yes bool
	)
	cmd := &cobra.Command{
		Use:   "delete <id-prefix>... | --at <timestamp>",
		Short: "Delete doses by id prefix or by timestamp",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (at == "") == (len(args) == 0) {
				return errors.New("pass one or more id prefixes, or --at <timestamp>")
			}
			ctx := cmd.Context()
			svc, err := a.service(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if at != "" {
				if !yes {
					ok, err := a.confirm(cmd, fmt.Sprintf("Delete every dose at %s?", at))
					if err != nil || !ok {
						return declined(cmd, err)
					}
				}
				n, err := svc.DeleteAt(ctx, at)
				if errors.Is(err, services.ErrDoseNotFound) {
					return fmt.Errorf("no dose at %s", at)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Deleted %d dose(s) at %s\n", n, at)
				return nil
			}

			for _, prefix := range args {
				id, err := svc.Resolve(ctx, prefix)
				if err != nil {
					return fmt.Errorf("%s: %w", prefix, err)
				}
				rec, _ := dosing.Find(svc.Snapshot(ctx), id)
				e := svc.Describe(rec)
				if !yes {
					q := fmt.Sprintf("Delete %s taken %s?", formatAmount(e.Amount), e.Display)
					ok, err := a.confirm(cmd, q)
					if err != nil || !ok {
						return declined(cmd, err)
					}
				}
				if err := svc.Delete(ctx, id); err != nil {
					return fmt.Errorf("%s: %w", prefix, err)
				}
				fmt.Fprintf(out, "Deleted %s\n", shortID(id))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "delete every dose with this exact timestamp")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newClearCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every dose",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				if !a.interactive() {
					return errors.New("refusing to clear without --yes when stdin is not a terminal")
				}
				ok, err := a.confirm(cmd, "Delete all doses? This cannot be undone.")
				if err != nil || !ok {
					return declined(cmd, err)
				}
			}
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			n, err := svc.Clear(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d dose(s)\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the dose log as CSV",
		Long:  "Write the dose log as CSV to a file named doses-YYYY-MM-DD.csv, or to the file given with -o (\"-\" for stdout).",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := a.service(ctx)
			if err != nil {
				return err
			}
			name, body, err := svc.Export(ctx)
			if errors.Is(err, services.ErrNothingToExport) {
				fmt.Fprintln(cmd.ErrOrStderr(), "Nothing to export: the dose log is empty.")
				return nil
			}
			if err != nil {
				return err
			}
			if output == "-" {
				_, err := fmt.Fprint(cmd.OutOrStdout(), body)
				return err
			}
			if output == "" {
				output = name
			}
			if err := os.WriteFile(output, []byte(body), 0o644); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d dose(s) to %s\n", len(svc.Snapshot(ctx)), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default doses-<date>.csv)")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the dose log with an exported CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read import: %w", err)
			}
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.Import(cmd.Context(), string(raw))
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return printJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d dose(s)", res.Imported)
			if res.Skipped > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), ", skipped %d unreadable row(s)", res.Skipped)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the time since the last dose",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			st := svc.Status(cmd.Context())
			if a.jsonOutput {
				return printJSON(cmd.OutOrStdout(), st)
			}
			fmt.Fprintln(cmd.OutOrStdout(), statusLine(st))
			return nil
		},
	}
}

// declined reports an aborted confirmation. A refusal is not an error.
func declined(cmd *cobra.Command, err error) error {
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "Aborted.")
	return nil
}
