package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/anamnesis"
	"github.com/aretw0/anamnesis/internal/cli"
	"github.com/aretw0/anamnesis/pkg/domain"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Browse completed sessions",
}

var recordsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List a user's completed sessions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		limit, _ := cmd.Flags().GetInt("limit")
		format, _ := cmd.Flags().GetString("format")

		app, err := cli.OpenStores(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		if limit <= 0 {
			limit = cfg.Records.HistoryLimit
		}
		if limit <= 0 {
			limit = anamnesis.DefaultHistoryLimit
		}

		records, err := app.Records.ListByUser(cmd.Context(), userID, limit)
		if err != nil {
			return fmt.Errorf("error listing records: %w", err)
		}
		return writeRecords(cmd.OutOrStdout(), records, format)
	},
}

func writeRecords(w io.Writer, records []domain.Record, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(records)
	case "text", "":
		if len(records) == 0 {
			fmt.Fprintln(w, "No records found.")
			return nil
		}
		for _, r := range records {
			fmt.Fprintf(w, "# %s  %s  (session %s)\n\n", r.CreatedAt.Format("2006-01-02 15:04"), r.ID, r.SessionID)
			fmt.Fprintln(w, r.Summary())
			fmt.Fprintln(w)
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q (supported: text, yaml, json)", format)
	}
}

func init() {
	rootCmd.AddCommand(recordsCmd)
	recordsCmd.AddCommand(recordsLsCmd)
	recordsLsCmd.Flags().StringP("user", "u", "", "User id whose records to list")
	recordsLsCmd.Flags().IntP("limit", "n", 0, "Maximum number of records (default records.history_limit)")
	recordsLsCmd.Flags().StringP("format", "o", "text", "Output format: text, yaml, json")
	_ = recordsLsCmd.MarkFlagRequired("user")
}
