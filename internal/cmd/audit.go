package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/veildata/veil/internal/audit"
	"github.com/veildata/veil/internal/config"
)

var (
	auditStatus    string
	auditFrom      string
	auditTo        string
	auditLimit     int
	auditVerifyAll bool
	auditFormat    string
	auditOutput    string
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query, verify, and export the signed job trail",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded jobs",
	RunE:  auditList,
}

var auditShowCmd = &cobra.Command{
	Use:   "show JOB_ID",
	Short: "Show one job, unsealing its detail when a seal key is configured",
	Args:  cobra.ExactArgs(1),
	RunE:  auditShow,
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify [JOB_ID]",
	Short: "Verify HMAC signatures of job records",
	Args:  cobra.MaximumNArgs(1),
	RunE:  auditVerify,
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export job summaries as CSV or JSON",
	RunE:  auditExport,
}

func init() {
	auditListCmd.Flags().StringVar(&auditStatus, "status", "", "Filter by status: success, partial, failed")
	auditListCmd.Flags().StringVar(&auditFrom, "from", "", "Start date (YYYY-MM-DD)")
	auditListCmd.Flags().StringVar(&auditTo, "to", "", "End date (YYYY-MM-DD)")
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 20, "Maximum jobs to show")

	auditVerifyCmd.Flags().BoolVar(&auditVerifyAll, "all", false, "Verify every stored job")

	auditExportCmd.Flags().StringVar(&auditStatus, "status", "", "Filter by status: success, partial, failed")
	auditExportCmd.Flags().StringVar(&auditFrom, "from", "", "Start date (YYYY-MM-DD)")
	auditExportCmd.Flags().StringVar(&auditTo, "to", "", "End date (YYYY-MM-DD)")
	auditExportCmd.Flags().StringVar(&auditFormat, "format", "csv", "Export format: csv or json")
	auditExportCmd.Flags().StringVarP(&auditOutput, "output", "o", "", "Write to file instead of stdout")

	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditShowCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditExportCmd)
	rootCmd.AddCommand(auditCmd)
}

// openConfiguredStore loads config and opens the audit store for CLI
// queries.
func openConfiguredStore() (*audit.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return openAuditStore(cfg)
}

// auditFilter builds the list filter from the shared flags. Dates parse as
// UTC days; --to is inclusive of the named day.
func auditFilter(limit int) (audit.ListFilter, error) {
	f := audit.ListFilter{Status: auditStatus, Limit: limit}
	if auditFrom != "" {
		from, err := time.ParseInLocation("2006-01-02", auditFrom, time.UTC)
		if err != nil {
			return f, fmt.Errorf("invalid --from: %w", err)
		}
		f.From = from
	}
	if auditTo != "" {
		to, err := time.ParseInLocation("2006-01-02", auditTo, time.UTC)
		if err != nil {
			return f, fmt.Errorf("invalid --to: %w", err)
		}
		f.To = to.Add(24 * time.Hour)
	}
	return f, nil
}

func auditList(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	filter, err := auditFilter(auditLimit)
	if err != nil {
		return err
	}

	store, err := openConfiguredStore()
	if err != nil {
		return fmt.Errorf("initializing audit store: %w", err)
	}
	defer store.Close()

	jobs, err := store.List(ctx, filter)
	if err != nil {
		return fmt.Errorf("querying jobs: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No jobs recorded.")
		return nil
	}
	renderAuditList(cmd.OutOrStdout(), jobs)
	return nil
}

// renderAuditList writes job summary lines to w (testable).
func renderAuditList(w io.Writer, jobs []audit.Summary) {
	fmt.Fprintf(w, "Jobs (showing %d):\n\n", len(jobs))
	for i := range jobs {
		job := &jobs[i]
		mark := "✓"
		switch job.Status {
		case "partial":
			mark = "⚠"
		case "failed":
			mark = "✗"
		}
		fmt.Fprintf(w, "  %s %s | %s | %-7s | %s | %d records, %d redactions | %dms\n",
			mark,
			job.ID,
			job.CreatedAt.Format("2006-01-02 15:04:05"),
			job.Status,
			job.Strategy,
			job.Records,
			job.Redactions,
			job.DurationMS,
		)
	}
}

func auditShow(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	store, err := openConfiguredStore()
	if err != nil {
		return fmt.Errorf("initializing audit store: %w", err)
	}
	defer store.Close()

	job, err := store.Get(ctx, args[0])
	if err != nil {
		return fmt.Errorf("fetching job: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(job)
}

func auditVerify(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	if auditVerifyAll == (len(args) == 1) {
		return fmt.Errorf("pass either a job id or --all")
	}

	store, err := openConfiguredStore()
	if err != nil {
		return fmt.Errorf("initializing audit store: %w", err)
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	if !auditVerifyAll {
		valid, err := store.Verify(ctx, args[0])
		if err != nil {
			return fmt.Errorf("verifying job: %w", err)
		}
		renderVerifyResult(out, args[0], valid)
		if !valid {
			return fmt.Errorf("signature verification failed for %s", args[0])
		}
		return nil
	}

	results, err := store.VerifyAll(ctx)
	if err != nil {
		return fmt.Errorf("verifying jobs: %w", err)
	}
	invalid := 0
	for _, r := range results {
		renderVerifyResult(out, r.ID, r.Valid)
		if !r.Valid {
			invalid++
		}
	}
	fmt.Fprintf(out, "\n%d jobs checked, %d invalid\n", len(results), invalid)
	if invalid > 0 {
		return fmt.Errorf("%d of %d signatures invalid", invalid, len(results))
	}
	return nil
}

// renderVerifyResult writes one verify outcome to w (testable).
func renderVerifyResult(w io.Writer, jobID string, valid bool) {
	if valid {
		fmt.Fprintf(w, "✓ %s: signature VALID (HMAC-SHA256 intact)\n", jobID)
	} else {
		fmt.Fprintf(w, "✗ %s: signature INVALID (possible tampering)\n", jobID)
	}
}

func auditExport(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	if auditFormat != "csv" && auditFormat != "json" {
		return fmt.Errorf("unsupported format %q: use csv or json", auditFormat)
	}

	filter, err := auditFilter(0)
	if err != nil {
		return err
	}

	store, err := openConfiguredStore()
	if err != nil {
		return fmt.Errorf("initializing audit store: %w", err)
	}
	defer store.Close()

	jobs, err := store.List(ctx, filter)
	if err != nil {
		return fmt.Errorf("querying jobs: %w", err)
	}

	out := cmd.OutOrStdout()
	if auditOutput != "" {
		f, err := os.Create(auditOutput)
		if err != nil {
			return fmt.Errorf("creating %s: %w", auditOutput, err)
		}
		defer f.Close()
		out = f
	}

	if auditFormat == "json" {
		err = audit.ExportJSON(out, jobs)
	} else {
		err = audit.ExportCSV(out, jobs)
	}
	if err != nil {
		return fmt.Errorf("exporting jobs: %w", err)
	}
	if auditOutput != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d jobs to %s\n", len(jobs), auditOutput)
	}
	return nil
}
