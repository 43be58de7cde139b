package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/3leaps/mqlforge/pkg/jobregistry"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect compile job records",
	Long: `Inspect the job registry written by the compile pipeline.

Every compile records a job.json with its state, dialect, timings and
outcome under jobs.dir. Job ids can be abbreviated to any unique prefix.`,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List compile jobs, newest first",
	RunE:  runJobsList,
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <job_id>",
	Short: "Show status for a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsStatus,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsStatusCmd)

	jobsListCmd.Flags().Bool("json", false, "Output as JSON")
	jobsListCmd.Flags().String("state", "", "Only show jobs in this state")
	jobsStatusCmd.Flags().String("output", "text", "Output format: text, json, or yaml")
}

func jobsStore(cmd *cobra.Command) (*jobregistry.Store, error) {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return nil, err
	}
	if !cfg.Jobs.Enabled {
		return nil, exitError(foundry.ExitInvalidArgument, "Job registry is disabled", fmt.Errorf("set jobs.enabled to true"))
	}
	return jobregistry.NewStore(cfg.Jobs.Dir), nil
}

func runJobsList(cmd *cobra.Command, _ []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	state, _ := cmd.Flags().GetString("state")

	store, err := jobsStore(cmd)
	if err != nil {
		return err
	}
	jobs, err := store.List()
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to list jobs", err)
	}
	if state != "" {
		filtered := jobs[:0]
		for _, j := range jobs {
			if strings.EqualFold(string(j.State), state) {
				filtered = append(filtered, j)
			}
		}
		jobs = filtered
	}
	return writeJobList(cmd.OutOrStdout(), jobs, jsonOutput)
}

func writeJobList(out io.Writer, jobs []jobregistry.JobRecord, jsonOutput bool) error {
	if len(jobs) == 0 {
		_, _ = fmt.Fprintln(out, "No jobs found")
		return nil
	}

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(jobs)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "JOB ID\tDIALECT\tSTATE\tSTARTED\tDURATION\tCOMPILED FILE")
	for _, j := range jobs {
		duration := "-"
		if j.DurationMS > 0 {
			duration = (time.Duration(j.DurationMS) * time.Millisecond).String()
		}
		compiled := j.CompiledFile
		if compiled == "" {
			compiled = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortJobID(j.JobID),
			j.Dialect,
			j.State,
			formatOptionalTime(j.StartedAt),
			duration,
			compiled,
		)
	}
	return nil
}

func runJobsStatus(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("output")

	store, err := jobsStore(cmd)
	if err != nil {
		return err
	}
	resolvedID, err := resolveJobID(store, args[0])
	if err != nil {
		return exitError(foundry.ExitFileNotFound, "Job not found", err)
	}
	rec, err := store.Get(resolvedID)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to read job", err)
	}
	if err := writeJobStatus(cmd.OutOrStdout(), rec, format); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to write job status", err)
	}
	return nil
}

func writeJobStatus(out io.Writer, rec *jobregistry.JobRecord, format string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(jobStatusYAML(rec)); err != nil {
			return err
		}
		return enc.Close()
	case "", "text":
	default:
		return fmt.Errorf("unknown output format %q (want text, json or yaml)", format)
	}

	_, _ = fmt.Fprintf(out, "job_id=%s\n", rec.JobID)
	_, _ = fmt.Fprintf(out, "dialect=%s\n", rec.Dialect)
	_, _ = fmt.Fprintf(out, "state=%s\n", rec.State)
	if rec.RequestID != "" {
		_, _ = fmt.Fprintf(out, "request_id=%s\n", rec.RequestID)
	}
	if rec.StartedAt != nil {
		_, _ = fmt.Fprintf(out, "started_at=%s\n", rec.StartedAt.UTC().Format(time.RFC3339))
	}
	if rec.EndedAt != nil {
		_, _ = fmt.Fprintf(out, "ended_at=%s\n", rec.EndedAt.UTC().Format(time.RFC3339))
	}
	if rec.DurationMS > 0 {
		_, _ = fmt.Fprintf(out, "duration_ms=%d\n", rec.DurationMS)
	}
	if rec.CompiledFile != "" {
		_, _ = fmt.Fprintf(out, "compiled_file=%s\n", rec.CompiledFile)
	}
	if rec.OutputPath != "" {
		_, _ = fmt.Fprintf(out, "output_path=%s\n", rec.OutputPath)
	}
	if rec.ErrorSummary != "" {
		_, _ = fmt.Fprintf(out, "error_summary=%s\n", rec.ErrorSummary)
	}
	return nil
}

// jobStatusYAML mirrors the JSON field names, which yaml.v3 would otherwise
// lowercase without underscores.
func jobStatusYAML(rec *jobregistry.JobRecord) map[string]any {
	m := map[string]any{
		"job_id":     rec.JobID,
		"dialect":    rec.Dialect,
		"state":      string(rec.State),
		"created_at": rec.CreatedAt.UTC().Format(time.RFC3339),
	}
	if rec.RequestID != "" {
		m["request_id"] = rec.RequestID
	}
	if rec.StartedAt != nil {
		m["started_at"] = rec.StartedAt.UTC().Format(time.RFC3339)
	}
	if rec.EndedAt != nil {
		m["ended_at"] = rec.EndedAt.UTC().Format(time.RFC3339)
	}
	if rec.DurationMS > 0 {
		m["duration_ms"] = rec.DurationMS
	}
	if rec.CompiledFile != "" {
		m["compiled_file"] = rec.CompiledFile
	}
	if rec.OutputPath != "" {
		m["output_path"] = rec.OutputPath
	}
	if rec.ErrorSummary != "" {
		m["error_summary"] = rec.ErrorSummary
	}
	return m
}

func shortJobID(jobID string) string {
	jobID = strings.TrimSpace(jobID)
	if len(jobID) <= 12 {
		return jobID
	}
	return jobID[:12]
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func resolveJobID(store *jobregistry.Store, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("job_id is required")
	}

	if _, err := store.Get(input); err == nil {
		return input, nil
	}

	// Prefix match, so the short ids printed by 'jobs list' work.
	jobs, err := store.List()
	if err != nil {
		return "", err
	}
	matches := make([]string, 0, 2)
	for _, j := range jobs {
		if strings.HasPrefix(j.JobID, input) {
			matches = append(matches, j.JobID)
		}
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("job not found: %s", input)
	}
	if len(matches) > 1 {
		return "", fmt.Errorf("job id prefix is ambiguous (%d matches); use the full job_id", len(matches))
	}
	return matches[0], nil
}
