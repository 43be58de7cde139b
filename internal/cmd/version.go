package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		return writeVersion(cmd.OutOrStdout(), jsonOutput)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().Bool("json", false, "Output as JSON")
}

func writeVersion(out io.Writer, jsonOutput bool) error {
	deps := crucible.GetVersion()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]string{
			"version":    versionInfo.Version,
			"commit":     versionInfo.Commit,
			"build_date": versionInfo.BuildDate,
			"go_version": runtime.Version(),
			"gofulmen":   deps.Gofulmen,
			"crucible":   deps.Crucible,
		})
	}

	_, _ = fmt.Fprintf(out, "mqlforge %s\n", versionInfo.Version)
	_, _ = fmt.Fprintf(out, "  commit:     %s\n", versionInfo.Commit)
	_, _ = fmt.Fprintf(out, "  built:      %s\n", versionInfo.BuildDate)
	_, _ = fmt.Fprintf(out, "  go:         %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	_, _ = fmt.Fprintf(out, "  gofulmen:   %s\n", deps.Gofulmen)
	_, _ = fmt.Fprintf(out, "  crucible:   %s\n", deps.Crucible)
	return nil
}
