package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lai-labs/spyglass/internal/learning"
	"github.com/lai-labs/spyglass/internal/types"
)

var certifyResultPath string

var certifyCmd = &cobra.Command{
	Use:   "certify <build_id>",
	Short: "Certify a build from a result file",
	Long: `Score a build result and store its trust certificate. The result file
is the same JSON shape the /api/builds/complete hook accepts. Intended
for CI pipelines that prefer a binary over an HTTP call.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		buildID := args[0]

		data, err := os.ReadFile(certifyResultPath)
		if err != nil {
			return fmt.Errorf("failed to read result file: %w", err)
		}
		var result types.BuildResult
		if err := json.Unmarshal(data, &result); err != nil {
			return fmt.Errorf("failed to parse result file %s: %w", certifyResultPath, err)
		}
		if result.Module == "" {
			return fmt.Errorf("result file %s is missing module", certifyResultPath)
		}

		cert, err := learning.NewCertifier(store).Certify(cmd.Context(), buildID, &result)
		if err != nil {
			return err
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("\n%s %s %s\n", cyan("Certified"), cert.Module, cert.Version)
		fmt.Printf("  trust score  %.1f / 100\n", cert.TrustScore)
		fmt.Printf("  tests        %d/%d\n", cert.TestsPassed, cert.TestsTotal)
		fmt.Printf("  gates        %d/%d\n", cert.GatesPassed, cert.GatesTotal)
		fmt.Printf("  security     %.0f\n", cert.SecurityScore)
		fmt.Printf("  performance  %.0f\n", cert.PerformanceScore)
		fmt.Println()
		return nil
	},
}

func init() {
	certifyCmd.Flags().StringVarP(&certifyResultPath, "result", "r", "build-result.json", "path to the build result JSON")
	rootCmd.AddCommand(certifyCmd)
}
