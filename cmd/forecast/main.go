/*
main.go - Batch forecasting CLI

PURPOSE:
  Runs the forecasting pipeline against a directory of CSV exports
  without an HTTP server in the loop. Useful for scheduled batch jobs
  and for validating a data drop before uploading it.

COMMANDS:
  forecast run       Run a batch and write the JSON report
  forecast validate  Load and validate a data directory, listing issues

EXAMPLES:
  # Full run, report to stdout
  forecast run --data-dir ./export

  # Deterministic run without LLM calls, report to a file
  forecast run --data-dir ./export --no-llm --output report.json

  # Check a data drop
  forecast validate --data-dir ./export

SEE ALSO:
  - pipeline/orchestrator.go: Batch execution
  - dataset/csv.go: The expected CSV layout
*/
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/supply-engine/dataset"
	"github.com/warp/supply-engine/gemini"
	"github.com/warp/supply-engine/pipeline"
	"github.com/warp/supply-engine/supply"
)

var (
	dataDir    string
	configPath string
	refDateStr string
	outputPath string
	noLLM      bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "forecast",
		Short:        "Clinical supply forecasting batch runner",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "directory with the six CSV tables (required)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	rootCmd.MarkPersistentFlagRequired("data-dir")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a forecasting batch and write the JSON report",
		RunE:  runBatch,
	}
	runCmd.Flags().StringVar(&refDateStr, "reference-date", "", "reference date YYYY-MM-DD (default: today)")
	runCmd.Flags().StringVarP(&outputPath, "output", "o", "-", "report destination, - for stdout")
	runCmd.Flags().BoolVar(&noLLM, "no-llm", false, "skip justification calls")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Load a data directory and report structural or per-site issues",
		RunE:  validateData,
	}

	rootCmd.AddCommand(runCmd, validateCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (supply.Config, error) {
	cfg := supply.Default()
	if configPath != "" {
		if err := cfg.LoadFile(configPath); err != nil {
			return cfg, err
		}
	}
	cfg.ApplyEnv()
	return cfg, cfg.Validate()
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	referenceDate := time.Now().UTC().Truncate(24 * time.Hour)
	if refDateStr != "" {
		referenceDate, err = time.Parse("2006-01-02", refDateStr)
		if err != nil {
			return fmt.Errorf("invalid --reference-date: %w", err)
		}
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ds, err := dataset.LoadDir(dataDir)
	if err != nil {
		return err
	}

	var justifier pipeline.Justifier
	if !noLLM && len(cfg.APIKeys) > 0 {
		pool := gemini.NewCredentialPool(cfg.APIKeys)
		justifier = gemini.New(cfg, pool, logger.Named("gemini"))
	}

	orch := pipeline.New(cfg, justifier, logger.Named("pipeline"))
	report, err := orch.Run(cmd.Context(), ds, referenceDate)
	if err != nil {
		return err
	}

	out := os.Stdout
	if outputPath != "" && outputPath != "-" {
		f, err := os.Create(outputPath)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func validateData(cmd *cobra.Command, args []string) error {
	ds, err := dataset.LoadDir(dataDir)
	if err != nil {
		return err
	}

	fmt.Printf("sites: %d\n", len(ds.Sites))
	for _, site := range ds.Sites {
		fmt.Printf("  %s: %d enrollment, %d dispense, %d inventory, %d shipments, %d waste\n",
			site.ID,
			len(ds.Enrollment[site.ID]), len(ds.Dispense[site.ID]),
			len(ds.Inventory[site.ID]), len(ds.Shipments[site.ID]),
			len(ds.Waste[site.ID]))
	}

	if len(ds.Issues) == 0 {
		fmt.Println("no data-quality issues")
		return nil
	}
	fmt.Printf("%d site(s) with data-quality issues:\n", len(ds.Issues))
	for _, site := range ds.Sites {
		if issue := ds.Issues[site.ID]; issue != nil {
			fmt.Printf("  %s\n", issue.Error())
		}
	}
	return nil
}
