package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/edatools/debuffer/pkg/bufchain"
	"github.com/edatools/debuffer/pkg/defnet"
	"github.com/edatools/debuffer/pkg/lef"
	"github.com/edatools/debuffer/pkg/rewrite"
	"github.com/spf13/cobra"
)

func runDebuffer(cmd *cobra.Command, args []string) error {
	startTime := time.Now()

	if verilogPath != "" && verbose {
		fmt.Printf("Verilog input %s accepted but not consumed by the core algorithm\n", verilogPath)
	}

	design := strings.TrimSuffix(filepath.Base(defPath), ".def")
	outputDir := filepath.Join(".", fmt.Sprintf("%s_%s", startTime.Format("2006-01-02_15-04-05"), design))
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
	}

	logPath := filepath.Join(outputDir, fmt.Sprintf("debuffer_%s.log", startTime.Format("2006-01-02_15-04-05")))
	logFile, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("failed to create log file %s: %w", logPath, err)
	}
	defer logFile.Close()

	logger := log.New(io.MultiWriter(os.Stdout, logFile), "", log.LstdFlags)
	if !verbose {
		logger.SetOutput(logFile)
	}

	fmt.Printf("Reading LEF file %s...\n", lefPath)
	lib, err := lef.ParseFile(lefPath)
	if err != nil {
		return fmt.Errorf("failed to read LEF file: %w", err)
	}
	logger.Printf("loaded %d macros from %s", len(lib), lefPath)

	fmt.Printf("Parsing DEF file %s...\n", defPath)
	defFile, err := os.Open(defPath)
	if err != nil {
		return fmt.Errorf("failed to open DEF file: %w", err)
	}
	nl, err := defnet.Parse(defFile, logger)
	defFile.Close()
	if err != nil {
		return fmt.Errorf("failed to parse DEF file: %w", err)
	}
	logger.Printf("loaded %d instances, %d nets from %s", len(nl.Instances), len(nl.Nets), defPath)

	fmt.Println("Identifying buffered nets...")
	cls, err := bufchain.Classify(nl, lib, buffPrefix, logger)
	if err != nil {
		return fmt.Errorf("failed to classify buffered nets: %w", err)
	}

	fmt.Println("Tracing buffer chains...")
	chains, err := bufchain.Trace(nl, lib, cls, buffPrefix, logger)
	if err != nil {
		return fmt.Errorf("failed to trace buffer chains: %w", err)
	}
	logger.Printf("found %d chains", len(chains))

	outPath := filepath.Join(outputDir, fmt.Sprintf("%s_noBuffers.def", design))
	outFile, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to create output DEF file %s: %w", outPath, err)
	}
	defer outFile.Close()

	fmt.Println("Writing buffer-free DEF file...")
	src, err := os.Open(defPath)
	if err != nil {
		return fmt.Errorf("failed to reopen DEF file for rewriting: %w", err)
	}
	defer src.Close()

	stats, err := rewrite.Rewrite(src, outFile, nl, chains, buffPrefix, defPath, startTime, logger)
	if err != nil {
		return fmt.Errorf("failed to rewrite DEF file: %w", err)
	}

	elapsed := time.Since(startTime)
	printSummary(stats, len(chains), outPath, elapsed)
	logger.Printf("done in %s: %d buffers removed, %d nets removed, %d chains applied",
		elapsed.Round(time.Millisecond), stats.DeletedBuffers, stats.DeletedNets, stats.ChainsApplied)

	return nil
}

func printSummary(stats rewrite.Stats, chainCount int, outPath string, elapsed time.Duration) {
	fmt.Println()
	fmt.Println("Buffer removal complete.")
	fmt.Printf("  Chains found:        %d\n", chainCount)
	fmt.Printf("  Buffers removed:     %d\n", stats.DeletedBuffers)
	fmt.Printf("  Nets removed:        %d\n", stats.DeletedNets)
	fmt.Printf("  Elapsed:             %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("  Output:              %s\n", outPath)
}
