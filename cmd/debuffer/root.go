package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags.
	verbose bool

	defPath     string
	verilogPath string
	lefPath     string
	buffPrefix  string
)

var rootCmd = &cobra.Command{
	Use:   "debuffer",
	Short: "Collapse buffer-only chains out of a placed DEF netlist",
	Long: `debuffer removes buffer cells (and the nets that exist only to connect
buffer inputs to buffer outputs) from a placed DEF netlist, using a
companion LEF file to resolve pin directions.

Examples:
  debuffer -d design.def -l cells.lef                 # default "FE" buffer prefix
  debuffer -d design.def -l cells.lef --buff=BUFX      # custom buffer prefix
  debuffer -d design.def -v design.v -l cells.lef      # Verilog accepted, unused`,
	Version: "0.1.0",
	RunE:    runDebuffer,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "verbose progress output")

	rootCmd.Flags().StringVarP(&defPath, "def", "d", "", "input DEF file (required)")
	rootCmd.Flags().StringVarP(&verilogPath, "verilog", "v", "", "input Verilog file (accepted, unused by the core)")
	rootCmd.Flags().StringVarP(&lefPath, "lef", "l", "", "input LEF file (required)")
	rootCmd.Flags().StringVar(&buffPrefix, "buff", "FE", "buffer instance-name prefix")

	rootCmd.MarkFlagRequired("def")
	rootCmd.MarkFlagRequired("lef")
}
