package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	device  string
	baud    int
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "solarctl",
	Short: "SOLAR Controller chain utility",
	Long: `Command-line host for a SOLAR Controller LED chain: programs group
assignments, configures frames, starts runs, and monitors traffic.

Examples:
  solarctl status                                        # Query the master
  solarctl program --device 1 --group 1 --group-total 2 \
      --current 1300 --exposure 30                       # Program device 1
  solarctl frame --count 5 --gap 50                      # 5 frames, 50 ms gaps
  solarctl start                                         # Execute the run
  solarctl monitor --listen :8883                        # Websocket bridge`,
	Version: "3.1.0",
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&device, "port", "p", "/dev/ttyACM0", "serial device of the master node")
	rootCmd.PersistentFlags().IntVarP(&baud, "baud", "b", 115200, "baud rate")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "echo every serial line")
}
