package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query chain status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return roundTrip("status", 3*time.Second)
	},
}

var reinitCmd = &cobra.Command{
	Use:   "reinit",
	Short: "Re-run chain discovery",
	RunE: func(cmd *cobra.Command, args []string) error {
		return roundTrip("reinit", 10*time.Second)
	},
}

var emergencyCmd = &cobra.Command{
	Use:   "emergency",
	Short: "Emergency shutdown of the whole chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.close()
		// No terminal token follows an emergency; fire and report.
		if err := c.send("emergency"); err != nil {
			return err
		}
		fmt.Println("emergency shutdown sent")
		return nil
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Execute the programmed run",
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout, _ := cmd.Flags().GetDuration("timeout")
		return roundTrip("start", timeout)
	},
}

var (
	progDevice   int
	progGroup    int
	progTotal    int
	progCurrent  int
	progExposure int
)

var programCmd = &cobra.Command{
	Use:   "program",
	Short: "Program one device's group assignment",
	RunE: func(cmd *cobra.Command, args []string) error {
		line := fmt.Sprintf("%03d,program,{%d,%d,%d,%d}",
			progDevice, progGroup, progTotal, progCurrent, progExposure)
		return roundTrip(line, 5*time.Second)
	},
}

var (
	frameCount int
	frameGap   int
)

var frameCmd = &cobra.Command{
	Use:   "frame",
	Short: "Set frame count and interframe delay",
	RunE: func(cmd *cobra.Command, args []string) error {
		return roundTrip(fmt.Sprintf("frame,%d,%d", frameCount, frameGap), 3*time.Second)
	},
}

var (
	servoDevice int
	servoAngle  int
)

var servoCmd = &cobra.Command{
	Use:   "servo",
	Short: "Position a servo (device 0 = all)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return roundTrip(fmt.Sprintf("%03d,servo,%d", servoDevice, servoAngle), 5*time.Second)
	},
}

func init() {
	startCmd.Flags().Duration("timeout", 10*time.Minute, "how long to wait for PROGRAM_ACK")

	programCmd.Flags().IntVar(&progDevice, "device", 1, "target device id")
	programCmd.Flags().IntVar(&progGroup, "group", 1, "group id")
	programCmd.Flags().IntVar(&progTotal, "group-total", 1, "total number of groups")
	programCmd.Flags().IntVar(&progCurrent, "current", 0, "target current (mA)")
	programCmd.Flags().IntVar(&progExposure, "exposure", 10, "exposure window (ms)")

	frameCmd.Flags().IntVar(&frameCount, "count", 1, "frame count")
	frameCmd.Flags().IntVar(&frameGap, "gap", 5, "interframe delay (ms)")

	servoCmd.Flags().IntVar(&servoDevice, "device", 0, "target device id (0 = broadcast)")
	servoCmd.Flags().IntVar(&servoAngle, "angle", 90, "angle in degrees (60-120)")

	rootCmd.AddCommand(statusCmd, reinitCmd, emergencyCmd, startCmd,
		programCmd, frameCmd, servoCmd)
}
