package main

import (
	"context"

	"github.com/spf13/cobra"

	"vibesync.dev/syncorch/internal/controlplane"
)

var scheduledCmd = &cobra.Command{
	Use:   "scheduled",
	Short: "start, stop, or restart the recurring orchestrator sweep",
}

var scheduledStartCmd = &cobra.Command{
	Use:   "start",
	Short: "start the recurring orchestrator sweep",
	Run: func(cmd *cobra.Command, args []string) {
		c := dial()
		defer c.Close()
		_, err := c.Send(context.Background(), controlplane.NewMessage(controlplane.CmdStartScheduled))
		dieOnErr(err)
	},
}

var scheduledStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "stop the recurring orchestrator sweep",
	Run: func(cmd *cobra.Command, args []string) {
		c := dial()
		defer c.Close()
		_, err := c.Send(context.Background(), controlplane.NewMessage(controlplane.CmdStopScheduled))
		dieOnErr(err)
	},
}

var scheduledRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "stop then start the recurring orchestrator sweep",
	Run: func(cmd *cobra.Command, args []string) {
		c := dial()
		defer c.Close()

		_, err := c.Send(context.Background(), controlplane.NewMessage(controlplane.CmdStopScheduled))
		dieOnErr(err)
		_, err = c.Send(context.Background(), controlplane.NewMessage(controlplane.CmdStartScheduled))
		dieOnErr(err)
	},
}

func init() {
	scheduledCmd.AddCommand(scheduledStartCmd, scheduledStopCmd, scheduledRestartCmd)
	rootCmd.AddCommand(scheduledCmd)
}
