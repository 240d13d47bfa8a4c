package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"vibesync.dev/syncorch/internal/controlplane"
)

var progressCmd = &cobra.Command{
	Use:   "progress <workflow-id>",
	Short: "report a running or completed workflow's progress",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c := dial()
		defer c.Close()

		req := controlplane.NewMessage(controlplane.CmdProgress)
		req.Payload["workflow_id"] = args[0]
		resp, err := c.Send(context.Background(), req)
		dieOnErr(err)

		for k, v := range resp.Payload {
			fmt.Printf("%s: %v\n", k, v)
		}
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <workflow-id>",
	Short: "signal a running workflow to cancel at its next checkpoint",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c := dial()
		defer c.Close()

		req := controlplane.NewMessage(controlplane.CmdCancel)
		req.Payload["workflow_id"] = args[0]
		_, err := c.Send(context.Background(), req)
		dieOnErr(err)

		fmt.Printf("cancel signalled for %s\n", args[0])
		os.Exit(exitCancelled)
	},
}

func init() {
	rootCmd.AddCommand(progressCmd)
	rootCmd.AddCommand(cancelCmd)
}
