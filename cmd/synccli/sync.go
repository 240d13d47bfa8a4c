package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"vibesync.dev/syncorch/internal/controlplane"
)

var syncNowCmd = &cobra.Command{
	Use:   "sync-now",
	Short: "trigger a full sync across every project immediately",
	Run: func(cmd *cobra.Command, args []string) {
		c := dial()
		defer c.Close()

		resp, err := c.Send(context.Background(), controlplane.NewMessage(controlplane.CmdFullSyncNow))
		dieOnErr(err)

		id, _ := resp.Payload["workflow_id"].(string)
		fmt.Printf("started workflow %s\n", id)
	},
}

func init() { rootCmd.AddCommand(syncNowCmd) }
