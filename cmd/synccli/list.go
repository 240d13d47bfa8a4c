package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"vibesync.dev/syncorch/internal/controlplane"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "list recent or failed workflow runs",
}

var listRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "list every workflow the daemon still tracks",
	Run: func(cmd *cobra.Command, args []string) {
		runList(controlplane.CmdListRecent)
	},
}

var listFailedCmd = &cobra.Command{
	Use:   "failed",
	Short: "list only failed workflow runs",
	Run: func(cmd *cobra.Command, args []string) {
		runList(controlplane.CmdListFailed)
	},
}

func runList(cmdType controlplane.MessageType) {
	c := dial()
	defer c.Close()

	resp, err := c.Send(context.Background(), controlplane.NewMessage(cmdType))
	dieOnErr(err)

	workflows, _ := resp.Payload["workflows"].([]interface{})
	if len(workflows) == 0 {
		fmt.Println("(none)")
		return
	}
	for _, w := range workflows {
		entry, ok := w.(map[string]interface{})
		if !ok {
			continue
		}
		if errMsg, ok := entry["error"]; ok {
			fmt.Printf("%s\t%s\t%v\n", entry["workflow_id"], entry["status"], errMsg)
		} else {
			fmt.Printf("%s\t%s\n", entry["workflow_id"], entry["status"])
		}
	}
}

func init() {
	listCmd.AddCommand(listRecentCmd, listFailedCmd)
	rootCmd.AddCommand(listCmd)
}
