package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"vibesync.dev/syncorch/internal/controlplane"
)

var provisionCmd = &cobra.Command{
	Use:   "provision-agents <project> <agent-id>",
	Short: "best-effort notify the memory-store agent side channel of a project assignment",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		c := dial()
		defer c.Close()

		req := controlplane.NewMessage(controlplane.CmdProvisionAgents)
		req.Payload["project"] = args[0]
		req.Payload["agent_id"] = args[1]
		_, err := c.Send(context.Background(), req)
		dieOnErr(err)

		fmt.Printf("provisioned agent %s for project %s\n", args[1], args[0])
	},
}

func init() { rootCmd.AddCommand(provisionCmd) }
