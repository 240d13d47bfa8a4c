package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"vibesync.dev/syncorch/internal/controlplane"
)

var (
	reconcileProject string
	reconcileAction  string
	reconcileDryRun  bool
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "sweep sync-state rows whose RepoLog counterpart has disappeared",
	Run: func(cmd *cobra.Command, args []string) {
		c := dial()
		defer c.Close()

		req := controlplane.NewMessage(controlplane.CmdReconcile)
		req.Payload["project"] = reconcileProject
		req.Payload["action"] = reconcileAction
		req.Payload["dry_run"] = reconcileDryRun

		resp, err := c.Send(context.Background(), req)
		dieOnErr(err)

		fmt.Printf("rows_scanned=%v stale=%v marked=%v deleted=%v\n",
			resp.Payload["rows_scanned"], resp.Payload["stale"], resp.Payload["marked"], resp.Payload["deleted"])
	},
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileProject, "project", "", "restrict to a single project (default: every project)")
	reconcileCmd.Flags().StringVar(&reconcileAction, "action", "mark_deleted", "mark_deleted or hard_delete")
	reconcileCmd.Flags().BoolVar(&reconcileDryRun, "dry-run", false, "report what would happen without writing")
	rootCmd.AddCommand(reconcileCmd)
}
