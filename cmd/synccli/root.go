// Package main implements synccli, the operator-facing client for
// syncorchd's control plane (spec §6): "start/stop/restart scheduled
// sync, full sync now, reconcile, provision agents, get progress, list
// recent workflows, list failed, cancel by id". Exit codes: 0 success,
// 1 runtime unreachable, 2 not-found, 3 cancelled.
//
// Command registration (one subcommand per file, wired into rootCmd
// from its own init) follows the teacher's cli/root.go + cli/consumer.go
// idiom.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"vibesync.dev/syncorch/internal/controlplane"
)

// Exit codes (spec §6).
const (
	exitOK               = 0
	exitRuntimeUnreachable = 1
	exitNotFound         = 2
	exitCancelled        = 3
)

var addr string

var rootCmd = &cobra.Command{
	Use:   "synccli",
	Short: "operate the sync orchestrator daemon",
	Long: `synccli talks to a running syncorchd daemon over its
control-plane websocket to start/stop scheduled sync, trigger a full
sync or reconciliation pass, provision agents, and inspect or cancel
workflow runs.`,
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "ws://127.0.0.1:8088/v1/control", "syncorchd control-plane address")
	viper.BindPFlag("addr", rootCmd.PersistentFlags().Lookup("addr"))
	viper.SetEnvPrefix("SYNCCLI")
	viper.AutomaticEnv()
}

func initConfig() {
	if v := viper.GetString("addr"); v != "" {
		addr = v
	}
}

func dial() *controlplane.Client {
	c, err := controlplane.Dial(addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitRuntimeUnreachable)
	}
	return c
}

// dieOnErr maps a control-plane error to the appropriate spec §6 exit
// code: a "not found" message (the daemon's Progress/Cancel wording for
// an unknown workflow id) maps to exitNotFound, anything else to a
// generic failure.
func dieOnErr(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	if isNotFound(err) {
		os.Exit(exitNotFound)
	}
	os.Exit(1)
}

func isNotFound(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "no workflow") || strings.Contains(msg, "not found")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
