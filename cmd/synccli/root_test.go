package main

import "testing"

func TestRootCommandRegistersEveryOperationalSubcommand(t *testing.T) {
	want := []string{
		"sync-now",
		"reconcile",
		"scheduled",
		"progress <workflow-id>",
		"cancel <workflow-id>",
		"list",
		"provision-agents <project> <agent-id>",
	}

	got := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		got[c.Use] = true
	}

	for _, use := range want {
		if !got[use] {
			t.Errorf("missing subcommand %q", use)
		}
	}
}

func TestScheduledCommandHasStartStopRestart(t *testing.T) {
	want := map[string]bool{"start": false, "stop": false, "restart": false}
	for _, c := range scheduledCmd.Commands() {
		if _, ok := want[c.Use]; ok {
			want[c.Use] = true
		}
	}
	for use, found := range want {
		if !found {
			t.Errorf("scheduled subcommand %q not registered", use)
		}
	}
}

func TestListCommandHasRecentAndFailed(t *testing.T) {
	want := map[string]bool{"recent": false, "failed": false}
	for _, c := range listCmd.Commands() {
		if _, ok := want[c.Use]; ok {
			want[c.Use] = true
		}
	}
	for use, found := range want {
		if !found {
			t.Errorf("list subcommand %q not registered", use)
		}
	}
}

func TestIsNotFoundMatchesDaemonWordings(t *testing.T) {
	cases := map[string]bool{
		"syncorchd: no workflow \"x\"": true,
		"widget not found":             true,
		"runtime busy":                 false,
	}
	for msg, want := range cases {
		if got := isNotFound(errString(msg)); got != want {
			t.Errorf("isNotFound(%q) = %v, want %v", msg, got, want)
		}
	}
}

type errString string

func (e errString) Error() string { return string(e) }
