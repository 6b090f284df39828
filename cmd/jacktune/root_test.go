package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandsRegistered(t *testing.T) {
	want := []string{"activate", "deactivate", "status", "monitor", "daemon", "version"}
	registered := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		registered[cmd.Name()] = true
	}
	for _, name := range want {
		assert.True(t, registered[name], "command %q not registered", name)
	}
}

func TestDaemonSubcommands(t *testing.T) {
	var daemon = daemonCmd
	require.NotNil(t, daemon)

	want := []string{"start", "stop", "restart", "status"}
	registered := make(map[string]bool)
	for _, cmd := range daemon.Commands() {
		registered[cmd.Name()] = true
	}
	for _, name := range want {
		assert.True(t, registered[name], "daemon subcommand %q not registered", name)
	}
}

func TestStatusFlags(t *testing.T) {
	assert.NotNil(t, statusCmd.Flags().Lookup("detailed"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("json"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("verbose"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("quiet"))
}
