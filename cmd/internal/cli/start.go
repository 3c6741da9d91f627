// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package cli

import (
	"github.com/apptainer/modlauncher/pkg/cmdline"
	"github.com/spf13/cobra"
)

func init() {
	addCmdInit(func(cmdManager *cmdline.CommandManager) {
		cmdManager.RegisterCmd(startCmd, nil)
		cmdManager.RegisterFlagForCmd(&commandAddressFlag, startCmd)
		cmdManager.RegisterFlagForCmd(&commandPortFlag, startCmd)
		cmdManager.RegisterFlagForCmd(&commandSecretFlag, startCmd)
		cmdManager.RegisterFlagForCmd(&uninstallBundlesFlag, startCmd)
	})
}

var commandAddress string

var commandAddressFlag = cmdline.Flag{
	ID:           "commandAddressFlag",
	Value:        &commandAddress,
	DefaultValue: "",
	Name:         "command-address",
	Usage:        "host address to bind the UDP command channel on; the channel is bound when any of --command-address, --command-port or --command-secret is set",
	EnvKeys:      []string{"MODLAUNCHER_COMMAND_ADDRESS"},
}

var commandPort int

var commandPortFlag = cmdline.Flag{
	ID:           "commandPortFlag",
	Value:        &commandPort,
	DefaultValue: 0,
	Name:         "command-port",
	Usage:        "UDP port to bind the command channel on (0 auto-assigns)",
	EnvKeys:      []string{"MODLAUNCHER_COMMAND_PORT"},
}

var commandSecret string

var commandSecretFlag = cmdline.Flag{
	ID:           "commandSecretFlag",
	Value:        &commandSecret,
	DefaultValue: "",
	Name:         "command-secret",
	Usage:        "command-channel secret (generated if empty)",
	EnvKeys:      []string{"MODLAUNCHER_COMMAND_SECRET"},
}

var uninstallBundles []string

var uninstallBundlesFlag = cmdline.Flag{
	ID:           "uninstallBundlesFlag",
	Value:        &uninstallBundles,
	DefaultValue: []string{},
	Name:         "uninstall-bundles",
	Usage:        "restricted-glob pattern(s) matching installed bundle locations to uninstall at start",
}

// modlauncher start [opts] <instance>
var startCmd = &cobra.Command{
	Use:   "start [opts] <instance>",
	Short: "Load an existing instance and run the container",
	Long: "Start loads the persisted properties of an already-deployed " +
		"instance, initializes the container, and runs the init -> start -> " +
		"wait-for-stop -> restart-on-update loop until the " +
		"container stops or a command-channel/shutdown-signal cancel fires.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := commandChannelOpts{address: commandAddress, port: commandPort, secret: commandSecret}
		return runInstance(cmd.Context(), args[0], opts, uninstallBundles, nil)
	},
}
