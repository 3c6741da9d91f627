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
	"github.com/apptainer/modlauncher/pkg/sylog"
	"github.com/spf13/cobra"
)

func init() {
	addCmdInit(func(cmdManager *cmdline.CommandManager) {
		cmdManager.RegisterCmd(launchCmd, nil)
		cmdManager.RegisterFlagForCmd(&commandAddressFlag, launchCmd)
		cmdManager.RegisterFlagForCmd(&commandPortFlag, launchCmd)
		cmdManager.RegisterFlagForCmd(&commandSecretFlag, launchCmd)
		cmdManager.RegisterFlagForCmd(&uninstallBundlesFlag, launchCmd)
	})
}

// modlauncher launch [opts] <instance> [-- args...]
var launchCmd = &cobra.Command{
	Use:   "launch [opts] <instance> [-- args...]",
	Short: "Load an existing instance and run the container, forwarding trailing arguments",
	Long: "Launch behaves exactly like start, except any tokens following a " +
		"bare -- are forwarded to the container as the reserved " +
		"launcher.launch.args property instead of being parsed as flags.",
	Args: func(cmd *cobra.Command, args []string) error {
		dash := cmd.ArgsLenAtDash()
		positional := args
		if dash >= 0 {
			positional = args[:dash]
		}
		if len(positional) != 1 {
			return cmdline.CommandError("launch requires exactly one <instance> argument")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		dash := cmd.ArgsLenAtDash()
		positional := args
		var trailing []string
		if dash >= 0 {
			positional = args[:dash]
			trailing = args[dash:]
		}
		instancePath := positional[0]

		sylog.Debugf("launch: forwarding %d trailing argument(s)", len(trailing))

		opts := commandChannelOpts{address: commandAddress, port: commandPort, secret: commandSecret}
		return runInstance(cmd.Context(), instancePath, opts, uninstallBundles, trailing)
	},
}
