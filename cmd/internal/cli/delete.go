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
	"errors"

	"github.com/apptainer/modlauncher/internal/pkg/instance"
	"github.com/apptainer/modlauncher/internal/pkg/launchererr"
	"github.com/apptainer/modlauncher/pkg/cmdline"
	"github.com/apptainer/modlauncher/pkg/sylog"
	"github.com/spf13/cobra"
)

func init() {
	addCmdInit(func(cmdManager *cmdline.CommandManager) {
		cmdManager.RegisterCmd(deleteCmd, nil)
	})
}

// modlauncher delete <instance>
var deleteCmd = &cobra.Command{
	Use:   "delete <instance>",
	Short: "Delete an instance directory",
	Long: "Delete removes an instance's directory from disk. A second delete " +
		"of an already-deleted instance is not an error: it " +
		"exits 0 with an informational log line.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		if !instance.Valid(path) {
			sylog.Infof("delete: %s is not a deployed instance, nothing to do", path)
			return nil
		}

		c := instance.New(path)
		if err := c.Acquire(); err != nil {
			return err
		}
		defer c.Abort()

		if err := instance.Delete(path); err != nil {
			var le *launchererr.Error
			if errors.As(err, &le) {
				return err
			}
			return launchererr.New(launchererr.InstanceIO, err)
		}
		return nil
	},
}
