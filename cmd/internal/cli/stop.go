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
	"github.com/apptainer/modlauncher/internal/pkg/channel"
	"github.com/apptainer/modlauncher/internal/pkg/instance"
	"github.com/apptainer/modlauncher/internal/pkg/launchererr"
	"github.com/apptainer/modlauncher/pkg/cmdline"
	"github.com/spf13/cobra"
)

func init() {
	addCmdInit(func(cmdManager *cmdline.CommandManager) {
		cmdManager.RegisterCmd(stopCmd, nil)
	})
}

// modlauncher stop <instance> | <host> <port> <secret>
var stopCmd = &cobra.Command{
	Use:   "stop <instance> | <host> <port> <secret>",
	Short: "Request shutdown of a running instance over its command channel",
	Long: "Stop is the one-shot peer invocation: given an " +
		"instance path it reads the link triple from instance.link, or given " +
		"an explicit host/port/secret triple it sends the \"stop\" verb " +
		"directly. Either way it sends one datagram and exits without " +
		"waiting for an acknowledgement.",
	Args: cobra.MatchAll(
		func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 && len(args) != 3 {
				return cmdline.CommandError("stop requires either <instance> or <host> <port> <secret>")
			}
			return nil
		},
	),
	RunE: func(cmd *cobra.Command, args []string) error {
		var link channel.Link
		if len(args) == 3 {
			link = channel.Link{Host: args[0], Port: args[1], Secret: args[2]}
		} else {
			path := args[0]
			if !instance.Valid(path) {
				return launchererr.Newf(launchererr.ConfigError, "stop: %s is not a valid instance", path)
			}
			l, err := channel.ReadLink(instanceLinkPath(path))
			if err != nil {
				return err
			}
			link = l
		}
		return channel.SendStop(link.Host, link.Port, link.Secret)
	},
}

// instanceLinkPath mirrors instance.Controller.LinkFile without requiring
// an Acquire, since stop never takes ownership of the instance.
func instanceLinkPath(path string) string {
	c := instance.New(path)
	return c.LinkFile()
}
