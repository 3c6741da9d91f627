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
	"context"
	"net"
	"strconv"
	"strings"

	"github.com/apptainer/modlauncher/internal/pkg/cancel"
	"github.com/apptainer/modlauncher/internal/pkg/channel"
	"github.com/apptainer/modlauncher/internal/pkg/container"
	"github.com/apptainer/modlauncher/internal/pkg/instance"
	"github.com/apptainer/modlauncher/internal/pkg/launchererr"
	"github.com/apptainer/modlauncher/pkg/sylog"
)

// commandChannelOpts are the --command-* flags shared by start and launch.
type commandChannelOpts struct {
	address string
	port    int
	secret  string
}

// runInstance loads an already-deployed instance's persisted properties,
// initializes the container, optionally uninstalls bundles matching
// patterns, optionally binds the command channel, and drives the launch
// state machine until the container reaches a terminal
// state or a cancel fires. launchArgs, when non-empty (the "launch" verb's
// trailing `-- args…`), is forwarded to the container via the reserved
// launcher.launch.args property, joined with spaces, for factories that
// support a foreground entrypoint.
func runInstance(ctx context.Context, path string, chOpts commandChannelOpts, uninstallPatterns []string, launchArgs []string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	return instance.WithInstance(path, func(c *instance.Controller) error {
		effective := instance.EffectiveProperties{
			System:    map[string]string{},
			Launching: map[string]string{},
			Framework: map[string]string{},
		}
		if err := c.Restore(effective); err != nil {
			return err
		}

		rt := container.New(factory, c.Path())
		properties := rt.PrepareProperties(effective.Framework, true)
		if len(launchArgs) > 0 {
			properties["launcher.launch.args"] = strings.Join(launchArgs, " ")
		}

		if err := rt.Init(ctx, properties); err != nil {
			return err
		}

		if len(uninstallPatterns) > 0 {
			if err := rt.UninstallByPattern(uninstallPatterns); err != nil {
				return err
			}
		}

		// Explicitly deleted before any launch attempt so a failed bind
		// never leaves a stale link file behind.
		if err := channel.DeleteLink(c.LinkFile()); err != nil {
			return err
		}

		var hook cancel.Hook
		alreadyCancelled := hook.Register(func() {
			if err := rt.Kill(context.Background()); err != nil {
				sylog.Errorf("run: kill: %s", err)
			}
		})
		if alreadyCancelled {
			return launchererr.New(launchererr.Cancelled, nil)
		}

		var server *channel.Server
		if chOpts.address != "" || chOpts.port != 0 || chOpts.secret != "" {
			var err error
			server, err = channel.NewServer(chOpts.address, strconv.Itoa(chOpts.port), chOpts.secret)
			if err != nil {
				return err
			}
			if err := channel.WriteLink(c.LinkFile(), server.LinkFields()); err != nil {
				server.Close()
				return err
			}
			defer func() {
				_ = channel.DeleteLink(c.LinkFile())
			}()

			serverCtx, cancelServer := context.WithCancel(ctx)
			defer cancelServer()
			go server.Serve(serverCtx, func(verb string, addr net.Addr) {
				if verb == "stop" {
					sylog.Debugf("run: stop requested from %s", addr)
					hook.Cancel()
				}
			}, func(err error) {
				sylog.Errorf("run: command channel: %s", err)
			})
		}

		go func() {
			<-ctx.Done()
			hook.Cancel()
		}()

		shutdownTimeout, err := container.ParseShutdownTimeout(effective.Launching["shutdown.timeout"])
		if err != nil {
			return err
		}

		_, err = rt.Run(ctx, shutdownTimeout)
		return err
	})
}
