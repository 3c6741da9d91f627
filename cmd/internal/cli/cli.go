// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package cli registers the launcher's verbs against a cobra root
// command through the cmdline.CommandManager flag-registration helper.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/apptainer/modlauncher/internal/pkg/container"
	"github.com/apptainer/modlauncher/internal/pkg/container/localfs"
	"github.com/apptainer/modlauncher/pkg/cmdline"
	"github.com/apptainer/modlauncher/pkg/sylog"
	"github.com/spf13/cobra"
)

// cmdInits holds every command/flag registration function, populated by
// each verb file's init().
var cmdInits = make([]func(*cmdline.CommandManager), 0)

func addCmdInit(fn func(*cmdline.CommandManager)) {
	cmdInits = append(cmdInits, fn)
}

// factory is the container.Factory the launch/start verbs bind against.
// It defaults to the bundled reference implementation (internal/pkg/container/localfs)
// so the binary is runnable standalone; a host embedding this launcher
// replaces it with SetFactory before calling Execute.
var factory container.Factory = localfs.Factory{}

// SetFactory overrides the container.Factory used by start/launch. Must be
// called before Execute.
func SetFactory(f container.Factory) {
	factory = f
}

var (
	debug   bool
	verbose bool
	quiet   bool
	silent  bool
)

var rootDebugFlag = cmdline.Flag{
	ID:           "rootDebugFlag",
	Value:        &debug,
	DefaultValue: false,
	Name:         "debug",
	ShortHand:    "d",
	Usage:        "print debugging information (highest verbosity)",
	EnvKeys:      []string{"MODLAUNCHER_DEBUG"},
}

var rootVerboseFlag = cmdline.Flag{
	ID:           "rootVerboseFlag",
	Value:        &verbose,
	DefaultValue: false,
	Name:         "verbose",
	ShortHand:    "v",
	Usage:        "print additional information",
	EnvKeys:      []string{"MODLAUNCHER_VERBOSE"},
}

var rootQuietFlag = cmdline.Flag{
	ID:           "rootQuietFlag",
	Value:        &quiet,
	DefaultValue: false,
	Name:         "quiet",
	ShortHand:    "q",
	Usage:        "suppress normal output",
	EnvKeys:      []string{"MODLAUNCHER_QUIET"},
}

var rootSilentFlag = cmdline.Flag{
	ID:           "rootSilentFlag",
	Value:        &silent,
	DefaultValue: false,
	Name:         "silent",
	ShortHand:    "s",
	Usage:        "only print errors",
	EnvKeys:      []string{"MODLAUNCHER_SILENT"},
}

func setSylogMessageLevel() {
	level := 1
	switch {
	case debug:
		level = 5
	case verbose:
		level = 2
	case quiet:
		level = -1
	case silent:
		level = -3
	}
	sylog.SetLevel(level, true)
}

var rootCmd = &cobra.Command{
	Use:           "modlauncher",
	Short:         "Launch and supervise a pluggable module-container instance",
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmdline.CommandError("no command given")
	},
}

// Execute wires up every registered verb and runs the root command. It is
// the sole entry point cmd/modlauncher calls.
func Execute() {
	cmdManager, err := cmdline.NewCommandManager(rootCmd)
	if err != nil {
		sylog.Fatalf("cli: %s", err)
	}

	cmdManager.RegisterFlagForCmd(&rootDebugFlag, rootCmd)
	cmdManager.RegisterFlagForCmd(&rootVerboseFlag, rootCmd)
	cmdManager.RegisterFlagForCmd(&rootQuietFlag, rootCmd)
	cmdManager.RegisterFlagForCmd(&rootSilentFlag, rootCmd)

	for _, init := range cmdInits {
		init(cmdManager)
	}

	if errs := cmdManager.GetError(); len(errs) > 0 {
		for _, e := range errs {
			sylog.Errorf("%s", e)
		}
		sylog.Fatalf("cli: command manager reported %d error(s)", len(errs))
	}

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		applied := make(map[string]string)
		if err := cmdManager.UpdateCmdFlagFromEnv(rootCmd, -1, applied); err != nil {
			return cmdline.FlagError(err.Error())
		}
		if err := cmdManager.UpdateCmdFlagFromEnv(cmd, -1, applied); err != nil {
			return cmdline.FlagError(err.Error())
		}
		setSylogMessageLevel()
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	defer func() {
		signal.Stop(sig)
		cancel()
	}()
	go func() {
		select {
		case <-sig:
			sylog.Debugf("received interrupt, cancelling")
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		subCmd, _, subErr := rootCmd.Find(os.Args[1:])
		if subErr != nil {
			subCmd = rootCmd
		}
		switch err.(type) {
		case cmdline.FlagError:
			fmt.Fprintf(os.Stderr, "Error for command %q: %s\n\n%s\n", subCmd.Name(), err, subCmd.Flags().FlagUsages())
		case cmdline.CommandError:
			fmt.Fprintln(os.Stderr, subCmd.UsageString())
		default:
			fmt.Fprintf(os.Stderr, "Error for command %q: %s\n\n%s\n", subCmd.Name(), err, subCmd.UsageString())
		}
		os.Exit(exitCodeFor(err))
	}
}
