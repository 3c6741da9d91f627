// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package cmdline

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// envKeysAnnotation is the pflag.Flag annotation key under which
// RegisterFlagForCmd stashes a Flag's EnvKeys, since pflag's own Flag type
// has no room for launcher-specific metadata.
const envKeysAnnotation = "modlauncher_envkeys"

// CommandManager declares Flags against cobra commands, collecting
// registration failures in a pool instead of returning them immediately so
// a caller can register an entire command's flag set in one pass and check
// for problems once at the end.
type CommandManager struct {
	rootCmd *cobra.Command
	errPool []error
}

// newCommandManager returns a CommandManager rooted at rootCmd.
func newCommandManager(rootCmd *cobra.Command) (*CommandManager, error) {
	if rootCmd == nil {
		return nil, fmt.Errorf("cmdline: root command is nil")
	}
	return &CommandManager{rootCmd: rootCmd}, nil
}

// NewCommandManager is the exported constructor cmd/internal/cli uses to
// build the command tree.
func NewCommandManager(rootCmd *cobra.Command) (*CommandManager, error) {
	return newCommandManager(rootCmd)
}

// RegisterCmd attaches cmd under parent, or under the root command if
// parent is nil.
func (cm *CommandManager) RegisterCmd(cmd *cobra.Command, parent *cobra.Command) {
	if parent == nil {
		parent = cm.rootCmd
	}
	parent.AddCommand(cmd)
}

// RegisterFlagForCmd declares flag on every command in cmds. A nil flag, a
// nil command, or a Value/DefaultValue type mismatch is recorded in the
// error pool rather than returned, so a caller registering many flags in a
// single init-time pass only has to check GetError once at the end.
func (cm *CommandManager) RegisterFlagForCmd(flag *Flag, cmds ...*cobra.Command) {
	if flag == nil {
		cm.errPool = append(cm.errPool, fmt.Errorf("cmdline: nil flag"))
		return
	}
	if len(cmds) == 0 {
		cm.errPool = append(cm.errPool, fmt.Errorf("cmdline: no command given for flag %q", flag.Name))
		return
	}
	for _, cmd := range cmds {
		if cmd == nil {
			cm.errPool = append(cm.errPool, fmt.Errorf("cmdline: nil command for flag %q", flag.Name))
			continue
		}
		if err := addFlag(cmd.Flags(), flag); err != nil {
			cm.errPool = append(cm.errPool, err)
			continue
		}
		if flag.Deprecated != "" {
			_ = cmd.Flags().MarkDeprecated(flag.Name, flag.Deprecated)
		}
		if flag.Hidden {
			_ = cmd.Flags().MarkHidden(flag.Name)
		}
		if len(flag.EnvKeys) > 0 {
			pf := cmd.Flags().Lookup(flag.Name)
			if pf.Annotations == nil {
				pf.Annotations = map[string][]string{}
			}
			pf.Annotations[envKeysAnnotation] = flag.EnvKeys
		}
	}
}

// GetError returns every error accumulated by RegisterFlagForCmd so far.
func (cm *CommandManager) GetError() []error {
	return cm.errPool
}

func addFlag(fs *pflag.FlagSet, flag *Flag) error {
	switch v := flag.Value.(type) {
	case *string:
		def, ok := flag.DefaultValue.(string)
		if !ok {
			return fmt.Errorf("cmdline: flag %q: default value is not a string", flag.Name)
		}
		fs.StringVarP(v, flag.Name, flag.ShortHand, def, flag.Usage)
	case *bool:
		def, ok := flag.DefaultValue.(bool)
		if !ok {
			return fmt.Errorf("cmdline: flag %q: default value is not a bool", flag.Name)
		}
		fs.BoolVarP(v, flag.Name, flag.ShortHand, def, flag.Usage)
	case *int:
		def, ok := flag.DefaultValue.(int)
		if !ok {
			return fmt.Errorf("cmdline: flag %q: default value is not an int", flag.Name)
		}
		fs.IntVarP(v, flag.Name, flag.ShortHand, def, flag.Usage)
	case *uint32:
		def, ok := flag.DefaultValue.(uint32)
		if !ok {
			return fmt.Errorf("cmdline: flag %q: default value is not a uint32", flag.Name)
		}
		fs.Uint32VarP(v, flag.Name, flag.ShortHand, def, flag.Usage)
	case *[]string:
		def, ok := flag.DefaultValue.([]string)
		if !ok {
			return fmt.Errorf("cmdline: flag %q: default value is not a []string", flag.Name)
		}
		fs.StringSliceVarP(v, flag.Name, flag.ShortHand, def, flag.Usage)
	case *map[string]string:
		def, ok := flag.DefaultValue.(map[string]string)
		if !ok {
			return fmt.Errorf("cmdline: flag %q: default value is not a map[string]string", flag.Name)
		}
		fs.StringToStringVarP(v, flag.Name, flag.ShortHand, def, flag.Usage)
	default:
		return fmt.Errorf("cmdline: flag %q: unsupported value type %T", flag.Name, flag.Value)
	}
	return nil
}

// UpdateCmdFlagFromEnv applies environment-variable fallback to every flag
// of cmd that was not explicitly set on the command line: the first set key
// among its EnvKeys (in order) becomes the flag's value. applied records,
// per flag name, the environment value used, so a caller walking a command
// tree with shared persistent flags does not re-resolve the same flag
// twice. excludeOption is reserved for a future per-flag exclusion mask and
// is currently unused (pass -1).
func (cm *CommandManager) UpdateCmdFlagFromEnv(cmd *cobra.Command, excludeOption int, applied map[string]string) error {
	var firstErr error
	cmd.Flags().VisitAll(func(pf *pflag.Flag) {
		if firstErr != nil || pf.Changed {
			return
		}
		envKeys := pf.Annotations[envKeysAnnotation]
		if len(envKeys) == 0 {
			return
		}
		if _, done := applied[pf.Name]; done {
			return
		}
		for _, key := range envKeys {
			raw, ok := os.LookupEnv(key)
			if !ok {
				continue
			}
			if err := pf.Value.Set(raw); err != nil {
				firstErr = fmt.Errorf("cmdline: set %q from env %s: %w", pf.Name, key, err)
				return
			}
			pf.Changed = true
			applied[pf.Name] = raw
			return
		}
	})
	return firstErr
}
