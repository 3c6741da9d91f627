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

	"github.com/apptainer/modlauncher/internal/pkg/container"
	"github.com/apptainer/modlauncher/internal/pkg/deploy"
	"github.com/apptainer/modlauncher/internal/pkg/instance"
	"github.com/apptainer/modlauncher/internal/pkg/launchererr"
	"github.com/apptainer/modlauncher/internal/pkg/props"
	"github.com/apptainer/modlauncher/pkg/cmdline"
	"github.com/apptainer/modlauncher/pkg/sylog"
	"github.com/spf13/cobra"
)

func init() {
	addCmdInit(func(cmdManager *cmdline.CommandManager) {
		cmdManager.RegisterCmd(deployCmd, nil)
		cmdManager.RegisterFlagForCmd(&deployBundleStoreFlag, deployCmd)
		cmdManager.RegisterFlagForCmd(&deployFrameworkPropertiesFlag, deployCmd)
		cmdManager.RegisterFlagForCmd(&deployLaunchingPropertiesFlag, deployCmd)
		cmdManager.RegisterFlagForCmd(&deploySystemPropertiesFlag, deployCmd)
		cmdManager.RegisterFlagForCmd(&deployPropertyFlag, deployCmd)
		cmdManager.RegisterFlagForCmd(&deployCreateConfigurationFlag, deployCmd)
		cmdManager.RegisterFlagForCmd(&deployUpdateConfigurationFlag, deployCmd)
	})
}

var deployBundleStore []string

var deployBundleStoreFlag = cmdline.Flag{
	ID:           "deployBundleStoreFlag",
	Value:        &deployBundleStore,
	DefaultValue: []string{},
	Name:         "bundle-store",
	Usage:        "bundle source directory (or deployment.properties file); repeatable",
	EnvKeys:      []string{"MODLAUNCHER_BUNDLE_STORE"},
}

var deployFrameworkProperties string

var deployFrameworkPropertiesFlag = cmdline.Flag{
	ID:           "deployFrameworkPropertiesFlag",
	Value:        &deployFrameworkProperties,
	DefaultValue: "",
	Name:         "framework-properties",
	Usage:        "properties file to persist as etc/framework.properties",
	EnvKeys:      []string{"MODLAUNCHER_FRAMEWORK_PROPERTIES"},
}

var deployLaunchingProperties string

var deployLaunchingPropertiesFlag = cmdline.Flag{
	ID:           "deployLaunchingPropertiesFlag",
	Value:        &deployLaunchingProperties,
	DefaultValue: "",
	Name:         "launching-properties",
	Usage:        "properties file supplying global planner defaults, persisted as etc/launching.properties",
	EnvKeys:      []string{"MODLAUNCHER_LAUNCHING_PROPERTIES"},
}

var deploySystemProperties string

var deploySystemPropertiesFlag = cmdline.Flag{
	ID:           "deploySystemPropertiesFlag",
	Value:        &deploySystemProperties,
	DefaultValue: "",
	Name:         "system-properties",
	Usage:        "properties file to persist as etc/system.properties",
	EnvKeys:      []string{"MODLAUNCHER_SYSTEM_PROPERTIES"},
}

var deployProperty map[string]string

var deployPropertyFlag = cmdline.Flag{
	ID:           "deployPropertyFlag",
	Value:        &deployProperty,
	DefaultValue: map[string]string{},
	Name:         "property",
	ShortHand:    "D",
	Usage:        "set a launching-properties key=value override; repeatable",
}

var deployCreateConfiguration []string

var deployCreateConfigurationFlag = cmdline.Flag{
	ID:           "deployCreateConfigurationFlag",
	Value:        &deployCreateConfiguration,
	DefaultValue: []string{},
	Name:         "create-configuration",
	Usage:        "directory copied into conf/ only where files are absent; repeatable",
}

var deployUpdateConfiguration []string

var deployUpdateConfigurationFlag = cmdline.Flag{
	ID:           "deployUpdateConfigurationFlag",
	Value:        &deployUpdateConfiguration,
	DefaultValue: []string{},
	Name:         "update-configuration",
	Usage:        "directory overlayed onto conf/, overwriting existing files; repeatable",
}

// modlauncher deploy [opts] <instance>
var deployCmd = &cobra.Command{
	Use:   "deploy [opts] <instance>",
	Short: "Materialize an instance and stage its bundles",
	Long: "Deploy computes a deployment plan from --bundle-store sources, " +
		"installs/updates/uninstalls bundles into the container, and " +
		"persists the effective properties under the instance's etc/ " +
		"directory so a later start can load them.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		return instance.WithInstance(path, func(c *instance.Controller) error {
			launching := props.New()
			for k, v := range deployProperty {
				launching[k] = v
			}
			if deployLaunchingProperties != "" {
				fromFile, err := props.LoadFile(deployLaunchingProperties)
				if err != nil {
					return launchererr.New(launchererr.ConfigError, err)
				}
				launching.Merge(fromFile)
			}

			framework := props.New()
			if deployFrameworkProperties != "" {
				fromFile, err := props.LoadFile(deployFrameworkProperties)
				if err != nil {
					return launchererr.New(launchererr.ConfigError, err)
				}
				framework = fromFile
			}

			system := props.New()
			if deploySystemProperties != "" {
				fromFile, err := props.LoadFile(deploySystemProperties)
				if err != nil {
					return launchererr.New(launchererr.ConfigError, err)
				}
				system = fromFile
			}

			effective := instance.EffectiveProperties{System: system, Launching: launching, Framework: framework}
			// In-memory (CLI/file-supplied) values from this run dominate
			// whatever a previous deploy persisted.
			if err := c.Restore(effective); err != nil {
				return err
			}

			for _, src := range deployCreateConfiguration {
				if err := c.PopulateConf(src, false); err != nil {
					return err
				}
			}
			for _, src := range deployUpdateConfiguration {
				if err := c.PopulateConf(src, true); err != nil {
					return err
				}
			}

			sources := make([]deploy.BundleSource, 0, len(deployBundleStore))
			for _, s := range deployBundleStore {
				sources = append(sources, deploy.BundleSource{Path: s})
			}

			plan, err := deploy.Build(sources, launching, func(msg string) {
				sylog.Warningf("deploy: %s", msg)
			})
			if err != nil {
				return launchererr.New(launchererr.ConfigError, err)
			}

			rt := container.New(factory, c.Path())
			properties := rt.PrepareProperties(framework, false)
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if err := rt.Init(ctx, properties); err != nil {
				return err
			}
			rt.DeployPlan(plan)

			if err := c.Persist(effective); err != nil {
				return err
			}

			sylog.Infof("deploy: staged %d bundle(s) into %s", len(plan.Bundles), c.Path())
			return nil
		})
	},
}
