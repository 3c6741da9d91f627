// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package instance

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/apptainer/modlauncher/internal/pkg/launchererr"
	"github.com/apptainer/modlauncher/pkg/sylog"
)

// PopulateConf copies the directory tree rooted at src into the instance's
// conf/ directory. With overwrite false an existing destination file is
// left untouched, so a create-configuration source seeds defaults without
// clobbering user edits; with overwrite true every file is copied over,
// the behavior of an update-configuration source.
func (c *Controller) PopulateConf(src string, overwrite bool) error {
	info, err := os.Stat(src)
	if err != nil {
		return launchererr.New(launchererr.InstanceIO, fmt.Errorf("stat configuration source %s: %w", src, err))
	}
	if !info.IsDir() {
		return launchererr.Newf(launchererr.InstanceIO, "configuration source %s is not a directory", src)
	}

	confDir := c.ConfDir()
	err = filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		dst := filepath.Join(confDir, rel)
		if d.IsDir() {
			return os.MkdirAll(dst, 0o755)
		}
		if !overwrite {
			if _, err := os.Stat(dst); err == nil {
				sylog.Debugf("instance: keeping existing configuration file %s", dst)
				return nil
			}
		}
		return copyFile(path, dst)
	})
	if err != nil {
		return launchererr.New(launchererr.InstanceIO, fmt.Errorf("populate %s from %s: %w", confDir, src, err))
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
