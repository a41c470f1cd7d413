// Copyright 2025 The Repo Template Authors
// SPDX-License-Identifier: Apache-2.0

// localindex renders a PEP 503 simple index onto the local filesystem from
// a uv.lock, optionally fabricating installable wheels for extra versions.
// The printed file URI can be used directly as UV_INDEX_URL.
package main

import (
	"log"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/opensafely-core/repo-template/pkg/index"
	"github.com/opensafely-core/repo-template/pkg/uvlock"
)

var (
	lockPath string
	outDir   string
	adds     []string
)

var rootCmd = &cobra.Command{
	Use:   "localindex --out DIR [--lock uv.lock] [--add name==version[@upload-time]]...",
	Short: "Render a local PEP 503 simple index",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := filepath.Abs(outDir)
		if err != nil {
			return errors.Wrap(err, "resolving output dir")
		}
		fs := osfs.New(out)
		idx, err := index.New(fs, "")
		if err != nil {
			return err
		}
		if lockPath != "" {
			dir, file := filepath.Split(lockPath)
			if dir == "" {
				dir = "."
			}
			lock, err := uvlock.ParseFile(osfs.New(dir), file)
			if err != nil {
				return err
			}
			for _, pkg := range lock.Packages {
				if err := idx.AddLockedPackage(pkg); err != nil {
					return errors.Wrapf(err, "indexing %s", pkg.Name)
				}
			}
		}
		for _, add := range adds {
			spec, uploadTime, _ := strings.Cut(add, "@")
			name, version, ok := strings.Cut(spec, "==")
			if !ok {
				return errors.Errorf("invalid --add %q, expected name==version[@upload-time]", add)
			}
			if err := idx.AddPackage(name, version, uploadTime); err != nil {
				return err
			}
		}
		color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "index written: %s\n", idx.URL())
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVar(&lockPath, "lock", "", "uv.lock to seed the index from")
	rootCmd.Flags().StringVar(&outDir, "out", "", "directory to render the index into")
	rootCmd.Flags().StringArrayVar(&adds, "add", nil, "fabricate a wheel for name==version[@upload-time]")
	cobra.CheckErr(rootCmd.MarkFlagRequired("out"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
