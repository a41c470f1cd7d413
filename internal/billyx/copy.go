// Copyright 2025 The Repo Template Authors
// SPDX-License-Identifier: Apache-2.0

// Package billyx provides utilities for working with billy filesystems.
package billyx

import (
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// CopyFS recursively copies all files from src to dst.
func CopyFS(dst, src billy.Filesystem) error {
	return CopyFSFiltered(dst, src)
}

// CopyFSFiltered recursively copies files from src to dst, skipping any
// file or directory whose base name matches one of the given patterns
// (path.Match syntax). Matching directories are skipped whole.
func CopyFSFiltered(dst, src billy.Filesystem, ignore ...string) error {
	return util.Walk(src, "/", func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if p == "/" || p == "" {
			return nil
		}
		for _, pattern := range ignore {
			ok, err := path.Match(pattern, info.Name())
			if err != nil {
				return err
			}
			if ok {
				if info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}
		if info.IsDir() {
			return dst.MkdirAll(p, info.Mode())
		}
		srcFile, err := src.Open(p)
		if err != nil {
			return err
		}
		defer srcFile.Close()
		dstFile, err := dst.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode())
		if err != nil {
			return err
		}
		defer dstFile.Close()
		_, err = io.Copy(dstFile, srcFile)
		return err
	})
}
