// Copyright 2025 The Repo Template Authors
// SPDX-License-Identifier: Apache-2.0

// Package harness drives upgrade-workflow scenarios: it stages a scratch
// copy of the project, wires up a local package index, invokes the upgrade
// command, and reads back the lockfile to assert on resolved versions. Any
// step failing fails the scenario outright; nothing here retries.
package harness

import (
	"bytes"
	"context"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/pkg/errors"

	"github.com/opensafely-core/repo-template/internal/billyx"
	"github.com/opensafely-core/repo-template/pkg/index"
	"github.com/opensafely-core/repo-template/pkg/uvlock"
)

// ignorePatterns is working-tree clutter never staged into a scratch copy.
var ignorePatterns = []string{".venv", "htmlcov", "__pycache__", "*.pyc", ".git"}

// CopyProject stages the project at src into dest, skipping virtualenvs,
// caches, and git state.
func CopyProject(src, dest string) error {
	if err := os.MkdirAll(dest, 0755); err != nil {
		return errors.Wrap(err, "creating scratch project dir")
	}
	if err := billyx.CopyFSFiltered(osfs.New(dest), osfs.New(src), ignorePatterns...); err != nil {
		return errors.Wrap(err, "copying project")
	}
	return nil
}

// InitRepo initializes a git repository in dir and installs a no-op
// pre-commit hook, so commit-time tooling in the project's dev environment
// cannot interfere with the scenario.
func InitRepo(dir string) error {
	if _, err := git.PlainInit(dir, false); err != nil {
		return errors.Wrap(err, "initializing scratch repo")
	}
	hooks := filepath.Join(dir, ".git", "hooks")
	if err := os.MkdirAll(hooks, 0755); err != nil {
		return errors.Wrap(err, "creating hooks dir")
	}
	hook := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(filepath.Join(hooks, "pre-commit"), hook, 0755); err != nil {
		return errors.Wrap(err, "writing pre-commit stub")
	}
	return nil
}

// Env describes the resolver environment for a scenario.
type Env struct {
	// CacheDir isolates uv's cache per scenario to avoid pollution.
	CacheDir string
	// IndexURL points resolution at the scenario's local index.
	IndexURL string
}

// Environ returns the process environment with the scenario settings
// applied: colour output off, any inherited virtualenv cleared, and the
// extra index blanked so only the scenario's index is consulted.
func (e Env) Environ() []string {
	var env []string
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "VIRTUAL_ENV=") {
			continue
		}
		env = append(env, kv)
	}
	env = append(env, "UV_NO_COLOR=1")
	if e.CacheDir != "" {
		env = append(env, "UV_CACHE_DIR="+e.CacheDir)
	}
	if e.IndexURL != "" {
		env = append(env,
			"UV_INDEX_URL="+e.IndexURL,
			"UV_DEFAULT_INDEX="+e.IndexURL,
			"UV_EXTRA_INDEX_URL=")
	}
	return env
}

// Run executes a command in dir and returns its combined output. Output is
// mirrored to the log as it is produced. A non-zero exit is a hard failure
// of the calling scenario.
func Run(ctx context.Context, dir string, env []string, name string, args ...string) (string, error) {
	output := new(bytes.Buffer)
	outAndLog := io.MultiWriter(output, log.Default().Writer())
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = outAndLog
	cmd.Stderr = outAndLog
	cmd.Dir = dir
	cmd.Env = env
	log.Printf("Executing: %s", cmd.String())
	if err := cmd.Run(); err != nil {
		return output.String(), errors.Wrapf(err, "running %s", name)
	}
	return output.String(), nil
}

// SeedIndex creates a local index under root on fs, populated with every
// package in projectDir's uv.lock, so the resolver can re-resolve the
// current pins without reaching the real registry.
func SeedIndex(fs billy.Filesystem, root, projectDir string) (*index.Index, error) {
	idx, err := index.New(fs, root)
	if err != nil {
		return nil, err
	}
	lock, err := uvlock.ParseFile(osfs.New(projectDir), "uv.lock")
	if err != nil {
		return nil, err
	}
	for _, pkg := range lock.Packages {
		if err := idx.AddLockedPackage(pkg); err != nil {
			return nil, errors.Wrapf(err, "indexing %s", pkg.Name)
		}
	}
	return idx, nil
}

// LockedVersion returns the version pinned for pkg in dir's uv.lock.
func LockedVersion(dir, pkg string) (string, error) {
	lock, err := uvlock.ParseFile(osfs.New(dir), "uv.lock")
	if err != nil {
		return "", err
	}
	version, ok := lock.Versions()[pkg]
	if !ok {
		return "", errors.Errorf("%s not present in uv.lock", pkg)
	}
	return version, nil
}

// MirrorHas reports whether dir's requirements.uvmirror.txt pins
// pkg==version.
func MirrorHas(dir, pkg, version string) (bool, error) {
	data, err := os.ReadFile(filepath.Join(dir, "requirements.uvmirror.txt"))
	if err != nil {
		return false, errors.Wrap(err, "reading mirror requirements")
	}
	return strings.Contains(string(data), pkg+"=="+version), nil
}
