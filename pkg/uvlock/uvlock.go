// Copyright 2025 The Repo Template Authors
// SPDX-License-Identifier: Apache-2.0

// Package uvlock reads the subset of uv's lockfile and project settings
// needed to fabricate a package index and assert on resolved versions.
package uvlock

import (
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// An Artifact is one downloadable file recorded for a locked package.
type Artifact struct {
	URL  string `toml:"url"`
	Hash string `toml:"hash"`
	// UploadTime is kept as the literal lockfile value so it can be echoed
	// into rendered pages byte-for-byte.
	UploadTime string `toml:"upload-time"`
}

// A Package is one [[package]] entry from uv.lock. Virtual packages (the
// project itself) carry neither wheels nor an sdist.
type Package struct {
	Name    string     `toml:"name"`
	Version string     `toml:"version"`
	Wheels  []Artifact `toml:"wheels"`
	Sdist   *Artifact  `toml:"sdist"`
}

// Artifacts returns the package's wheel descriptors, falling back to its
// sdist. A nil result marks a virtual package.
func (p Package) Artifacts() []Artifact {
	if len(p.Wheels) > 0 {
		return p.Wheels
	}
	if p.Sdist != nil {
		return []Artifact{*p.Sdist}
	}
	return nil
}

// Lockfile is the parsed uv.lock content.
type Lockfile struct {
	Packages []Package `toml:"package"`
}

// Parse decodes uv.lock content.
func Parse(data []byte) (*Lockfile, error) {
	var lf Lockfile
	if err := toml.Unmarshal(data, &lf); err != nil {
		return nil, errors.Wrap(err, "parsing uv.lock")
	}
	return &lf, nil
}

// ParseFile reads and decodes the lockfile at path on fs.
func ParseFile(fs billy.Filesystem, path string) (*Lockfile, error) {
	data, err := util.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return Parse(data)
}

// Versions maps each locked package name to its pinned version.
func (lf *Lockfile) Versions() map[string]string {
	versions := make(map[string]string, len(lf.Packages))
	for _, pkg := range lf.Packages {
		versions[pkg.Name] = pkg.Version
	}
	return versions
}

// ExcludeNewer returns the tool.uv.exclude-newer cutoff from the
// pyproject.toml in dir. Resolvers honoring this setting ignore artifacts
// uploaded after the cutoff, which is what upgrade scenarios pivot on.
func ExcludeNewer(fs billy.Filesystem, dir string) (time.Time, error) {
	data, err := util.ReadFile(fs, fs.Join(dir, "pyproject.toml"))
	if err != nil {
		return time.Time{}, errors.Wrap(err, "reading pyproject.toml")
	}
	var pyproject struct {
		Tool struct {
			UV struct {
				ExcludeNewer string `toml:"exclude-newer"`
			} `toml:"uv"`
		} `toml:"tool"`
	}
	if err := toml.Unmarshal(data, &pyproject); err != nil {
		return time.Time{}, errors.Wrap(err, "parsing pyproject.toml")
	}
	raw := pyproject.Tool.UV.ExcludeNewer
	if raw == "" {
		return time.Time{}, errors.New("pyproject.toml has no tool.uv.exclude-newer setting")
	}
	cutoff, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parsing exclude-newer %q", raw)
	}
	return cutoff, nil
}
