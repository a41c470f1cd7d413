// Copyright 2025 The Repo Template Authors
// SPDX-License-Identifier: Apache-2.0

// Package wheel fabricates minimal installable wheels: an empty module stub
// plus just enough dist-info metadata for a resolver to accept the file.
package wheel

import (
	"archive/zip"
	"crypto"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/pkg/errors"

	"github.com/opensafely-core/repo-template/internal/hashext"
	"github.com/opensafely-core/repo-template/internal/textwrap"
	"github.com/opensafely-core/repo-template/pkg/pep503"
)

type entry struct {
	name string
	body []byte
}

// Build writes a metadata-only wheel for the given package name and version
// into dir on fs, returning the wheel's filename and the hex sha256 of the
// complete written archive. version is embedded as given; no version syntax
// is enforced.
func Build(fs billy.Filesystem, dir, name, version string) (filename, sha256Hex string, err error) {
	dist := pep503.DistName(name)
	filename = fmt.Sprintf("%s-%s-py3-none-any.whl", dist, version)
	distInfo := fmt.Sprintf("%s-%s.dist-info", dist, version)

	metadata := fmt.Sprintf(textwrap.Dedent(`
		Metadata-Version: 2.1
		Name: %s
		Version: %s
		`)[1:], name, version)
	wheelMetadata := textwrap.Dedent(`
		Wheel-Version: 1.0
		Generator: repo-template-test
		Root-Is-Purelib: true
		Tag: py3-none-any
		`)[1:]

	entries := []entry{
		{dist + "/__init__.py", nil},
		{distInfo + "/METADATA", []byte(metadata)},
		{distInfo + "/WHEEL", []byte(wheelMetadata)},
		{distInfo + "/top_level.txt", []byte(name + "\n")},
	}
	entries = append(entries, entry{distInfo + "/RECORD", record(entries, distInfo)})

	f, err := fs.OpenFile(fs.Join(dir, filename), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return "", "", errors.Wrapf(err, "creating %s", filename)
	}
	h := hashext.NewTypedHash(crypto.SHA256)
	zw := zip.NewWriter(io.MultiWriter(f, h))
	for _, e := range entries {
		w, err := zw.Create(e.name)
		if err == nil {
			_, err = w.Write(e.body)
		}
		if err != nil {
			f.Close()
			return "", "", errors.Wrapf(err, "archiving %s", e.name)
		}
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return "", "", errors.Wrap(err, "finalizing wheel archive")
	}
	if err := f.Close(); err != nil {
		return "", "", errors.Wrapf(err, "closing %s", filename)
	}
	return filename, h.HexSum(), nil
}

// record renders the RECORD manifest for the given entries: one
// "path,sha256=<digest>,<length>" row per file in archive order, with the
// digest in unpadded url-safe base64 per the wheel spec, then a trailing
// row for RECORD itself whose hash and length stay empty.
func record(entries []entry, distInfo string) []byte {
	var rows strings.Builder
	for _, e := range entries {
		sum := sha256.Sum256(e.body)
		digest := base64.RawURLEncoding.EncodeToString(sum[:])
		fmt.Fprintf(&rows, "%s,sha256=%s,%d\n", e.name, digest, len(e.body))
	}
	rows.WriteString(distInfo + "/RECORD,,\n")
	return []byte(rows.String())
}
