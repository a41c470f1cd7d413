// Copyright 2025 The Repo Template Authors
// SPDX-License-Identifier: Apache-2.0

// Package index maintains a PEP 503 "simple" repository on a local
// filesystem: one directory per normalized package name, each holding an
// index.html listing that package's artifacts. The layout is exactly what
// a resolver expects behind a file:// index URL, so tests can point uv at
// it without running a server.
package index

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/pkg/errors"

	"github.com/opensafely-core/repo-template/pkg/pep503"
	"github.com/opensafely-core/repo-template/pkg/uvlock"
	"github.com/opensafely-core/repo-template/pkg/wheel"
)

// A Link is one anchor on a package's index page. Href is either the bare
// filename of a wheel stored beside the page or an external artifact URL.
// UploadTime is opaque: it is echoed into the data-upload-time attribute
// exactly as given.
type Link struct {
	Href       string
	SHA256     string
	UploadTime string
	Text       string
}

// Index owns the on-disk simple layout and, per normalized package name,
// the ordered link sequence its page is rendered from. Links only ever
// append; pages are rewritten whole on every append.
type Index struct {
	fs    billy.Filesystem
	dir   string
	links map[string][]Link
}

// New creates the index root (a "simple" directory under root) on fs.
func New(fs billy.Filesystem, root string) (*Index, error) {
	dir := fs.Join(root, "simple")
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "creating index root")
	}
	return &Index{fs: fs, dir: dir, links: make(map[string][]Link)}, nil
}

// URL returns the file URI of the index root with exactly one trailing
// slash, suitable as a resolver's index-url setting.
func (i *Index) URL() string {
	p := filepath.ToSlash(filepath.Join(i.fs.Root(), i.dir))
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	u := url.URL{Scheme: "file", Path: p}
	return strings.TrimSuffix(u.String(), "/") + "/"
}

// PackageDir ensures the directory for name exists and returns its path on
// fs. Placement depends only on the normalized name, so spelling variants
// of one package always share a directory. Safe to call repeatedly.
func (i *Index) PackageDir(name string) (string, error) {
	dir := i.fs.Join(i.dir, pep503.Normalize(name))
	if err := i.fs.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrapf(err, "creating package directory for %s", name)
	}
	return dir, nil
}

// AddPackage builds a metadata-only wheel for the given version, stores it
// in the package's directory, and publishes it on the package's page with
// the given upload time.
func (i *Index) AddPackage(name, version, uploadTime string) error {
	dir, err := i.PackageDir(name)
	if err != nil {
		return err
	}
	filename, sha, err := wheel.Build(i.fs, dir, name, version)
	if err != nil {
		return errors.Wrapf(err, "building wheel for %s %s", name, version)
	}
	i.append(name, Link{Href: filename, SHA256: sha, UploadTime: uploadTime, Text: filename})
	return i.writePackageIndex(name)
}

// AddLockedPackage publishes page entries for a package already pinned in
// a lockfile, pointing at its upstream artifact URLs with the lockfile's
// hashes and upload times. No wheel is written locally, so the package is
// visible to resolution but not installable from this index. Entries with
// no artifacts at all (the project itself) are skipped without touching
// the filesystem.
func (i *Index) AddLockedPackage(pkg uvlock.Package) error {
	artifacts := pkg.Artifacts()
	if artifacts == nil {
		return nil
	}
	if pkg.Name == "" {
		return errors.New("lock entry has no name")
	}
	links := make([]Link, 0, len(artifacts))
	for _, a := range artifacts {
		if a.URL == "" || a.Hash == "" {
			return errors.Errorf("lock entry for %s is missing an artifact url or hash", pkg.Name)
		}
		sha := a.Hash
		if _, digest, ok := strings.Cut(sha, ":"); ok {
			sha = digest
		}
		links = append(links, Link{Href: a.URL, SHA256: sha, UploadTime: a.UploadTime, Text: path.Base(a.URL)})
	}
	if _, err := i.PackageDir(pkg.Name); err != nil {
		return err
	}
	i.append(pkg.Name, links...)
	return i.writePackageIndex(pkg.Name)
}

func (i *Index) append(name string, links ...Link) {
	key := pep503.Normalize(name)
	i.links[key] = append(i.links[key], links...)
}

// writePackageIndex rewrites name's page from its current link sequence.
func (i *Index) writePackageIndex(name string) error {
	dir, err := i.PackageDir(name)
	if err != nil {
		return err
	}
	html := renderPage(i.links[pep503.Normalize(name)])
	if err := util.WriteFile(i.fs, i.fs.Join(dir, "index.html"), []byte(html), 0644); err != nil {
		return errors.Wrapf(err, "writing index page for %s", name)
	}
	return nil
}

// renderPage produces the page HTML for a link sequence. It is a pure
// function of its input: the same sequence always renders byte-identical
// output. The data-upload-time attribute is what uv reads to apply
// exclude-newer filtering.
func renderPage(links []Link) string {
	anchors := make([]string, 0, len(links))
	for _, l := range links {
		anchors = append(anchors,
			fmt.Sprintf(`<a href="%s#sha256=%s" data-upload-time="%s">%s</a>`, l.Href, l.SHA256, l.UploadTime, l.Text))
	}
	return "<html><body>" + strings.Join(anchors, "\n") + "</body></html>"
}
