// Copyright 2025 The Repo Template Authors
// SPDX-License-Identifier: Apache-2.0

package index

import (
	"os"
	"regexp"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/go-cmp/cmp"

	"github.com/opensafely-core/repo-template/pkg/uvlock"
)

var anchorRE = regexp.MustCompile(`<a href="([^"]*)" data-upload-time="([^"]*)">([^<]*)</a>`)

func newIndex(t *testing.T) (*Index, billy.Filesystem) {
	t.Helper()
	fs := memfs.New()
	idx, err := New(fs, "index")
	if err != nil {
		t.Fatalf("New() = %v, want nil", err)
	}
	return idx, fs
}

func readPage(t *testing.T, fs billy.Filesystem, pkg string) string {
	t.Helper()
	data, err := util.ReadFile(fs, fs.Join("index", "simple", pkg, "index.html"))
	if err != nil {
		t.Fatalf("reading page for %s: %v", pkg, err)
	}
	return string(data)
}

func TestURL(t *testing.T) {
	idx, _ := newIndex(t)
	u := idx.URL()
	if !strings.HasPrefix(u, "file://") {
		t.Errorf("URL() = %s, expected a file URI", u)
	}
	if !strings.HasSuffix(u, "/simple/") {
		t.Errorf("URL() = %s, expected exactly one trailing slash after simple", u)
	}
	if strings.HasSuffix(u, "//") {
		t.Errorf("URL() = %s, has a doubled trailing slash", u)
	}
}

func TestPackageDirNormalization(t *testing.T) {
	idx, fs := newIndex(t)
	first, err := idx.PackageDir("My.Pkg")
	if err != nil {
		t.Fatalf("PackageDir(My.Pkg) = %v, want nil", err)
	}
	for _, variant := range []string{"my_pkg", "MY-PKG", "my-pkg"} {
		dir, err := idx.PackageDir(variant)
		if err != nil {
			t.Fatalf("PackageDir(%s) = %v, want nil", variant, err)
		}
		if dir != first {
			t.Errorf("PackageDir(%s) = %s, expected %s", variant, dir, first)
		}
	}
	if _, err := fs.Stat(fs.Join("index", "simple", "my-pkg")); err != nil {
		t.Errorf("normalized directory missing: %v", err)
	}
}

func TestAddPackage(t *testing.T) {
	idx, fs := newIndex(t)
	if err := idx.AddPackage("demo-pkg", "1.0.0", "2024-03-24T00:00:00Z"); err != nil {
		t.Fatalf("AddPackage() = %v, want nil", err)
	}
	page := readPage(t, fs, "demo-pkg")
	matches := anchorRE.FindAllStringSubmatch(page, -1)
	if len(matches) != 1 {
		t.Fatalf("page has %d anchors, expected 1: %s", len(matches), page)
	}
	href, uploadTime, text := matches[0][1], matches[0][2], matches[0][3]
	wantPrefix := "demo_pkg-1.0.0-py3-none-any.whl#sha256="
	if !strings.HasPrefix(href, wantPrefix) {
		t.Errorf("href = %s, expected prefix %s", href, wantPrefix)
	}
	if fragment := href[len(wantPrefix):]; !regexp.MustCompile(`^[0-9a-f]{64}$`).MatchString(fragment) {
		t.Errorf("sha256 fragment = %q, expected 64 hex characters", fragment)
	}
	if uploadTime != "2024-03-24T00:00:00Z" {
		t.Errorf("data-upload-time = %s, expected the time passed in", uploadTime)
	}
	if text != "demo_pkg-1.0.0-py3-none-any.whl" {
		t.Errorf("anchor text = %s, expected the wheel filename", text)
	}
	if _, err := fs.Stat(fs.Join("index", "simple", "demo-pkg", "demo_pkg-1.0.0-py3-none-any.whl")); err != nil {
		t.Errorf("wheel not written next to the page: %v", err)
	}
}

func TestAddLockedPackageWheel(t *testing.T) {
	idx, fs := newIndex(t)
	err := idx.AddLockedPackage(uvlock.Package{
		Name:    "coverage",
		Version: "7.0.0",
		Wheels: []uvlock.Artifact{{
			URL:        "https://x/coverage-7.0.0.whl",
			Hash:       "sha256:aaaa",
			UploadTime: "2022-12-18T19:20:00.000Z",
		}},
	})
	if err != nil {
		t.Fatalf("AddLockedPackage() = %v, want nil", err)
	}
	page := readPage(t, fs, "coverage")
	want := `<a href="https://x/coverage-7.0.0.whl#sha256=aaaa" data-upload-time="2022-12-18T19:20:00.000Z">coverage-7.0.0.whl</a>`
	if !strings.Contains(page, want) {
		t.Errorf("page = %s, expected to contain %s", page, want)
	}
	// Lock-sourced entries must not materialize any local archive.
	entries, err := fs.ReadDir(fs.Join("index", "simple", "coverage"))
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	if diff := cmp.Diff([]string{"index.html"}, names); diff != "" {
		t.Errorf("package dir contents mismatch (-want +got):\n%s", diff)
	}
}

func TestAddLockedPackageSdistFallback(t *testing.T) {
	idx, fs := newIndex(t)
	err := idx.AddLockedPackage(uvlock.Package{
		Name:  "attrs",
		Sdist: &uvlock.Artifact{URL: "https://x/attrs-23.1.0.tar.gz", Hash: "sha256:cccc"},
	})
	if err != nil {
		t.Fatalf("AddLockedPackage() = %v, want nil", err)
	}
	page := readPage(t, fs, "attrs")
	if !strings.Contains(page, `href="https://x/attrs-23.1.0.tar.gz#sha256=cccc"`) {
		t.Errorf("page = %s, expected the sdist link", page)
	}
}

func TestAddLockedPackageVirtualNoOp(t *testing.T) {
	idx, fs := newIndex(t)
	if err := idx.AddLockedPackage(uvlock.Package{Name: "repo-template", Version: "0.1.0"}); err != nil {
		t.Fatalf("AddLockedPackage() on virtual package = %v, want nil", err)
	}
	if _, err := fs.Stat(fs.Join("index", "simple", "repo-template")); !os.IsNotExist(err) {
		t.Errorf("virtual package created a directory, Stat err = %v", err)
	}
}

func TestAddLockedPackageShapeErrors(t *testing.T) {
	tests := []struct {
		test string
		pkg  uvlock.Package
	}{
		{
			test: "missing-name",
			pkg:  uvlock.Package{Wheels: []uvlock.Artifact{{URL: "https://x/a.whl", Hash: "sha256:aa"}}},
		},
		{
			test: "missing-url",
			pkg:  uvlock.Package{Name: "a", Wheels: []uvlock.Artifact{{Hash: "sha256:aa"}}},
		},
		{
			test: "missing-hash",
			pkg:  uvlock.Package{Name: "a", Wheels: []uvlock.Artifact{{URL: "https://x/a.whl"}}},
		},
	}
	for _, test := range tests {
		idx, _ := newIndex(t)
		if err := idx.AddLockedPackage(test.pkg); err == nil {
			t.Errorf("%s: AddLockedPackage() = nil, want error", test.test)
		}
	}
}

func TestAppendOrdering(t *testing.T) {
	idx, fs := newIndex(t)
	if err := idx.AddPackage("coverage", "8.0.0", "2024-03-24T00:00:00Z"); err != nil {
		t.Fatal(err)
	}
	err := idx.AddLockedPackage(uvlock.Package{
		Name:   "coverage",
		Wheels: []uvlock.Artifact{{URL: "https://x/coverage-7.0.0.whl", Hash: "sha256:aaaa", UploadTime: "2022-12-18T19:20:00.000Z"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	page := readPage(t, fs, "coverage")
	matches := anchorRE.FindAllStringSubmatch(page, -1)
	if len(matches) != 2 {
		t.Fatalf("page has %d anchors, expected 2: %s", len(matches), page)
	}
	if got := matches[0][3]; got != "coverage-8.0.0-py3-none-any.whl" {
		t.Errorf("first anchor text = %s, expected the built wheel", got)
	}
	if got := matches[1][3]; got != "coverage-7.0.0.whl" {
		t.Errorf("second anchor text = %s, expected the locked wheel", got)
	}
}

func TestRenderPageDeterministic(t *testing.T) {
	links := []Link{
		{Href: "a.whl", SHA256: "aa", UploadTime: "2024-01-01T00:00:00Z", Text: "a.whl"},
		{Href: "https://x/b.whl", SHA256: "bb", UploadTime: "", Text: "b.whl"},
	}
	first := renderPage(links)
	second := renderPage(links)
	if first != second {
		t.Errorf("renderPage() not deterministic:\n%s\n%s", first, second)
	}
	expected := `<html><body><a href="a.whl#sha256=aa" data-upload-time="2024-01-01T00:00:00Z">a.whl</a>` + "\n" +
		`<a href="https://x/b.whl#sha256=bb" data-upload-time="">b.whl</a></body></html>`
	if first != expected {
		t.Errorf("renderPage() = %s, expected %s", first, expected)
	}
}

func TestRenderPageEmpty(t *testing.T) {
	if got := renderPage(nil); got != "<html><body></body></html>" {
		t.Errorf("renderPage(nil) = %s", got)
	}
}

func TestRerenderReplacesPage(t *testing.T) {
	idx, fs := newIndex(t)
	if err := idx.AddPackage("demo-pkg", "1.0.0", "t1"); err != nil {
		t.Fatal(err)
	}
	before := readPage(t, fs, "demo-pkg")
	if err := idx.AddPackage("demo-pkg", "2.0.0", "t2"); err != nil {
		t.Fatal(err)
	}
	after := readPage(t, fs, "demo-pkg")
	if !strings.HasPrefix(before, "<html><body>") || !strings.HasPrefix(after, "<html><body>") {
		t.Fatalf("pages are not whole documents:\n%s\n%s", before, after)
	}
	if got := strings.Count(after, "<a "); got != 2 {
		t.Errorf("rerendered page has %d anchors, expected 2", got)
	}
}
