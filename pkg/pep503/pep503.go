// Copyright 2025 The Repo Template Authors
// SPDX-License-Identifier: Apache-2.0

// Package pep503 implements the package name normalization rules used by
// simple repository indexes.
//
// PyPI treats package names as case-insensitive and considers hyphens,
// underscores, and periods equivalent: "foo-bar", "foo_bar", and "Foo.Bar"
// all refer to the same project.
//
// Reference: https://packaging.python.org/en/latest/specifications/name-normalization/
package pep503

import (
	"regexp"
	"strings"
)

var separatorRuns = regexp.MustCompile(`[-_.]+`)

// Normalize canonicalizes a package name according to PEP 503: runs of
// hyphens, underscores, and periods collapse to a single hyphen and the
// result is lowercased. Normalize is idempotent.
func Normalize(name string) string {
	return strings.ToLower(separatorRuns.ReplaceAllString(name, "-"))
}

// DistName converts a package name into the distribution name embedded in
// wheel filenames and .dist-info directory names. This is a narrower rule
// than Normalize and must not be conflated with it: only hyphens are
// rewritten, and only to underscores.
func DistName(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}
