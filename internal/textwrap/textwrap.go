// Copyright 2025 The Repo Template Authors
// SPDX-License-Identifier: Apache-2.0

// Package textwrap mirrors the parts of Python's textwrap module used to
// author indented multi-line literals.
package textwrap

import (
	"strings"
)

// Dedent strips the longest run of leading tabs and spaces common to every
// non-blank line. Blank lines are reduced to empty strings and do not
// participate in computing the common prefix.
func Dedent(text string) string {
	lines := strings.Split(text, "\n")
	margin, found := "", false
	for _, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		if trimmed == "" {
			continue
		}
		indent := line[:len(line)-len(trimmed)]
		if !found {
			margin, found = indent, true
			continue
		}
		margin = commonPrefix(margin, indent)
	}
	for n, line := range lines {
		if strings.TrimLeft(line, " \t") == "" {
			lines[n] = ""
		} else {
			lines[n] = strings.TrimPrefix(line, margin)
		}
	}
	return strings.Join(lines, "\n")
}

func commonPrefix(a, b string) string {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return a[:i]
		}
	}
	return a[:n]
}
