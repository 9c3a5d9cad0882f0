// Package cmd contains the shared command line rendering helpers.
package cmd

import (
	"strings"
)

// FormatSection properly indents a text section for cobra help output.
func FormatSection(header string, content string) string {
	out := ""

	if header != "" {
		out += header + ":\n"
	}

	for _, line := range strings.Split(content, "\n") {
		if line != "" {
			out += "  "
		}

		out += line + "\n"
	}

	if header != "" {
		out += "\n"
	} else {
		out = strings.TrimSuffix(out, "\n")
	}

	return out
}
