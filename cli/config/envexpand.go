// Package config loads the optional bilat.yaml file shared by the serve
// and request commands.
package config

import (
	"os"
	"regexp"
	"strings"
)

// envRef matches ${VAR} and ${VAR:-default}.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv substitutes ${VAR} and ${VAR:-default} references in input.
// A set, non-empty variable wins; otherwise the default is used, and an
// unset variable without a default expands to the empty string. Missing
// values surface later through Config.Validate.
func ExpandEnv(input string) string {
	matches := envRef.FindAllStringSubmatchIndex(input, -1)
	if len(matches) == 0 {
		return input
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(input[last:m[0]])
		name := input[m[2]:m[3]]
		if v := os.Getenv(name); v != "" {
			b.WriteString(v)
		} else if m[4] >= 0 {
			b.WriteString(input[m[4]:m[5]])
		}
		last = m[1]
	}
	b.WriteString(input[last:])
	return b.String()
}
