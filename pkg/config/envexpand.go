package config

import (
	"os"
	"regexp"
)

var envRef = regexp.MustCompile(`\{\{\s*\.([A-Z_][A-Z0-9_]*)\s*\}\}`)

// ExpandEnv expands {{.VAR_NAME}} references to environment variables in
// YAML content. Only upper-case names are references: record templates such
// as "{{.Metadata}}" and shell-style $VAR or ${VAR} pass through untouched.
//
// Missing variables expand to the empty string; validation catches
// required fields left empty.
func ExpandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(ref []byte) []byte {
		name := envRef.FindSubmatch(ref)[1]
		return []byte(os.Getenv(string(name)))
	})
}
