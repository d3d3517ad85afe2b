package main

import _ "embed"

// embeddedConfig holds the YAML configuration embedded at build time.
// exporter.yaml is a staging file that build scripts overwrite with the
// target host's configuration before compiling.
//
//go:embed exporter.yaml
var embeddedConfig []byte
