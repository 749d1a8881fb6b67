package prompt

import (
	_ "embed"
)

//go:embed personas/default.md
var defaultPersona []byte

// Default loads the embedded persona definition.
func Default() (*Persona, error) {
	return Load("embedded:default", defaultPersona)
}
