package jack

import (
	_ "embed"
	"encoding/json"
	"fmt"
)

// StandardLibraryABI holds the call signatures of the eight built-in Jack OS
// classes (Math, String, Array, Output, Screen, Keyboard, Memory, Sys).
// Their implementations are out of scope (see spec's Non-goals), but the
// compiler still needs these signatures to resolve and type-check calls
// into them without ever seeing their source.
//
//go:embed stdlib.json
var content string

var StandardLibraryABI = map[string]Class{}

func init() {
	if err := json.Unmarshal([]byte(content), &StandardLibraryABI); err != nil {
		panic(fmt.Sprintf("unable to parse embedded stdlib.json: %v", err))
	}
}
