// Command voicegated bridges an edge voice device to Gemini Live and a
// Home Assistant-shaped smart-home API.
//
// Usage:
//
//	voicegated run [flags]
package main

import (
	"os"

	"github.com/voicegate/gateway/cmd/voicegated/commands"
)

func main() {
	os.Exit(commands.Execute())
}
