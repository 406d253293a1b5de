// Command compositor computes moving-window composites and cover series from
// records files without running the API server.
package main

import (
	"os"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
