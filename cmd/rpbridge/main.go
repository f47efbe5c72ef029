// Command rpbridge talks the Remote Port protocol over a byte stream. It can
// serve a memory and a GPIO bank to a peer, or connect to a peer and issue
// single bus operations.
package main

import (
	"os"

	"github.com/tebeka/atexit"
)

func main() {
	err := newRootCmd(os.Stdout).Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
