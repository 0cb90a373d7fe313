package main

import (
	"os"

	"github.com/practicekit/sprucesync/syncservice"
)

func main() {
	if err := syncservice.Run(); err != nil {
		os.Exit(1)
	}
}
