package main

import (
	"os"

	"k8s.io/klog"

	"github.com/bcaldwell/plaidsync/internal/commands"
)

func main() {
	err := commands.NewRootCommand().Execute()
	klog.Flush()
	if err != nil {
		os.Exit(1)
	}
}
