// Command secobj builds and inspects object containers whose code sections
// are encrypted per component.
package main

import (
	"os"

	"github.com/golang/glog"

	"github.com/absfs/secobj/cmd/secobj/cmd"
)

func main() {
	defer glog.Flush()
	if err := cmd.NewCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
