// Command syterkit-host drives the SyterKit SPL over its UART link: DRAM
// bring-up, memory access and booting a payload directory.
package main

import (
	"flag"
	"os"

	"github.com/golang/glog"
)

func main() {
	// glog registers its flags on the standard set; cobra parses them
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	flag.CommandLine.Parse(nil)

	err := rootCmd.Execute()
	closeClient()
	glog.Flush()
	if err != nil {
		glog.Exitf("%v", err)
	}
	os.Exit(0)
}
