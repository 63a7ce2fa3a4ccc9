// Command clawbridge is the entrypoint binary: it delegates straight to the
// cobra root command wired in cmd.
package main

import "github.com/nextlevelbuilder/clawbridge/cmd"

func main() {
	cmd.Execute()
}
