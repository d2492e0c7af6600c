package main

import (
	"github.com/gekko3d/vispipe"
	"github.com/urfave/cli"
)

// setupLogging enables pipeline debug output with -v. -vv also traces every
// frame.
func setupLogging(ctx *cli.Context) vispipe.Logger {
	return vispipe.NewDefaultLogger("visbench", ctx.GlobalBool("v") || ctx.GlobalBool("vv"))
}
