package main

import (
	"os"

	"github.com/urfave/cli"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "visbench"
	app.Usage = "run the visibility and batching pipeline over a synthetic scene"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable debug logging",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "run",
			Usage: "simulate a camera orbit and report per-frame statistics",
			Description: `
Scatter objects in a cube around the origin, orbit a camera through them and
run culling, LOD selection, instancing and batching every frame.

Occlusion queries are answered one frame late by a simulated readback that
treats everything behind a wall at the scene center as hidden.`,
			Flags: []cli.Flag{
				cli.IntFlag{Name: "objects", Value: 10000, Usage: "number of objects"},
				cli.IntFlag{Name: "meshes", Value: 4, Usage: "number of distinct meshes"},
				cli.IntFlag{Name: "materials", Value: 8, Usage: "number of distinct materials"},
				cli.IntFlag{Name: "frames", Value: 60, Usage: "frames to simulate"},
				cli.IntFlag{Name: "workers", Value: 0, Usage: "frustum culling workers, 0 culls inline"},
				cli.IntFlag{Name: "leaf", Value: 16, Usage: "bvh leaf threshold"},
				cli.IntFlag{Name: "max-queries", Value: 1024, Usage: "occlusion query pool size"},
				cli.IntFlag{Name: "retest", Value: 5, Usage: "occlusion retest interval in frames"},
				cli.IntFlag{Name: "width", Value: 1920, Usage: "viewport width"},
				cli.IntFlag{Name: "height", Value: 1080, Usage: "viewport height"},
				cli.BoolFlag{Name: "merge-materials", Usage: "instance across materials with per-instance overrides"},
				cli.BoolFlag{Name: "no-occlusion", Usage: "disable occlusion culling"},
				cli.BoolFlag{Name: "no-lod", Usage: "disable LOD selection"},
				cli.Int64Flag{Name: "seed", Value: 1, Usage: "scene random seed"},
			},
			Action: runBench,
		},
	}
	return app
}
