// Command displaz-info loads geometry files through the factory and reports
// what a viewer would see: counts, offset, centroid, bounds, and optionally
// the incremental draw convergence at a given quality. With -watch it keeps
// running and reloads files as they change.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"

	"github.com/peterdachuan/displaz/pkg/geometry"
	_ "github.com/peterdachuan/displaz/pkg/geometry/pointcloud"
	_ "github.com/peterdachuan/displaz/pkg/geometry/trimesh"
	"github.com/peterdachuan/displaz/pkg/render"
	"github.com/peterdachuan/displaz/pkg/watcher"
)

func main() {
	budget := flag.Int("budget", 5_000_000, "maximum vertex count to load per file")
	quality := flag.Float64("quality", 1.0, "draw quality for -frames")
	frames := flag.Bool("frames", false, "simulate incremental draw convergence")
	watch := flag.Bool("watch", false, "keep running and reload files on change")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: displaz-info [flags] file.xyz [file.ply ...]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var watchers []*watcher.Watcher
	failed := false
	for _, fileName := range flag.Args() {
		g, err := inspect(ctx, fileName, *budget, *quality, *frames)
		if err != nil {
			logrus.WithError(err).WithField("file", fileName).Error("load failed")
			failed = true
			continue
		}
		if *watch {
			w, err := watcher.New(g, *budget)
			if err != nil {
				logrus.WithError(err).Error("watch failed")
				failed = true
				continue
			}
			go w.Run(ctx)
			watchers = append(watchers, w)
		}
	}

	if *watch && len(watchers) > 0 {
		logrus.Info("watching for changes, ctrl-c to exit")
		<-ctx.Done()
		for _, w := range watchers {
			w.Close()
		}
	}
	if failed {
		os.Exit(1)
	}
}

func inspect(ctx context.Context, fileName string, budget int, quality float64, frames bool) (geometry.Geometry, error) {
	g, err := geometry.Create(fileName)
	if err != nil {
		return nil, err
	}

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription(fileName),
		progressbar.OptionClearOnFinish(),
	)
	g.AddObserver(geometry.ObserverFuncs{
		StepStarted: func(desc string) { bar.Describe(desc) },
		Progress:    func(pct int) { bar.Set(pct) },
	})

	if err := g.LoadFile(ctx, fileName, budget); err != nil {
		return nil, err
	}

	bbox := g.BoundingBox()
	fmt.Printf("%s\n", fileName)
	fmt.Printf("  points:   %d\n", g.PointCount())
	fmt.Printf("  offset:   (%.3f, %.3f, %.3f)\n", g.Offset().X, g.Offset().Y, g.Offset().Z)
	fmt.Printf("  centroid: (%.3f, %.3f, %.3f)\n", g.Centroid().X, g.Centroid().Y, g.Centroid().Z)
	size := bbox.Max.Sub(bbox.Min)
	fmt.Printf("  bounds:   %.3f x %.3f x %.3f\n", size.X, size.Y, size.Z)

	if frames {
		reportConvergence(g, quality)
	}
	return g, nil
}

// reportConvergence runs the viewer's incremental frame loop against a
// counting program and compares the total against the up-front estimate.
func reportConvergence(g geometry.Geometry, quality float64) {
	trans := render.NewTransformState(1920, 1080).Translated(g.Offset())
	est := g.EstimateCost(trans, false, []float64{quality})[0]

	prog := &render.CountingProgram{}
	total := geometry.DrawCount{}
	frameCount := 0
	for {
		dc := g.DrawPoints(prog, trans, quality, frameCount > 0)
		total.Accumulate(dc)
		frameCount++
		if !dc.MoreToDraw || frameCount > 10000 {
			break
		}
	}
	fmt.Printf("  quality %.2f: %d frame(s), %.0f vertices drawn (estimated %.0f)\n",
		quality, frameCount, total.NumVertices, est.NumVertices)
}
