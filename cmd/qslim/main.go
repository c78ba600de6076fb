// Command qslim reads a PLY mesh, optionally smooths it, runs parallel
// quadric edge-collapse simplification, and writes the result back out as
// PLY. Flags are parsed with the standard library's flag package with
// manual long/short aliasing (spec §6) -- no CLI framework appears
// anywhere in the example pack, so this is a documented standard-library
// choice (DESIGN.md), not a default.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/Zielon/ParallelQSlim/internal/ply"
	"github.com/Zielon/ParallelQSlim/internal/qlog"
	"github.com/Zielon/ParallelQSlim/internal/qslim"
	"github.com/Zielon/ParallelQSlim/internal/quadric"
	"github.com/Zielon/ParallelQSlim/internal/simplify"
	"github.com/Zielon/ParallelQSlim/internal/smooth"
)

type config struct {
	in             string
	out            string
	force          bool
	smoothPass     bool
	weight         int
	reduction      float64
	maxIter        int
	threads        int
	quadric        int
	clusters       int
	attributes     int
	aggressiveness float64
	verbose        bool
}

func parseFlags(args []string) (config, error) {
	var c config
	fs := flag.NewFlagSet("qslim", flag.ContinueOnError)

	addIntAlias := func(long, short string, def int, usage string) *int {
		v := fs.Int(long, def, usage)
		fs.IntVar(v, short, def, usage+" (shorthand)")
		return v
	}
	addFloatAlias := func(long, short string, def float64, usage string) *float64 {
		v := fs.Float64(long, def, usage)
		fs.Float64Var(v, short, def, usage+" (shorthand)")
		return v
	}
	addBoolAlias := func(long, short string, usage string) *bool {
		v := fs.Bool(long, false, usage)
		fs.BoolVar(v, short, false, usage+" (shorthand)")
		return v
	}

	in := fs.String("in", "", "input PLY path")
	out := fs.String("out", "", "output PLY path")
	force := addBoolAlias("force", "f", "overwrite the output path if it already exists")
	smoothPass := addBoolAlias("smooth", "s", "run a Taubin smoothing pre-pass before simplification")
	weight := addIntAlias("weight", "w", 1, "quadric weighting: 0=none, 1=area")
	reduction := addFloatAlias("reduction", "r", 0, "target percent of original vertices remaining, 0=disabled")
	maxIter := addIntAlias("max-iter", "i", 8, "maximum outer partition/contract rounds")
	threads := addIntAlias("threads", "t", 4, "worker goroutines per round")
	quadricFlavour := addIntAlias("quadric", "q", 3, "quadric flavour: 3, 6, or 9")
	clusters := addIntAlias("clusters", "c", 2, "partition factor f; the mesh is split into f*f*f cells")
	attributes := addIntAlias("attributes", "m", 1, "output PLY layout: 1=geometry, 2=geometry_color_normal")
	aggressiveness := addFloatAlias("aggressiveness", "a", 7, "error-threshold growth exponent, in [1, 10]")
	verbose := addBoolAlias("verbose", "v", "enable per-iteration progress logging")

	if err := fs.Parse(args); err != nil {
		return c, err
	}

	c = config{
		in: *in, out: *out, force: *force, smoothPass: *smoothPass,
		weight: *weight, reduction: *reduction, maxIter: *maxIter,
		threads: *threads, quadric: *quadricFlavour, clusters: *clusters,
		attributes: *attributes, aggressiveness: *aggressiveness, verbose: *verbose,
	}
	if c.in == "" || c.out == "" {
		return c, fmt.Errorf("qslim: --in and --out are required")
	}
	return c, nil
}

func flavourOf(n int) (quadric.Flavour, error) {
	switch n {
	case 3:
		return quadric.Q3, nil
	case 6:
		return quadric.Q6, nil
	case 9:
		return quadric.Q9, nil
	default:
		return 0, fmt.Errorf("qslim: unknown quadric flavour %d (want 3, 6, or 9)", n)
	}
}

func weightOf(n int) (qslim.WeightMode, error) {
	switch n {
	case 0:
		return qslim.WeightNone, nil
	case 1:
		return qslim.WeightArea, nil
	default:
		return 0, fmt.Errorf("qslim: unknown weight mode %d (want 0 or 1)", n)
	}
}

func layoutOf(n int) (ply.Layout, error) {
	switch n {
	case 1:
		return ply.Geometry, nil
	case 2:
		return ply.GeometryColorNormal, nil
	default:
		return 0, fmt.Errorf("qslim: unknown attributes selector %d (want 1 or 2)", n)
	}
}

func run(c config, logger *qlog.Logger) error {
	if !c.force {
		if _, err := os.Stat(c.out); err == nil {
			return fmt.Errorf("qslim: %s already exists, pass --force/-f to overwrite", c.out)
		}
	}

	outputLayout, err := layoutOf(c.attributes)
	if err != nil {
		return err
	}

	in, err := os.Open(c.in)
	if err != nil {
		return fmt.Errorf("qslim: opening input: %w", err)
	}
	defer in.Close()

	// The PLY reader still auto-detects the input layout from the binary
	// header's declared properties -- that is a physical fact about the
	// bytes on disk, not a choice the caller can override -- while
	// --attributes/-m chooses what the writer emits.
	m, inputLayout, err := ply.Read(in)
	if err != nil {
		return fmt.Errorf("qslim: reading mesh: %w", err)
	}
	logger.Printf("read %d vertices, %d faces (layout %s)", m.VertexCount(), m.FaceCount(), inputLayout)

	if c.smoothPass {
		opts := smooth.DefaultOptions()
		smooth.Run(m, opts)
		logger.Printf("smoothed mesh over %d iterations", opts.Iterations)
	}

	flavour, err := flavourOf(c.quadric)
	if err != nil {
		return err
	}
	weight, err := weightOf(c.weight)
	if err != nil {
		return err
	}

	logger.SetVerbose(c.verbose)

	s := simplify.New(m, simplify.Options{
		MaxIterations:  c.maxIter,
		Clusters:       c.clusters,
		NumWorkers:     c.threads,
		Reduction:      c.reduction,
		Aggressiveness: c.aggressiveness,
		Flavour:        flavour,
		Weight:         weight,
	}, logger)

	report, err := s.Run(context.Background())
	if err != nil {
		return fmt.Errorf("qslim: simplification failed: %w", err)
	}
	logger.Printf("done: %d->%d faces, %d->%d vertices over %d iterations in %s",
		report.StartFaces, report.EndFaces, report.StartVertices, report.EndVertices,
		len(report.Iterations), report.Elapsed)

	out, err := os.Create(c.out)
	if err != nil {
		return fmt.Errorf("qslim: creating output: %w", err)
	}
	defer out.Close()

	if err := ply.Write(out, m, outputLayout); err != nil {
		return fmt.Errorf("qslim: writing mesh: %w", err)
	}
	return nil
}

func main() {
	c, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := qlog.Default()
	if err := run(c, logger); err != nil {
		logger.Printf("%v", err)
		os.Exit(1)
	}
}
