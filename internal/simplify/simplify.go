// Package simplify drives the outer parallel-simplification loop:
// recompute the global error threshold, repartition, hand one cluster to
// each pool worker, let every worker contract edges independently until its
// heap is exhausted or costs exceed the threshold, join, compact, and
// repeat until the reduction target is met, the iteration budget (extended
// one round at a time up to twice its base) runs out, or a round makes no
// progress. Grounded on
// the teacher's fixed-size WaitGroup/channel worker pool
// (renderer_parallel.go) generalised from render tiles to mesh clusters,
// and on original_source/simplify_mesh/src/parallel/parallel_simplifier.h
// for the ten-step outer loop shape.
package simplify

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/Zielon/ParallelQSlim/internal/mesh"
	"github.com/Zielon/ParallelQSlim/internal/partition"
	"github.com/Zielon/ParallelQSlim/internal/qlog"
	"github.com/Zielon/ParallelQSlim/internal/qslim"
	"github.com/Zielon/ParallelQSlim/internal/quadric"
)

// Options configures one simplification run. Zero-value Options is not
// valid; call Validate (or rely on Run calling it) before use.
type Options struct {
	MaxIterations  int     // max-iter: base outer-loop budget, extendable one round at a time up to 2*MaxIterations
	Clusters       int     // clusters: partition factor f; the mesh is split into f*f*f cells
	NumWorkers     int     // threads: goroutine pool size; workers take clusters from a shared queue
	Reduction      float64 // reduction: target percent of original vertices remaining, 0 = disabled
	Aggressiveness float64 // aggressiveness: exponent of the per-iteration error-threshold growth curve, [1, 10]
	Flavour        quadric.Flavour
	Weight         qslim.WeightMode
	Seed           int64 // partition debug-colour seed, for deterministic output
}

// Validate fills in sane defaults and rejects out-of-range values, the
// counterpart of a config-loading layer in the teacher's ambient stack
// (internal/config style mutex-guarded globals are not needed here since
// Options is passed by value, not shared mutable state).
func (o *Options) Validate() error {
	if o.MaxIterations <= 0 {
		o.MaxIterations = 1
	}
	if o.Clusters <= 0 {
		o.Clusters = 1
	}
	if o.NumWorkers <= 0 {
		o.NumWorkers = 1
	}
	if o.Aggressiveness == 0 {
		o.Aggressiveness = 7
	}
	if o.Aggressiveness < 1 || o.Aggressiveness > 10 {
		return fmt.Errorf("simplify: Aggressiveness must be in [1, 10], got %v", o.Aggressiveness)
	}
	if o.Reduction < 0 || o.Reduction > 100 {
		return fmt.Errorf("simplify: Reduction must be in [0, 100], got %v", o.Reduction)
	}
	if o.Flavour != quadric.Q3 && o.Flavour != quadric.Q6 && o.Flavour != quadric.Q9 {
		return fmt.Errorf("simplify: unsupported quadric flavour %d", o.Flavour)
	}
	return nil
}

// IterationStat records one outer-loop round's effect on the mesh.
type IterationStat struct {
	Round          int
	ClustersUsed   int
	FacesBefore    int
	FacesAfter     int
	ContractionsOK int
	ErrorLevel     float64
	StepPercent    float64 // (1 - remaining/previous) * 100
	GlobalPercent  float64 // (remaining/original) * 100
	Elapsed        time.Duration
}

// Report summarises a completed Run.
type Report struct {
	StartFaces    int
	StartVertices int
	EndFaces      int
	EndVertices   int
	Iterations    []IterationStat
	Elapsed       time.Duration
}

// Simplifier owns the mesh and options for one run.
type Simplifier struct {
	Mesh    *mesh.Mesh
	Options Options
	log     *qlog.Logger
}

// New returns a Simplifier ready to run over m.
func New(m *mesh.Mesh, opts Options, logger *qlog.Logger) *Simplifier {
	if logger == nil {
		logger = qlog.Default()
	}
	return &Simplifier{Mesh: m, Options: opts, log: logger}
}

// Run executes the ten-step outer loop of spec §4.7: recompute the error
// threshold, repartition, vote, dispatch, join, compact, then check the
// reduction target and either stop, continue, or extend the iteration
// budget by one round (up to 2*MaxIterations in total). ctx is checked once
// per iteration.
func (s *Simplifier) Run(ctx context.Context) (*Report, error) {
	if err := s.Options.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	report := &Report{
		StartFaces:    s.Mesh.FaceCount(),
		StartVertices: s.Mesh.VertexCount(),
	}
	originalVertices := report.StartVertices
	previousVertices := originalVertices

	partitioner := partition.NewBasicPartitioner(s.Options.Seed)
	clusterTarget := s.Options.Clusters * s.Options.Clusters * s.Options.Clusters

	budget := s.Options.MaxIterations
	maxBudget := 2 * s.Options.MaxIterations

	for iter := 0; iter < budget; iter++ {
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		default:
		}

		roundStart := time.Now()
		facesBefore := s.Mesh.FaceCount()

		// Step 1: the threshold is written before any worker goroutine is
		// spawned so the `go` happens-before edge makes it visible without
		// a mutex (spec §5).
		qslim.ErrorLevel = 1e-9 * math.Pow(float64(iter+3), s.Options.Aggressiveness)

		// Step 2.
		s.Mesh.UpdateBorders()

		// Steps 3-5: partitioning also performs the majority-vote face
		// assignment and records each cluster's AABB (partition.Cluster).
		clusters := partitioner.Partition(s.Mesh, clusterTarget)

		// Steps 6-7: dispatch one task per cluster to a fixed worker pool,
		// join when the queue drains.
		contractions := s.runRound(clusters)

		// Step 8.
		s.Mesh.Update()

		remainingVertices := s.Mesh.VertexCount()
		stepPercent := 0.0
		if previousVertices > 0 {
			stepPercent = (1 - float64(remainingVertices)/float64(previousVertices)) * 100
		}
		globalPercent := 0.0
		if originalVertices > 0 {
			globalPercent = (float64(remainingVertices) / float64(originalVertices)) * 100
		}

		stat := IterationStat{
			Round:          iter,
			ClustersUsed:   len(clusters),
			FacesBefore:    facesBefore,
			FacesAfter:     s.Mesh.FaceCount(),
			ContractionsOK: contractions,
			ErrorLevel:     qslim.ErrorLevel,
			StepPercent:    stepPercent,
			GlobalPercent:  globalPercent,
			Elapsed:        time.Since(roundStart),
		}
		report.Iterations = append(report.Iterations, stat)
		s.log.Debugf("iter %d: %d clusters, %d->%d faces, %d contractions, error-level %.3e, step %.2f%%, global %.2f%% (%s)",
			iter, stat.ClustersUsed, stat.FacesBefore, stat.FacesAfter, stat.ContractionsOK,
			stat.ErrorLevel, stat.StepPercent, stat.GlobalPercent, stat.Elapsed)

		previousVertices = remainingVertices

		// Step 9: threshold/termination update.
		if s.Options.Reduction > 0 {
			if globalPercent < s.Options.Reduction {
				break
			}
			if iter == budget-1 {
				if budget < maxBudget {
					budget++
				} else {
					break
				}
			}
		} else if contractions == 0 {
			// No reduction target configured: a round with zero progress
			// means every remaining edge is above the threshold or
			// cross-cluster, so further iterations cannot help.
			break
		}
	}

	// Step 10.
	s.Mesh.Reindex()

	report.EndFaces = s.Mesh.FaceCount()
	report.EndVertices = s.Mesh.VertexCount()
	report.Elapsed = time.Since(start)
	return report, nil
}

// runRound feeds every cluster to a fixed-size pool of workers, the direct
// generalisation of the teacher's ParallelRenderer worker pool
// (renderer_parallel.go): a buffered job channel, NumWorkers goroutines
// (at most one per cluster) draining it, a WaitGroup to join.
func (s *Simplifier) runRound(clusters []*partition.Cluster) int {
	jobs := make(chan *partition.Cluster, len(clusters))
	for _, c := range clusters {
		jobs <- c
	}
	close(jobs)

	var wg sync.WaitGroup
	var total int64Counter

	workers := s.Options.NumWorkers
	if workers > len(clusters) {
		workers = len(clusters)
	}
	if workers < 1 {
		workers = 1
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for cluster := range jobs {
				if len(cluster.FaceKeys) == 0 {
					continue
				}
				total.add(s.runCluster(cluster))
			}
		}()
	}
	wg.Wait()

	return total.get()
}

// runCluster runs one QSlim instance to completion over a single cluster's
// faces: it drains the heap until it is empty or the next edge's cost
// exceeds the current ERROR_LEVEL, with no externally imposed quota on the
// number of contractions (spec §4.5 step 4's "break" is convergence, not a
// budget).
func (s *Simplifier) runCluster(c *partition.Cluster) int {
	q := qslim.New(s.Mesh, s.Options.Flavour, s.Options.Weight)
	q.CollectQuadrics(c.FaceKeys)
	edges := q.CollectEdges(c.FaceKeys)
	q.BuildHeap(edges)

	done := 0
	for {
		ok, popped := q.ApplyContraction()
		if !popped {
			break
		}
		if ok {
			done++
		}
	}
	return done
}

// int64Counter is a tiny atomic-free counter guarded by the fact that each
// worker only ever calls add from within its own goroutine and get is
// only read after wg.Wait() -- so a plain mutex suffices without needing
// sync/atomic.
type int64Counter struct {
	mu  sync.Mutex
	sum int
}

func (c *int64Counter) add(n int) {
	c.mu.Lock()
	c.sum += n
	c.mu.Unlock()
}

func (c *int64Counter) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sum
}
