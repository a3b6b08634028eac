package main

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cwbudde/algo-tubeamp/amp"
	"github.com/cwbudde/algo-tubeamp/analysis"
	"github.com/cwbudde/mayfly"
)

type optimizationConfig struct {
	input              []float64
	reference          []float64
	baseParams         *amp.Params
	defs               []knobDef
	initCandidate      candidate
	sampleRate         int
	seed               int64
	timeBudget         float64
	maxEvals           int
	reportEvery        int
	checkpointEvery    int
	mayflyVariant      string
	mayflyPop          int
	mayflyRoundEvals   int
	workers            int
	outputPreset       string
	reportPath         string
	inputPath          string
	referencePath      string
	presetPath         string
	writeBestCandidate string
}

type optimizationResult struct {
	best        candidate
	bestMetrics analysis.Metrics
	evals       int
	elapsed     float64
	checkpoints int
}

// fitRun is the state shared by all workers of one optimization.
type fitRun struct {
	cfg      *optimizationConfig
	variant  string
	start    time.Time
	deadline time.Time

	evals  evalCounter
	rounds atomic.Int64

	mu          sync.Mutex
	best        candidate
	bestMetrics analysis.Metrics
	improves    int64
	checkpoints int

	// persistMu serializes WAV and preset writes; persisted is the last
	// improvement written.
	persistMu sync.Mutex
	persisted int64
}

// improvement is a snapshot of the best candidate taken when it changed.
type improvement struct {
	seq     int64
	best    candidate
	metrics analysis.Metrics
}

// renderer owns one amplifier and an output buffer. It is not safe for
// concurrent use; each worker creates its own.
type renderer struct {
	amp  *amp.Amplifier
	defs []knobDef
	out  []float64
}

func newRenderer(base *amp.Params, defs []knobDef, sampleRate int, frames int) (*renderer, error) {
	a, err := amp.NewAmplifier(sampleRate, base)
	if err != nil {
		return nil, err
	}
	return &renderer{amp: a, defs: defs, out: make([]float64, frames)}, nil
}

// render resets the amplifier, applies the candidate knobs and processes in.
// The returned slice is reused by the next call.
func (r *renderer) render(in []float64, c candidate) []float64 {
	r.amp.Reset()
	for i, d := range r.defs {
		if i >= len(c.Vals) {
			break
		}
		switch d.Name {
		case "gain":
			r.amp.SetGain(c.Vals[i])
		case "bass":
			r.amp.SetBass(c.Vals[i])
		case "treble":
			r.amp.SetTreble(c.Vals[i])
		case "master":
			r.amp.SetMaster(c.Vals[i])
		}
	}
	if len(r.out) < len(in) {
		r.out = make([]float64, len(in))
	}
	out := r.out[:len(in)]
	r.amp.ProcessBlock(out, in)
	return out
}

func (r *renderer) evaluate(cfg *optimizationConfig, c candidate) analysis.Metrics {
	return analysis.Compare(cfg.reference, r.render(cfg.input, c), cfg.sampleRate)
}

func runOptimization(cfg *optimizationConfig) (*optimizationResult, error) {
	run := &fitRun{
		cfg:     cfg,
		variant: strings.ToLower(cfg.mayflyVariant),
		start:   time.Now(),
	}
	run.deadline = run.start.Add(time.Duration(cfg.timeBudget * float64(time.Second)))
	if _, ok := mayflyVariants[run.variant]; !ok {
		return nil, fmt.Errorf("unsupported mayfly variant %q", cfg.mayflyVariant)
	}

	first, err := newRenderer(cfg.baseParams, cfg.defs, cfg.sampleRate, len(cfg.input))
	if err != nil {
		return nil, fmt.Errorf("initial evaluation failed: %w", err)
	}
	run.best = cloneCandidate(cfg.initCandidate)
	run.bestMetrics = first.evaluate(cfg, run.best)
	run.evals.Store(1)
	fmt.Printf("Start score=%.4f similarity=%.2f%%\n", run.bestMetrics.Score, run.bestMetrics.Similarity*100.0)

	workers := cfg.workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	workers = max(workers, 1)

	renderers := []*renderer{first}
	for i := 1; i < workers; i++ {
		r, err := newRenderer(cfg.baseParams, cfg.defs, cfg.sampleRate, len(cfg.input))
		if err != nil {
			return nil, fmt.Errorf("worker %d setup failed: %w", i, err)
		}
		renderers = append(renderers, r)
	}

	var wg sync.WaitGroup
	for _, r := range renderers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run.work(r)
		}()
	}
	wg.Wait()

	run.mu.Lock()
	defer run.mu.Unlock()
	return &optimizationResult{
		best:        cloneCandidate(run.best),
		bestMetrics: run.bestMetrics,
		evals:       int(run.evals.Load()),
		elapsed:     time.Since(run.start).Seconds(),
		checkpoints: run.checkpoints,
	}, nil
}

func (run *fitRun) exhausted() bool {
	return time.Now().After(run.deadline) || run.evals.Load() >= int64(run.cfg.maxEvals)
}

// work runs mayfly rounds with r until the time or eval budget is spent.
func (run *fitRun) work(r *renderer) {
	for !run.exhausted() {
		round := int(run.rounds.Add(1))
		remaining := run.cfg.maxEvals - int(run.evals.Load())
		if remaining <= 0 {
			return
		}
		iters := max(1, min(run.cfg.mayflyRoundEvals, remaining)/(2*run.cfg.mayflyPop))

		mc, err := newMayflyConfig(run.variant, run.cfg.mayflyPop, len(run.cfg.defs), iters)
		if err != nil {
			fmt.Fprintf(os.Stderr, "mayfly round %d setup failed: %v\n", round, err)
			return
		}
		mc.Rand = rand.New(rand.NewSource(run.cfg.seed + int64(round)*7919))
		mc.ObjectiveFunc = run.objective(r, round)
		if _, err := runMayfly(mc); err != nil {
			fmt.Fprintf(os.Stderr, "mayfly round %d failed: %v\n", round, err)
		}
	}
}

// objective scores one normalized position. Positions arriving after the
// budget is spent score worse than the current best so mayfly winds down.
func (run *fitRun) objective(r *renderer, round int) func([]float64) float64 {
	return func(pos []float64) float64 {
		if time.Now().After(run.deadline) {
			return run.bestScore() + 1.0
		}
		evalNum, ok := run.evals.reserve(run.cfg.maxEvals)
		if !ok {
			return run.bestScore() + 1.0
		}

		cand := fromNormalized(pos, run.cfg.defs)
		m := r.evaluate(run.cfg, cand)
		if math.IsNaN(m.Score) {
			return run.bestScore() + 0.8
		}

		imp, improved := run.record(cand, m)
		if improved {
			fmt.Printf("Improved #%d eval=%d score=%.4f sim=%.2f%%\n", imp.seq, evalNum, m.Score, m.Similarity*100.0)
			run.persist(imp)
		}
		if evalNum%int64(run.cfg.reportEvery) == 0 {
			fmt.Printf("Progress round=%d eval=%d elapsed=%.1fs best=%.4f\n", round, evalNum, time.Since(run.start).Seconds(), run.bestScore())
		}
		return m.Score
	}
}

// record keeps cand if it beats the best so far.
func (run *fitRun) record(cand candidate, m analysis.Metrics) (improvement, bool) {
	run.mu.Lock()
	defer run.mu.Unlock()
	if m.Score >= run.bestMetrics.Score {
		return improvement{}, false
	}
	run.best = cloneCandidate(cand)
	run.bestMetrics = m
	run.improves++
	return improvement{seq: run.improves, best: cloneCandidate(cand), metrics: m}, true
}

// persist writes the snapshot WAV and, every checkpointEvery improvements,
// the preset and report. Snapshots older than the last persisted one are
// dropped.
func (run *fitRun) persist(imp improvement) {
	run.persistMu.Lock()
	defer run.persistMu.Unlock()
	if imp.seq <= run.persisted {
		return
	}
	run.persisted = imp.seq

	if run.cfg.writeBestCandidate != "" {
		if err := writeBestCandidateSnapshot(run.cfg, imp.best); err != nil {
			fmt.Fprintf(os.Stderr, "failed to update best candidate wav: %v\n", err)
		}
	}
	if imp.seq%int64(run.cfg.checkpointEvery) != 0 {
		return
	}

	run.mu.Lock()
	n := run.checkpoints + 1
	run.mu.Unlock()
	if err := writeOutputs(run.cfg, time.Since(run.start).Seconds(), int(run.evals.Load()), imp.best, imp.metrics, n); err != nil {
		fmt.Fprintf(os.Stderr, "checkpoint write failed: %v\n", err)
		return
	}
	run.mu.Lock()
	run.checkpoints = max(run.checkpoints, n)
	run.mu.Unlock()
}

func (run *fitRun) bestScore() float64 {
	run.mu.Lock()
	defer run.mu.Unlock()
	return run.bestMetrics.Score
}

// evalCounter hands out evaluation numbers up to a limit.
type evalCounter struct {
	atomic.Int64
}

// reserve claims the next evaluation number, or reports false once limit
// evaluations have been claimed.
func (c *evalCounter) reserve(limit int) (int64, bool) {
	for {
		cur := c.Load()
		if cur >= int64(limit) {
			return 0, false
		}
		if c.CompareAndSwap(cur, cur+1) {
			return cur + 1, true
		}
	}
}

func cloneCandidate(c candidate) candidate {
	return candidate{Vals: append([]float64(nil), c.Vals...)}
}

var mayflyVariants = map[string]func() *mayfly.Config{
	"ma":      mayfly.NewDefaultConfig,
	"desma":   mayfly.NewDESMAConfig,
	"olce":    mayfly.NewOLCEConfig,
	"eobbma":  mayfly.NewEOBBMAConfig,
	"gsasma":  mayfly.NewGSASMAConfig,
	"mpma":    mayfly.NewMPMAConfig,
	"aoblmoa": mayfly.NewAOBLMOAConfig,
}

// newMayflyConfig searches the unit cube with pop males and pop females.
func newMayflyConfig(variant string, pop int, dims int, iters int) (*mayfly.Config, error) {
	ctor, ok := mayflyVariants[variant]
	if !ok {
		return nil, fmt.Errorf("unsupported variant %q", variant)
	}
	cfg := ctor()
	cfg.ProblemSize = dims
	cfg.LowerBound = 0.0
	cfg.UpperBound = 1.0
	cfg.MaxIterations = iters
	cfg.NPop = pop
	cfg.NPopF = pop
	// Offspring count must cover pop parent pairs.
	cfg.NC = 2 * pop
	cfg.NM = max(1, int(math.Round(0.05*float64(pop))))
	return cfg, nil
}

// runMayfly turns a panic inside the optimizer into an error.
func runMayfly(cfg *mayfly.Config) (_ *mayfly.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mayfly panic: %v", r)
		}
	}()
	return mayfly.Optimize(cfg)
}
