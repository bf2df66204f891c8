package main

import (
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/r-efi/r-efi-alloc/alloc"
	"github.com/r-efi/r-efi-alloc/efi"
	"github.com/r-efi/r-efi-alloc/efi/mempool"
	"github.com/r-efi/r-efi-alloc/global"
)

var (
	stressCapacity   string
	stressClass      string
	stressWorkers    int
	stressIterations int
	stressMaxSize    string
	stressMaxAlign   uint64
	stressSeed       uint64
	stressSkew       bool
)

func init() {
	cmd := newStressCmd()
	cmd.Flags().StringVar(&stressCapacity, "capacity", "16MiB", "Size of the simulated pool")
	cmd.Flags().StringVar(&stressClass, "class", "BootServicesData", "Memory type to allocate from")
	cmd.Flags().IntVar(&stressWorkers, "workers", 8, "Concurrent workers")
	cmd.Flags().IntVar(&stressIterations, "iterations", 1000, "Allocations per worker")
	cmd.Flags().StringVar(&stressMaxSize, "max-size", "4KiB", "Largest block size")
	cmd.Flags().Uint64Var(&stressMaxAlign, "max-align", 4096, "Largest alignment (power of two)")
	cmd.Flags().Uint64Var(&stressSeed, "seed", 1, "Random seed")
	cmd.Flags().BoolVar(&stressSkew, "skew", true, "Make the pool return 8 mod 16 addresses")
	rootCmd.AddCommand(cmd)
}

func newStressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Allocate random layouts concurrently through the global bridge",
		Long: `The stress command runs several workers that allocate random layouts
through one bridge, write a pattern into every block, check it, and free it.

Example:
  efialloc stress --workers 16 --iterations 5000
  efialloc stress --max-align 65536 --capacity 256MiB --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStress()
		},
	}
	return cmd
}

// StressReport is the outcome of a stress run.
type StressReport struct {
	Workers     int           `json:"workers"`
	Iterations  int           `json:"iterations"`
	Allocations uint64        `json:"allocations"`
	Failures    uint64        `json:"failures"`
	Bytes       uint64        `json:"bytes"`
	Elapsed     time.Duration `json:"elapsed_ns"`
	Pool        mempool.Stats `json:"pool"`
}

type stressConfig struct {
	workers    int
	iterations int
	maxSize    uint64
	maxAlign   uint64
	seed       uint64
}

func runStress() error {
	capacity, err := humanize.ParseBytes(stressCapacity)
	if err != nil {
		return fmt.Errorf("invalid --capacity: %w", err)
	}
	maxSize, err := humanize.ParseBytes(stressMaxSize)
	if err != nil {
		return fmt.Errorf("invalid --max-size: %w", err)
	}
	if _, err := alloc.NewLayout(0, uintptr(stressMaxAlign)); err != nil {
		return fmt.Errorf("invalid --max-align: %w", err)
	}
	if stressWorkers <= 0 || stressIterations < 0 {
		return errors.New("--workers must be positive and --iterations non-negative")
	}
	class, err := efi.ParseMemoryType(stressClass)
	if err != nil {
		return err
	}

	log := newLogger()
	pool, err := mempool.New(int(capacity), &mempool.Options{Skew: stressSkew, Logger: log})
	if err != nil {
		return err
	}
	defer pool.Close()

	a, err := alloc.New(pool, class, &alloc.Options{Logger: log})
	if err != nil {
		return err
	}
	bridge := global.NewBridge().WithLogger(log)

	var rep StressReport
	err = bridge.With(a, func() error {
		var err error
		rep, err = stress(bridge, stressConfig{
			workers:    stressWorkers,
			iterations: stressIterations,
			maxSize:    maxSize,
			maxAlign:   stressMaxAlign,
			seed:       stressSeed,
		})
		return err
	})
	rep.Pool = pool.Stats()
	if err != nil {
		return err
	}

	return report(rep, func(w io.Writer) {
		fmt.Fprintf(w, "Stress: %d worker(s) x %d iteration(s) in %s\n", rep.Workers, rep.Iterations, rep.Elapsed.Round(time.Microsecond))
		fmt.Fprintf(w, "  Allocations: %s (%s)\n", humanize.Comma(int64(rep.Allocations)), humanize.IBytes(rep.Bytes))
		fmt.Fprintf(w, "  Failures:    %s\n", humanize.Comma(int64(rep.Failures)))
		fmt.Fprintf(w, "  Peak live:   %s\n", humanize.IBytes(rep.Pool.PeakLiveBytes))
		fmt.Fprintf(w, "  High water:  %s of %s\n", humanize.IBytes(rep.Pool.HighWater), humanize.IBytes(rep.Pool.Capacity))
	})
}

// stress runs cfg.workers goroutines against src. Allocation failures are
// counted; a misaligned or clobbered block aborts the run.
func stress(src alloc.Source, cfg stressConfig) (StressReport, error) {
	var (
		wg       sync.WaitGroup
		allocs   atomic.Uint64
		failures atomic.Uint64
		total    atomic.Uint64
		errOnce  sync.Once
		firstErr error
	)
	alignShift := uint64(0)
	for uint64(1)<<alignShift < cfg.maxAlign {
		alignShift++
	}

	start := time.Now()
	for w := 0; w < cfg.workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(cfg.seed, uint64(w)))
			for i := 0; i < cfg.iterations; i++ {
				l := alloc.Layout{
					Size:  uintptr(rng.Uint64N(cfg.maxSize + 1)),
					Align: uintptr(1) << rng.Uint64N(alignShift+1),
				}
				p, err := src.Allocate(l)
				if err != nil {
					failures.Add(1)
					continue
				}
				allocs.Add(1)
				total.Add(uint64(l.Size))

				if err := checkBlock(p, l, byte(w)); err != nil {
					src.Deallocate(p, l)
					errOnce.Do(func() { firstErr = fmt.Errorf("worker %d: %w", w, err) })
					return
				}
				src.Deallocate(p, l)
			}
		}(w)
	}
	wg.Wait()

	return StressReport{
		Workers:     cfg.workers,
		Iterations:  cfg.iterations,
		Allocations: allocs.Load(),
		Failures:    failures.Load(),
		Bytes:       total.Load(),
		Elapsed:     time.Since(start),
	}, firstErr
}

func checkBlock(p uintptr, l alloc.Layout, v byte) error {
	if p == 0 || p%l.Align != 0 {
		return fmt.Errorf("address %#x not aligned to %d", p, l.Align)
	}
	b := alloc.Bytes(p, l.Size)
	fill(b, v)
	// Let other workers write their blocks before checking this one.
	runtime.Gosched()
	for i := range b {
		if b[i] != v {
			return fmt.Errorf("block %#x byte %d clobbered", p, i)
		}
	}
	return nil
}
