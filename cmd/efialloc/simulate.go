package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/r-efi/r-efi-alloc/alloc"
	"github.com/r-efi/r-efi-alloc/efi"
	"github.com/r-efi/r-efi-alloc/efi/mempool"
	"github.com/r-efi/r-efi-alloc/global"
)

var (
	simCapacity string
	simClass    string
	simSize     string
	simAlign    uint64
	simCount    int
	simSkew     bool
)

func init() {
	cmd := newSimulateCmd()
	cmd.Flags().StringVar(&simCapacity, "capacity", "1MiB", "Size of the simulated pool")
	cmd.Flags().StringVar(&simClass, "class", "LoaderData", "Memory type to allocate from")
	cmd.Flags().StringVar(&simSize, "size", "100", "Size of each block")
	cmd.Flags().Uint64Var(&simAlign, "align", 64, "Alignment of each block (power of two)")
	cmd.Flags().IntVar(&simCount, "count", 4, "Number of blocks to allocate")
	cmd.Flags().BoolVar(&simSkew, "skew", false, "Make the pool return 8 mod 16 addresses")
	rootCmd.AddCommand(cmd)
}

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Allocate through the global bridge and verify every block",
		Long: `The simulate command maps a pool, attaches an allocator for the
given memory type to a bridge, allocates blocks through the bridge, checks
their alignment and marker recovery, and frees them again.

Example:
  efialloc simulate --size 100 --align 64 --count 8
  efialloc simulate --class BootServicesData --size 1KiB --align 4096 --skew --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate()
		},
	}
	return cmd
}

// BlockReport describes one allocated block.
type BlockReport struct {
	Address uintptr `json:"address"`
	Native  uintptr `json:"native"`
	Offset  uintptr `json:"offset"`
}

// SimulateReport is the outcome of a simulate run.
type SimulateReport struct {
	Class  string        `json:"class"`
	Layout LayoutReport  `json:"layout"`
	Blocks []BlockReport `json:"blocks"`
	Peak   mempool.Stats `json:"peak"`
	Final  mempool.Stats `json:"final"`
}

func runSimulate() error {
	capacity, err := humanize.ParseBytes(simCapacity)
	if err != nil {
		return fmt.Errorf("invalid --capacity: %w", err)
	}
	size, err := humanize.ParseBytes(simSize)
	if err != nil {
		return fmt.Errorf("invalid --size: %w", err)
	}
	if simCount < 0 {
		return errors.New("--count must be non-negative")
	}
	class, err := efi.ParseMemoryType(simClass)
	if err != nil {
		return err
	}
	lr, err := buildLayoutReport(size, simAlign, uint64(efi.PoolAlignment))
	if err != nil {
		return err
	}

	log := newLogger()
	pool, err := mempool.New(int(capacity), &mempool.Options{Skew: simSkew, Logger: log})
	if err != nil {
		return err
	}
	defer pool.Close()

	a, err := alloc.New(pool, class, &alloc.Options{Logger: log})
	if err != nil {
		return err
	}
	bridge := global.NewBridge().WithLogger(log)

	rep := SimulateReport{Class: class.String(), Layout: lr}
	err = bridge.With(a, func() error {
		blocks, peak, err := allocateBlocks(bridge, pool, alloc.Layout{Size: uintptr(size), Align: uintptr(simAlign)}, simCount)
		rep.Blocks, rep.Peak = blocks, peak
		return err
	})
	rep.Final = pool.Stats()
	if err != nil {
		return err
	}

	return report(rep, func(w io.Writer) { writeSimulateReport(w, rep) })
}

// allocateBlocks allocates n blocks through src, verifies them and frees
// them again, including on failure. The returned stats are sampled while
// every block is still live.
func allocateBlocks(src alloc.Source, pool *mempool.Pool, l alloc.Layout, n int) (blocks []BlockReport, peak mempool.Stats, err error) {
	var addrs []uintptr
	defer func() {
		for _, p := range addrs {
			src.Deallocate(p, l)
		}
	}()

	defer func() { peak = pool.Stats() }()

	blocks = make([]BlockReport, 0, n)
	for i := 0; i < n; i++ {
		p, err := src.Allocate(l)
		if err != nil {
			return blocks, peak, fmt.Errorf("block %d: %w", i, err)
		}
		addrs = append(addrs, p)

		if p%l.Align != 0 {
			return blocks, peak, fmt.Errorf("block %d: address %#x not aligned to %d", i, p, l.Align)
		}
		blk := BlockReport{Address: p}
		// Zero-sized blocks are dangling and carry no marker.
		if l.Size > 0 {
			blk.Native = alloc.UnalignBlock(p, l.Align, efi.PoolAlignment)
			blk.Offset = p - blk.Native
			if _, _, ok := pool.BlockOf(blk.Native); !ok {
				return blocks, peak, fmt.Errorf("block %d: recovered address %#x is not a pool block", i, blk.Native)
			}
			fill(alloc.Bytes(p, l.Size), byte(i))
		}
		blocks = append(blocks, blk)
	}

	for i, p := range addrs {
		for j, v := range alloc.Bytes(p, l.Size) {
			if v != byte(i) {
				return blocks, peak, fmt.Errorf("block %d: byte %d clobbered", i, j)
			}
		}
	}
	return blocks, peak, nil
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}

func writeSimulateReport(w io.Writer, r SimulateReport) {
	fmt.Fprintf(w, "Simulated %d block(s) of {size: %d, align: %d} from %s\n",
		len(r.Blocks), r.Layout.Size, r.Layout.Align, r.Class)
	fmt.Fprintf(w, "  Request per block: %d bytes\n\n", r.Layout.Request)

	fmt.Fprintf(w, "Blocks:\n")
	for i, b := range r.Blocks {
		fmt.Fprintf(w, "  #%d  %#x  native %#x  offset %d\n", i, b.Address, b.Native, b.Offset)
	}

	fmt.Fprintf(w, "\nPool:\n")
	fmt.Fprintf(w, "  Capacity:    %s\n", humanize.IBytes(r.Peak.Capacity))
	fmt.Fprintf(w, "  Peak live:   %s\n", humanize.IBytes(r.Peak.PeakLiveBytes))
	fmt.Fprintf(w, "  High water:  %s\n", humanize.IBytes(r.Peak.HighWater))
	fmt.Fprintf(w, "  Live at end: %d block(s), %s\n", r.Final.LiveBlocks, humanize.IBytes(r.Final.LiveBytes))
	fmt.Fprintf(w, "  Allocations: %s, frees: %s, failures: %s\n",
		humanize.Comma(int64(r.Final.Allocations)),
		humanize.Comma(int64(r.Final.Frees)),
		humanize.Comma(int64(r.Final.Failures)))
}
