package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/r-efi/r-efi-alloc/alloc"
	"github.com/r-efi/r-efi-alloc/efi"
)

var (
	layoutSize   string
	layoutAlign  uint64
	layoutNative uint64
)

func init() {
	cmd := newLayoutCmd()
	cmd.Flags().StringVar(&layoutSize, "size", "", "Requested size (e.g. 100, 4KiB)")
	cmd.Flags().Uint64Var(&layoutAlign, "align", 8, "Requested alignment (power of two)")
	cmd.Flags().Uint64Var(&layoutNative, "native", uint64(efi.PoolAlignment), "Alignment the native pool guarantees")
	_ = cmd.MarkFlagRequired("size")
	rootCmd.AddCommand(cmd)
}

func newLayoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Show how a request is adjusted for the native pool",
		Long: `The layout command computes the size the adapter requests from the
native pool for a given size and alignment, and how much of it is slack.

Example:
  efialloc layout --size 100 --align 64
  efialloc layout --size 4KiB --align 4096 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLayout()
		},
	}
	return cmd
}

// LayoutReport describes how one request maps onto the native pool.
type LayoutReport struct {
	Size      uint64 `json:"size"`
	Align     uint64 `json:"align"`
	Native    uint64 `json:"native_alignment"`
	Request   uint64 `json:"request"`
	Slack     uint64 `json:"slack"`
	Marker    bool   `json:"marker"`
	MinOffset uint64 `json:"min_offset"`
	MaxOffset uint64 `json:"max_offset"`
}

func buildLayoutReport(size, align, native uint64) (LayoutReport, error) {
	if err := alloc.CheckNativeAlignment(uintptr(native)); err != nil {
		return LayoutReport{}, fmt.Errorf("invalid --native: %w", err)
	}
	l, err := alloc.NewLayout(uintptr(size), uintptr(align))
	if err != nil {
		return LayoutReport{}, err
	}
	req, ok := alloc.RequestSize(l.Size, l.Align, uintptr(native))
	if !ok {
		return LayoutReport{}, fmt.Errorf("request for %s overflows the address space", l)
	}
	r := LayoutReport{
		Size:    size,
		Align:   align,
		Native:  native,
		Request: uint64(req),
		Slack:   uint64(req) - size,
		Marker:  align > native,
	}
	if r.Marker {
		r.MinOffset = native
		r.MaxOffset = align
	}
	return r, nil
}

func runLayout() error {
	size, err := humanize.ParseBytes(layoutSize)
	if err != nil {
		return fmt.Errorf("invalid --size: %w", err)
	}
	r, err := buildLayoutReport(size, layoutAlign, layoutNative)
	if err != nil {
		return err
	}

	return report(r, func(w io.Writer) {
		fmt.Fprintf(w, "Layout {size: %d, align: %d} over a %d-byte native pool:\n", r.Size, r.Align, r.Native)
		fmt.Fprintf(w, "  Request: %s (%d bytes)\n", humanize.IBytes(r.Request), r.Request)
		fmt.Fprintf(w, "  Slack:   %d bytes\n", r.Slack)
		if r.Marker {
			fmt.Fprintf(w, "  Marker:  yes, payload offset in [%d, %d]\n", r.MinOffset, r.MaxOffset)
		} else {
			fmt.Fprintf(w, "  Marker:  no, native block returned unchanged\n")
		}
	})
}
