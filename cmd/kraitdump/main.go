// Command kraitdump compiles IR blocks described in YAML and prints the
// machine code the backend generates for them, for eyeballing instruction
// selection and patch-site layout without a running guest.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dynarec/krait/internal/jit"
	"github.com/dynarec/krait/internal/platform"
)

var (
	cacheSize int
	noSSE     bool
	noLZCNT   bool
	pageTable bool
)

// Placeholder callback addresses, one per slot, so CALL targets are
// recognisable in dumps.
const callbackBase = uintptr(0xCA11000000)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "kraitdump",
		Short:        "Dump the machine code the krait backend generates",
		SilenceUsage: true,
	}
	root.PersistentFlags().IntVar(&cacheSize, "cache-size", 1<<20, "code cache size in bytes")
	root.PersistentFlags().BoolVar(&noSSE, "no-sse", false, "force the general purpose register fallback for packed unsigned byte halving add")
	root.PersistentFlags().BoolVar(&noLZCNT, "no-lzcnt", false, "force the BSR fallback for count leading zeros")
	root.AddCommand(newBlockCmd(), newThunksCmd())
	return root
}

func dumpConfig() *jit.Config {
	features := platform.DetectCpuFeatures()
	if noSSE {
		features.HasSSSE3 = false
		features.HasSSE41 = false
	}
	if noLZCNT {
		features.HasLZCNT = false
	}
	cfg := &jit.Config{
		Callbacks: jit.Callbacks{
			MemoryRead8:         callbackBase + 0x10,
			MemoryRead16:        callbackBase + 0x20,
			MemoryRead32:        callbackBase + 0x30,
			MemoryRead64:        callbackBase + 0x40,
			MemoryWrite8:        callbackBase + 0x50,
			MemoryWrite16:       callbackBase + 0x60,
			MemoryWrite32:       callbackBase + 0x70,
			MemoryWrite64:       callbackBase + 0x80,
			InterpreterFallback: callbackBase + 0x90,
			CallSVC:             callbackBase + 0xA0,
		},
		CpuFeatures:   features,
		CodeCacheSize: cacheSize,
	}
	if pageTable {
		cfg.PageTable = new([jit.PageTableEntries]uintptr)
	}
	return cfg
}

func newBlockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "block FILE",
		Short: "Compile one IR block from a YAML description and hex dump it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			block, err := loadBlock(args[0])
			if err != nil {
				return err
			}
			code, err := jit.NewBlockOfCode(cacheSize)
			if err != nil {
				return err
			}
			defer code.Close()

			desc := jit.NewEmitter(code, dumpConfig()).Emit(block)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d bytes at %#x\n", block.Location(), desc.Size, desc.EntryPtr)
			start := int(desc.EntryPtr - code.Seg().Addr())
			hexDump(out, code.Seg().Bytes()[start:start+desc.Size], desc.EntryPtr)
			return nil
		},
	}
	cmd.Flags().BoolVar(&pageTable, "page-table", false, "emit the inline page table fast path for memory accesses")
	return cmd
}

func newThunksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "thunks",
		Short: "Dump the run-code entry and exit thunks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			code, err := jit.NewBlockOfCode(cacheSize)
			if err != nil {
				return err
			}
			defer code.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run code:                %#x\n", code.RunCodeAddress())
			fmt.Fprintf(out, "return from run code:    %#x\n", code.ReturnFromRunCodeAddress())
			fmt.Fprintf(out, "return (no mxcsr swap):  %#x\n", code.ReturnFromRunCodeWithoutMxcsrSwitchAddress())
			hexDump(out, code.Seg().Bytes()[:code.Cursor()], code.Seg().Addr())
			return nil
		},
	}
}

func hexDump(w io.Writer, code []byte, base uintptr) {
	for off := 0; off < len(code); off += 16 {
		end := off + 16
		if end > len(code) {
			end = len(code)
		}
		fmt.Fprintf(w, "0x%010x:", base+uintptr(off))
		for _, b := range code[off:end] {
			fmt.Fprintf(w, " %02x", b)
		}
		fmt.Fprintln(w)
	}
}
