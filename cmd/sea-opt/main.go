package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/spf13/cobra"

	"github.com/seaofnodes/sea/pkg/cfg"
	"github.com/seaofnodes/sea/pkg/comp"
	"github.com/seaofnodes/sea/pkg/gir"
	"github.com/seaofnodes/sea/pkg/inline"
	"github.com/seaofnodes/sea/pkg/ir"
	"github.com/seaofnodes/sea/pkg/lsra"
	"github.com/seaofnodes/sea/pkg/schedule"
	"github.com/seaofnodes/sea/pkg/target"
)

var version = "0.1.0"

// Debug flags for dumping intermediate results
var (
	dNodes bool
	dCFG   bool
	dSched bool
	dLSRA  bool
	dGir   bool
)

// Pipeline options
var (
	noInline  bool
	regCount  int
	wordSize  int
	verbosity int
)

func resetFlags() {
	dNodes, dCFG, dSched, dLSRA, dGir = false, false, false, false, false
	noInline = false
	regCount = 0
	wordSize = 0
	verbosity = 0
}

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	rootCmd.SetArgs(normalizeFlags(os.Args[1:]))
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

// debugFlagNames lists the flags that accept single-dash spelling.
var debugFlagNames = []string{"dnodes", "dcfg", "dsched", "dlsra", "dgir"}

// normalizeFlags converts single-dash debug flags like -dnodes to --dnodes.
func normalizeFlags(args []string) []string {
	result := make([]string, len(args))
	for i, arg := range args {
		for _, flagName := range debugFlagNames {
			if arg == "-"+flagName {
				result[i] = "--" + flagName
				break
			}
		}
		if result[i] == "" {
			result[i] = arg
		}
	}
	return result
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sea-opt [file.gir]",
		Short: "sea-opt optimizes node-graph IR and allocates registers",
		Long: `sea-opt runs the graph optimization pipeline over the first graph in a
.gir file: canonicalization, inlining (later graphs in the file are the
callee candidates), guard deduplication, loop analysis, lowering, write
barriers, scheduling and linear-scan register allocation.`,
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			filename := args[0]

			graphs, err := loadGraphs(filename, errOut)
			if err != nil {
				return err
			}
			root := graphs[0]

			// Pre-pipeline dumps look at the graph as parsed.
			if dNodes {
				return doNodes(root, filename, out, errOut)
			}
			if dCFG {
				return doCFG(root, filename, out, errOut)
			}

			res, err := compile(root, graphs[1:], errOut)
			if err != nil {
				fmt.Fprintf(errOut, "sea-opt: %s: %v\n", filename, err)
				return err
			}

			if dSched {
				return doSched(res, filename, out, errOut)
			}
			if dLSRA {
				return doLSRA(res, filename, out, errOut)
			}
			if dGir {
				return doGir(res, filename, out, errOut)
			}

			fmt.Fprintf(errOut, "sea-opt: %s: %d blocks, %d nodes, %d spill slots\n",
				filename, len(res.Schedule.CFG.Blocks), res.Graph.LiveCount(),
				res.Allocation.SpillSlots)
			return nil
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.Flags().BoolVar(&dNodes, "dnodes", false, "Dump the parsed node graph")
	rootCmd.Flags().BoolVar(&dCFG, "dcfg", false, "Dump the control flow graph")
	rootCmd.Flags().BoolVar(&dSched, "dsched", false, "Dump the optimized schedule")
	rootCmd.Flags().BoolVar(&dLSRA, "dlsra", false, "Dump the register allocation")
	rootCmd.Flags().BoolVar(&dGir, "dgir", false, "Re-print the optimized graph")

	rootCmd.Flags().BoolVar(&noInline, "no-inline", false, "Disable inlining")
	rootCmd.Flags().IntVar(&regCount, "regs", 0, "Limit the allocatable register count")
	rootCmd.Flags().IntVar(&wordSize, "word-size", 0, "Override the target word size in bytes")
	rootCmd.Flags().CountVarP(&verbosity, "verbose", "v", "Increase diagnostic verbosity")

	return rootCmd
}

// loadGraphs reads every graph from a .gir file.
func loadGraphs(filename string, errOut io.Writer) ([]*ir.Graph, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(errOut, "sea-opt: error reading %s: %v\n", filename, err)
		return nil, err
	}
	graphs, errs := gir.Parse(string(content))
	if len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(errOut, "%s: %s\n", filename, e)
		}
		return nil, fmt.Errorf("parsing failed with %d errors", len(errs))
	}
	if len(graphs) == 0 {
		return nil, fmt.Errorf("%s holds no graphs", filename)
	}
	return graphs, nil
}

func machine() *target.Description {
	d := target.AMD64()
	if regCount > 0 && regCount < len(d.Registers) {
		d.Registers = d.Registers[:regCount]
	}
	if wordSize > 0 {
		d.WordSize = wordSize
	}
	return d
}

func diagLogger(errOut io.Writer) logr.Logger {
	return funcr.New(func(prefix, args string) {
		fmt.Fprintln(errOut, "sea-opt:", prefix, args)
	}, funcr.Options{Verbosity: verbosity})
}

func compile(root *ir.Graph, callees []*ir.Graph, errOut io.Writer) (*comp.Result, error) {
	c := comp.NewContext(diagLogger(errOut), machine())
	if !noInline && len(callees) > 0 {
		provider := make(graphMap, len(callees))
		for _, g := range callees {
			provider[g.Name] = g
		}
		c.Graphs = provider
	}
	return c.Compile(context.Background(), root)
}

type graphMap map[string]*ir.Graph

func (m graphMap) GraphFor(callee string) *ir.Graph { return m[callee] }

var _ inline.GraphProvider = graphMap{}

// outputFilename derives the dump filename: input.gir -> input<suffix>.
func outputFilename(filename, suffix string) string {
	ext := ".gir"
	if strings.HasSuffix(filename, ext) {
		return filename[:len(filename)-len(ext)] + suffix
	}
	return filename + suffix
}

// writeDump writes text to the dump file and echoes it to stdout.
func writeDump(outputName, text string, out, errOut io.Writer) error {
	outFile, err := os.Create(outputName)
	if err != nil {
		fmt.Fprintf(errOut, "sea-opt: error creating %s: %v\n", outputName, err)
		return err
	}
	defer outFile.Close()

	if _, err := io.WriteString(outFile, text); err != nil {
		return err
	}
	fmt.Fprint(out, text)
	return nil
}

// nodeDump is the per-node record behind -dnodes.
type nodeDump struct {
	ID     int
	Op     string
	Kind   string
	Detail string
	Inputs []int
	Succs  []int
}

var spewConf = spew.ConfigState{
	Indent:                  "  ",
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
}

// doNodes dumps the parsed node graph to a .nodes file (-dnodes)
func doNodes(g *ir.Graph, filename string, out, errOut io.Writer) error {
	nodes := g.Nodes()
	dumps := make([]nodeDump, 0, len(nodes))
	for _, n := range nodes {
		d := nodeDump{ID: int(n.ID()), Op: n.Op(), Kind: n.Stamp().Kind.String()}
		switch t := n.(type) {
		case *ir.ParamNode:
			d.Detail = fmt.Sprintf("index=%d", t.Index)
		case *ir.ConstNode:
			d.Detail = fmt.Sprintf("value=%d", t.Value)
		case *ir.InvokeNode:
			d.Detail = "callee=" + t.Callee
		case *ir.LoadFieldNode:
			d.Detail = fmt.Sprintf("offset=%d", t.Offset)
		case *ir.StoreFieldNode:
			d.Detail = fmt.Sprintf("offset=%d", t.Offset)
		case *ir.GuardNode:
			d.Detail = fmt.Sprintf("negated=%v reason=%s action=%s",
				t.Negated(), t.Reason, t.Action)
		}
		for _, in := range n.Inputs() {
			if in != nil {
				d.Inputs = append(d.Inputs, int(in.ID()))
			}
		}
		for _, s := range n.Successors() {
			if s != nil {
				d.Succs = append(d.Succs, int(s.ID()))
			}
		}
		dumps = append(dumps, d)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "graph %s: %d nodes\n", g.Name, len(dumps))
	spewConf.Fdump(&b, dumps)
	return writeDump(outputFilename(filename, ".nodes"), b.String(), out, errOut)
}

// doCFG dumps blocks, edges and loops to a .cfg file (-dcfg)
func doCFG(g *ir.Graph, filename string, out, errOut io.Writer) error {
	c := cfg.Compute(g)
	return writeDump(outputFilename(filename, ".cfg"), c.Dump(), out, errOut)
}

// doSched dumps the optimized schedule to a .sched file (-dsched)
func doSched(res *comp.Result, filename string, out, errOut io.Writer) error {
	return writeDump(outputFilename(filename, ".sched"),
		formatSchedule(res.Schedule), out, errOut)
}

func formatSchedule(s *schedule.Schedule) string {
	var b strings.Builder
	for _, blk := range s.LinearScanOrder {
		fmt.Fprintf(&b, "%s:", blk)
		if blk.Loop != nil {
			fmt.Fprintf(&b, " (loop depth %d)", blk.LoopDepth())
		}
		fmt.Fprintln(&b)
		for _, n := range s.Nodes(blk) {
			fmt.Fprintf(&b, "  n%d %s\n", n.ID(), n.Op())
		}
	}
	return b.String()
}

// doLSRA dumps assigned locations and resolution moves to a .lsra file (-dlsra)
func doLSRA(res *comp.Result, filename string, out, errOut io.Writer) error {
	return writeDump(outputFilename(filename, ".lsra"),
		formatAllocation(res), out, errOut)
}

func formatAllocation(res *comp.Result) string {
	s, a := res.Schedule, res.Allocation
	var b strings.Builder
	for _, blk := range s.LinearScanOrder {
		fmt.Fprintf(&b, "%s:\n", blk)
		for _, n := range s.Nodes(blk) {
			if n.Stamp().Kind == ir.KindVoid {
				continue
			}
			fmt.Fprintf(&b, "  n%d %s -> %s\n", n.ID(), n.Op(), a.LocationOf(n))
		}
	}

	edges := make([]lsra.Edge, 0, len(a.Moves))
	for e := range a.Moves {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From.Index != edges[j].From.Index {
			return edges[i].From.Index < edges[j].From.Index
		}
		return edges[i].To.Index < edges[j].To.Index
	})
	for _, e := range edges {
		fmt.Fprintf(&b, "%s -> %s:\n", e.From, e.To)
		for _, mv := range a.Moves[e] {
			fmt.Fprintf(&b, "  %s -> %s\n", mv.From, mv.To)
		}
	}
	fmt.Fprintf(&b, "spill slots: %d\n", a.SpillSlots)
	return b.String()
}

// doGir re-prints the optimized graph to an .opt.gir file (-dgir)
func doGir(res *comp.Result, filename string, out, errOut io.Writer) error {
	var b strings.Builder
	if err := gir.NewPrinter(&b).PrintGraph(res.Graph); err != nil {
		fmt.Fprintf(errOut, "sea-opt: printing failed: %v\n", err)
		return err
	}
	return writeDump(outputFilename(filename, ".opt.gir"), b.String(), out, errOut)
}
