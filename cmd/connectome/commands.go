package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/neurotrace/connectome/internal/annotation"
	"github.com/neurotrace/connectome/internal/app"
	"github.com/neurotrace/connectome/internal/cascade"
	"github.com/neurotrace/connectome/internal/config"
	"github.com/neurotrace/connectome/internal/domain"
	"github.com/neurotrace/connectome/internal/logging"
	"github.com/neurotrace/connectome/internal/network"
	"github.com/neurotrace/connectome/internal/service"
	"github.com/neurotrace/connectome/internal/store"
)

type cli struct {
	out    io.Writer
	errOut io.Writer
	load   func() (config.Config, error)
	app    *app.App

	source       string
	resultsDir   string
	syntheticDir string
	memoBackend  string
}

func newCLI(out, errOut io.Writer) *cli {
	return &cli{out: out, errOut: errOut, load: config.Load}
}

func (c *cli) close() {
	if c.app == nil {
		return
	}
	if err := c.app.Close(context.Background()); err != nil {
		fmt.Fprintf(c.errOut, "close: %v\n", err)
	}
	c.app = nil
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "connectome",
		Short:         "Explore downstream cascades in neuPrint and CAVE connectomes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd.Context())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.source, "source", "", "connectivity source: neuprint, cave or synthetic")
	flags.StringVar(&c.resultsDir, "results-dir", "", "directory holding per-run result tables")
	flags.StringVar(&c.syntheticDir, "synthetic-dir", "", "dataset written by datagen, used with --source synthetic")
	flags.StringVar(&c.memoBackend, "memo", "", "processed-neuron memo: directory, memory, redis or badger")

	root.AddCommand(
		c.cascadeCmd(),
		c.batchCmd(),
		c.partnersCmd(),
		c.matchCmd(),
		c.graphCmd(),
	)
	return root
}

func (c *cli) setup(ctx context.Context) error {
	c.close()
	cfg, err := c.load()
	if err != nil {
		return err
	}
	if c.source != "" {
		cfg.Cascade.Source = c.source
	}
	if c.resultsDir != "" {
		cfg.Cascade.ResultsDir = c.resultsDir
	}
	if c.syntheticDir != "" {
		cfg.Cascade.SyntheticDir = c.syntheticDir
	}
	if c.memoBackend != "" {
		cfg.Memo.Backend = c.memoBackend
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.NewWriter(c.errOut, cfg.Logging)
	a, err := app.New(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	c.app = a
	return nil
}

type requestFlags struct {
	connectionThreshold int64
	percentageThreshold float64
	maxLayers           int
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&f.connectionThreshold, "connection-threshold", -1, "minimum synapse count (default from config)")
	cmd.Flags().Float64Var(&f.percentageThreshold, "percentage-threshold", -1, "minimum percent of partner input (default from config)")
	cmd.Flags().IntVar(&f.maxLayers, "max-layers", -1, "layers to expand, capped at 5 (default from config)")
}

func (f *requestFlags) apply(req cascade.Request) cascade.Request {
	if f.connectionThreshold >= 0 {
		req.ConnectionThreshold = f.connectionThreshold
	}
	if f.percentageThreshold >= 0 {
		req.PercentageThreshold = f.percentageThreshold
	}
	if f.maxLayers >= 0 {
		req.MaxLayers = f.maxLayers
	}
	return req
}

func (c *cli) cascadeCmd() *cobra.Command {
	var rf requestFlags
	cmd := &cobra.Command{
		Use:   "cascade <neuron-id>",
		Short: "Expand downstream layers from a start neuron and persist partner tables",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := domain.ParseNeuronID(args[0])
			if err != nil {
				return err
			}
			report, err := c.app.Crawler.Run(cmd.Context(), rf.apply(c.app.Request(start)))
			if err != nil {
				return err
			}
			return c.printJSON(report)
		},
	}
	rf.register(cmd)
	return cmd
}

func (c *cli) batchCmd() *cobra.Command {
	var rf requestFlags
	cmd := &cobra.Command{
		Use:   "batch <neuron-id>...",
		Short: "Run one cascade per start neuron on the worker pool",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			starts, err := domain.ParseNeuronIDs(args)
			if err != nil {
				return err
			}
			reqs := make([]cascade.Request, 0, len(starts))
			for _, start := range starts {
				reqs = append(reqs, rf.apply(c.app.Request(start)))
			}
			reports, runErr := c.app.Batch.Run(cmd.Context(), reqs)
			var finished []cascade.Report
			for _, r := range reports {
				if r.Run != "" {
					finished = append(finished, r)
				}
			}
			if err := c.printJSON(finished); err != nil {
				return err
			}
			return runErr
		},
	}
	rf.register(cmd)
	return cmd
}

func (c *cli) partnersCmd() *cobra.Command {
	var (
		direction  string
		minWeight  int64
		minPercent float64
		top        int
	)
	def := service.DefaultThresholds()
	cmd := &cobra.Command{
		Use:   "partners <neuron-id>",
		Short: "Print the thresholded partner table of a neuron as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := domain.ParseNeuronID(args[0])
			if err != nil {
				return err
			}
			dir := domain.Direction(direction)
			if dir != domain.Downstream && dir != domain.Upstream {
				return fmt.Errorf("direction must be %s or %s", domain.Downstream, domain.Upstream)
			}
			th := service.Thresholds{MinWeight: minWeight, MinPercent: minPercent}
			if top < 0 {
				return errors.New("top must be non-negative")
			}
			table, err := c.app.Connectivity.Partners(cmd.Context(), id, dir, th)
			if err != nil {
				return err
			}
			table.Rows = service.TopN(table.Rows, top)
			return store.EncodeTable(c.out, table)
		},
	}
	cmd.Flags().StringVar(&direction, "direction", string(domain.Downstream), "downstream or upstream")
	cmd.Flags().Int64Var(&minWeight, "connection-threshold", def.MinWeight, "minimum synapse count")
	cmd.Flags().Float64Var(&minPercent, "percentage-threshold", def.MinPercent, "minimum percent of partner input")
	cmd.Flags().IntVar(&top, "top", 0, "keep only the N strongest partners (0 keeps all)")
	return cmd
}

var errNoCrossRef = errors.New("no identity table configured; set CROSSREF_TABLE")

func (c *cli) matchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "match <neuron-id>",
		Short: "Look up the counterpart of a neuron in the other dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if c.app.Matcher == nil {
				return errNoCrossRef
			}
			// Sentinel identifiers such as NotAssigned resolve to no match.
			id, _ := domain.ParseNeuronID(args[0])
			return c.printJSON(c.app.Matcher.Match(id))
		},
	}
}

func (c *cli) graphCmd() *cobra.Command {
	var group, combine string
	cmd := &cobra.Command{
		Use:   "graph <run>",
		Short: "Render the result tables of a run as Graphviz DOT",
		Long: `Render the result tables of a run as Graphviz DOT.

A run is named "{start}-{percentage threshold}", for example 10001-0.5.
With --group type, neurons sharing a cell type are merged and parallel
edges are folded with --combine.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			run := args[0]
			tables, err := store.ReadAll(ctx, c.app.Results, run)
			if err != nil {
				return err
			}
			if len(tables) == 0 {
				return fmt.Errorf("no results for run %s", run)
			}

			var idx *annotation.Index
			if c.app.Annotator != nil {
				idx, err = annotation.Build(ctx, c.app.Annotator, network.Neurons(tables))
				if err != nil {
					c.app.Logger.Warn("annotation lookup failed; rendering untyped", "error", err)
				}
			}
			g := network.Build(tables, idx)

			switch group {
			case "":
			case "type":
				fold, err := network.CombineByName(combine)
				if err != nil {
					return err
				}
				g = network.Contract(g, network.ByType, fold)
			default:
				return fmt.Errorf("unknown group %q", group)
			}
			return network.WriteDOT(c.out, run, g)
		},
	}
	cmd.Flags().StringVar(&group, "group", "", `merge nodes by key; "type" groups by cell type`)
	cmd.Flags().StringVar(&combine, "combine", "sum", "fold parallel edges when grouping: sum or mean")
	return cmd
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
