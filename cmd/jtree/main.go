// Command jtree compiles a Bayesian network definition and answers queries
// on it from the command line.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/Harshitk-cp/junctree/internal/buildconfig"
	"github.com/Harshitk-cp/junctree/internal/domain"
	"github.com/Harshitk-cp/junctree/internal/factor"
	"github.com/Harshitk-cp/junctree/internal/junction"
	"github.com/Harshitk-cp/junctree/internal/service"
	docopt "github.com/docopt/docopt-go"
	"go.uber.org/zap"
)

const usage = `jtree compiles a Bayesian network and runs exact inference on it.

Usage:
  jtree [-v] [--heuristic=H] tree FILE
  jtree [-v] [--heuristic=H] dot FILE
  jtree [-v] [--heuristic=H] [--evidence=OBS...] [--unnormalized] ask FILE VAR...
  jtree [-v] [--heuristic=H] [--evidence=OBS...] marginals FILE
  jtree [-v] [--heuristic=H] score FILE DATA

Options:
  --heuristic=H                Elimination heuristic: min_fill, min_degree or min_weight [default: min_fill]
  -e=OBS, --evidence=OBS       Observation NAME=LABEL; may be repeated.
  --unnormalized               Print P(VAR..., evidence) and P(evidence) instead of the posterior.
  -v, --verbose                Log compilation details to stderr.

FILE is a JSON network definition. DATA is a CSV file whose header names
variables; empty cells are missing values.

Examples:
  # Posterior of Rain after observing a wet lawn.
  jtree ask -e Wet=true lawn.json Rain

  # Render the network, moral graph and junction tree.
  jtree dot lawn.json | dot -Tsvg > lawn.svg
`

type options struct {
	Heuristic    string   `docopt:"--heuristic"`
	Evidence     []string `docopt:"--evidence"`
	Unnormalized bool     `docopt:"--unnormalized"`
	Verbose      bool     `docopt:"--verbose"`

	File string   `docopt:"FILE"`
	Vars []string `docopt:"VAR"`
	Data string   `docopt:"DATA"`

	Tree      bool `docopt:"tree"`
	Dot       bool `docopt:"dot"`
	Ask       bool `docopt:"ask"`
	Marginals bool `docopt:"marginals"`
	Score     bool `docopt:"score"`

	heuristic junction.Heuristic
}

func parseArgs(argv []string) (*options, error) {
	opts, err := docopt.ParseArgs(usage, argv, buildconfig.String())
	if err != nil {
		return nil, err
	}
	var o options
	if err := opts.Bind(&o); err != nil {
		return nil, fmt.Errorf("binding command-line arguments: %v", err)
	}
	if o.heuristic, err = junction.ParseHeuristic(o.Heuristic); err != nil {
		return nil, err
	}
	for _, e := range o.Evidence {
		if !strings.Contains(e, "=") {
			return nil, fmt.Errorf("evidence %q must be NAME=LABEL", e)
		}
	}
	return &o, nil
}

func main() {
	o, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := zap.NewNop()
	if o.Verbose {
		logger, _ = zap.NewDevelopment()
	}
	defer func() { _ = logger.Sync() }()

	if err := run(o, os.Stdout, logger); err != nil {
		fmt.Fprintln(os.Stderr, "jtree:", err)
		os.Exit(1)
	}
}

func load(o *options, logger *zap.Logger) (*service.Network, error) {
	f, err := os.Open(o.File)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var def domain.NetworkDefinition
	if err := json.NewDecoder(f).Decode(&def); err != nil {
		return nil, fmt.Errorf("%s: %v", o.File, err)
	}
	opts := service.DefaultOptions()
	opts.Heuristic = o.heuristic
	opts.Logger = logger
	net, err := service.FromDefinition(def, opts)
	if err != nil {
		return nil, err
	}
	for _, e := range o.Evidence {
		name, label, _ := strings.Cut(e, "=")
		if err := net.Observe(name, label); err != nil {
			return nil, err
		}
	}
	return net, nil
}

func run(o *options, out io.Writer, logger *zap.Logger) error {
	net, err := load(o, logger)
	if err != nil {
		return err
	}
	switch {
	case o.Tree:
		t, err := net.Compile()
		if err != nil {
			return err
		}
		return printTree(out, t)
	case o.Dot:
		return net.Dot(out)
	case o.Ask:
		var opts []service.AskOption
		if o.Unnormalized {
			opts = append(opts, service.Unnormalized())
		}
		d, err := net.AskNames(o.Vars, nil, opts...)
		if err != nil {
			return err
		}
		if err := printDistribution(out, d); err != nil {
			return err
		}
		if o.Unnormalized {
			_, err = fmt.Fprintf(out, "P(evidence)\t%.6g\n", d.Normalizer.Sum())
		}
		return err
	case o.Marginals:
		all, err := net.AskAll()
		if err != nil {
			return err
		}
		ids := make([]int, 0, len(all))
		for id := range all {
			ids = append(ids, int(id))
		}
		sort.Ints(ids)
		for _, id := range ids {
			fmt.Fprintf(out, "# clique %d\n", id)
			if err := printDistribution(out, all[junction.CliqueID(id)]); err != nil {
				return err
			}
		}
		return nil
	case o.Score:
		f, err := os.Open(o.Data)
		if err != nil {
			return err
		}
		defer f.Close()
		src, err := newCSVSource(f)
		if err != nil {
			return fmt.Errorf("%s: %v", o.Data, err)
		}
		s, err := net.Score(context.Background(), src)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "rows\t%d\nlog_likelihood\t%.6f\nfree_parameters\t%d\nbic\t%.6f\n",
			s.Rows, s.LogLikelihood, s.FreeParameters, s.BIC)
		return err
	}
	return errors.New("no command given")
}

func printTree(out io.Writer, t *junction.Tree) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "width\t%d\n", t.Width())
	fmt.Fprintf(tw, "max_states\t%d\n", t.MaxStates())
	order := make([]string, len(t.EliminationOrder))
	for i, v := range t.EliminationOrder {
		order[i] = v.Name()
	}
	fmt.Fprintf(tw, "elimination\t%s\n", strings.Join(order, " "))
	for _, c := range t.Cliques {
		fmt.Fprintf(tw, "C%d\tcomponent %d\t%s\n", c.ID, c.Component, strings.Join(c.Vars.Names(), " "))
	}
	for _, s := range t.Separators {
		fmt.Fprintf(tw, "S%d\tC%d-C%d\t%s\n", s.ID, s.A, s.B, strings.Join(s.Vars.Names(), " "))
	}
	return tw.Flush()
}

func printDistribution(out io.Writer, d *factor.Distribution) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	scope := d.Table.Scope()
	for _, e := range d.Entries() {
		parts := make([]string, 0, scope.Len())
		for _, v := range scope.Vars() {
			parts = append(parts, v.Name()+"="+e.States[v.Name()])
		}
		fmt.Fprintf(tw, "%s\t%.6g\n", strings.Join(parts, " "), e.Probability)
	}
	return tw.Flush()
}

// csvSource reads rows from CSV with a header of variable names.
type csvSource struct {
	r      *csv.Reader
	header []string
}

func newCSVSource(r io.Reader) (*csvSource, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %v", err)
	}
	cr.FieldsPerRecord = len(header)
	return &csvSource{r: cr, header: header}, nil
}

func (s *csvSource) Next(ctx context.Context) (domain.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, err := s.r.Read()
	if err != nil {
		return nil, err
	}
	row := make(domain.Row, len(rec))
	for i, cell := range rec {
		if cell != "" {
			row[s.header[i]] = cell
		}
	}
	return row, nil
}
