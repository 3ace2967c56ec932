// Package main provides the pots CLI.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	_ "github.com/born-ml/pots/internal/arch"
	"github.com/born-ml/pots/internal/catalog"
	"github.com/born-ml/pots/internal/checkpoint"
	"github.com/born-ml/pots/internal/config"
	"github.com/born-ml/pots/internal/core"
	"github.com/born-ml/pots/internal/device"
	"github.com/born-ml/pots/internal/serialization"
)

const usage = `pots - partially observed time series

Commands:
  version                     Show version and host capabilities
  models                      List registered architectures
  inspect <file.pots>         Show checkpoint header and metadata
  runs <catalog.db> [run-id]  List runs, or the epochs of one run
  config [-file path]         Print the effective configuration
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "pots:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return nil
	}
	switch args[0] {
	case "version":
		return versionCmd(out)
	case "models":
		return modelsCmd(out)
	case "inspect":
		if len(args) != 2 {
			return fmt.Errorf("usage: pots inspect <file.pots>")
		}
		return inspectCmd(out, args[1])
	case "runs":
		if len(args) < 2 || len(args) > 3 {
			return fmt.Errorf("usage: pots runs <catalog.db> [run-id]")
		}
		return runsCmd(out, args[1:])
	case "config":
		return configCmd(out, args[1:])
	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return nil
	}
	return fmt.Errorf("unknown command %q\n\n%s", args[0], usage)
}

func versionCmd(out io.Writer) error {
	host := device.Host()
	fmt.Fprintf(out, "pots %s (checkpoint format %d)\n", serialization.PotsVersion, serialization.FormatVersion)
	fmt.Fprintf(out, "CPU: %s, %d physical / %d logical cores", host.Brand, host.PhysicalCores, host.LogicalCores)
	var simd []string
	if host.AVX2 {
		simd = append(simd, "AVX2")
	}
	if host.AVX512 {
		simd = append(simd, "AVX-512")
	}
	if len(simd) > 0 {
		fmt.Fprintf(out, ", %s", strings.Join(simd, " "))
	}
	fmt.Fprintln(out)
	return nil
}

func modelsCmd(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ARCHITECTURE\tTASK")
	for _, name := range core.Names() {
		task, err := core.TaskOf(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\n", name, task)
	}
	return w.Flush()
}

func inspectCmd(out io.Writer, path string) error {
	// ReadFile verifies the checksum and every tensor offset.
	if _, _, err := checkpoint.ReadFile(path); err != nil {
		return err
	}
	h, err := serialization.ReadHeader(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "File:          %s\n", path)
	fmt.Fprintf(out, "Format:        %d (written by pots %s)\n", h.FormatVersion, h.PotsVersion)
	fmt.Fprintf(out, "Architecture:  %s\n", h.Architecture)
	fmt.Fprintf(out, "Task:          %s\n", h.Task)
	fmt.Fprintf(out, "Created:       %s\n", h.CreatedAt.Format(time.RFC3339))
	if c := h.Checkpoint; c != nil {
		fmt.Fprintf(out, "Checkpoint:    %s (%s), run %s\n", c.ID, c.Kind, c.RunID)
		fmt.Fprintf(out, "Progress:      epoch %d, step %d\n", c.Epoch, c.Step)
		switch {
		case c.Metric != "" && c.HasValue:
			fmt.Fprintf(out, "Metric:        %s = %.6g\n", c.Metric, c.Value)
		case c.Metric != "":
			fmt.Fprintf(out, "Metric:        %s (not evaluated)\n", c.Metric)
		}
		if c.OptimizerType != "" {
			fmt.Fprintf(out, "Optimizer:     %s\n", c.OptimizerType)
		}
	}

	if len(h.Metadata) > 0 {
		fmt.Fprintln(out, "\nMetadata:")
		keys := make([]string, 0, len(h.Metadata))
		for k := range h.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "  %s: %s\n", k, h.Metadata[k])
		}
	}

	fmt.Fprintln(out, "\nTensors:")
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "  NAME\tSHAPE\tBYTES")
	var total int64
	for _, t := range h.Tensors {
		fmt.Fprintf(w, "  %s\t%v\t%d\n", t.Name, t.Shape, t.Size)
		total += t.Size
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d tensors, %d bytes\n", len(h.Tensors), total)
	return nil
}

func runsCmd(out io.Writer, args []string) error {
	cat, err := catalog.Open(args[0])
	if err != nil {
		return err
	}
	defer cat.Close()
	ctx := context.Background()

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if len(args) == 2 {
		epochs, err := cat.Epochs(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "EPOCH\tSTEP\tTRAIN LOSS\tMETRICS\tIMPROVED\tDURATION")
		for _, e := range epochs {
			var metrics []string
			for _, name := range e.Metrics.Names() {
				metrics = append(metrics, fmt.Sprintf("%s=%.4g", name, e.Metrics[name]))
			}
			fmt.Fprintf(w, "%d\t%d\t%.6g\t%s\t%t\t%s\n", e.Epoch, e.Step, e.TrainLoss,
				strings.Join(metrics, " "), e.Improved, e.Duration.Round(time.Millisecond))
		}
		return w.Flush()
	}

	runs, err := cat.ListRuns(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "RUN\tARCHITECTURE\tSTATUS\tEPOCHS\tSTEPS\tBEST\tSTARTED")
	for _, r := range runs {
		best := "-"
		if !math.IsNaN(r.BestValue) {
			best = fmt.Sprintf("%s=%.4g@%d", r.Monitor, r.BestValue, r.BestEpoch)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n", r.ID, r.Architecture, r.Status, r.Epochs, r.Steps,
			best, r.StartedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func configCmd(out io.Writer, args []string) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(out)
	file := fs.String("file", "", "YAML or JSON config file merged over the defaults")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := config.Default()
	if *file != "" {
		var err error
		if cfg, err = config.LoadFile(*file); err != nil {
			return err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}
