package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/dustin/go-humanize"

	"resectnet/internal/dataset"
	"resectnet/internal/model"
	"resectnet/pkg/resectnet"
)

const (
	artifactsDir = "runs"
	exportsDir   = "exports"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, newPrinter().red("error: ")+err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "run":
		return runRun(ctx, args[1:])
	case "evolve":
		return runEvolve(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "show":
		return runShow(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "convert":
		return runConvert(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	cf := bindConfigFlags(fs)
	saveFoldData := fs.Bool("save-fold-data", false, "write every outer training/test partition as CSV next to the run artifacts")
	quiet := fs.Bool("quiet", false, "suppress per-generation progress")
	if err := fs.Parse(args); err != nil {
		return err
	}
	inputs := fs.Args()
	if len(inputs) == 0 {
		return errors.New("run requires at least one data file")
	}
	cfg, err := cf.resolve(fs)
	if err != nil {
		return err
	}

	client, err := cf.client(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	p := newPrinter()
	req := resectnet.RunRequest{Inputs: inputs, Config: cfg, SaveFoldData: *saveFoldData}
	if !*quiet {
		req.Reporter = p.generation(cfg.Search.Generations)
	}
	summary, err := client.Run(ctx, req)
	if err != nil {
		return err
	}

	for _, fold := range summary.Folds {
		p.fold(fold)
	}
	s := summary.Summary
	fmt.Printf("%s run_id=%s samples=%s folds=%d elapsed=%s\n",
		p.green("done"), summary.RunID, humanize.Comma(int64(summary.Samples)), s.Folds, summary.Elapsed.Round(time.Millisecond))
	fmt.Printf("mse=%.6f±%.6f accuracy=%.4f±%.4f auc=%s\n",
		s.MeanMSE, s.StdMSE, s.MeanAccuracy, s.StdAccuracy, formatAUC(s))
	fmt.Printf("artifacts=%s\n", summary.ArtifactsDir)
	return nil
}

func runEvolve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("evolve", flag.ContinueOnError)
	cf := bindConfigFlags(fs)
	quiet := fs.Bool("quiet", false, "suppress per-generation progress")
	jsonOut := fs.Bool("json", false, "emit the winning descriptor as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	inputs := fs.Args()
	if len(inputs) == 0 {
		return errors.New("evolve requires at least one data file")
	}
	cfg, err := cf.resolve(fs)
	if err != nil {
		return err
	}

	client, err := cf.client(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	p := newPrinter()
	req := resectnet.EvolveRequest{Inputs: inputs, Config: cfg}
	if !*quiet && !*jsonOut {
		req.Reporter = p.generation(cfg.Search.Generations)
	}
	summary, err := client.Evolve(ctx, req)
	if err != nil {
		return err
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary.Best)
	}
	fmt.Printf("%s samples=%s fitness=%.6f best_ever=%.6f elapsed=%s\n",
		p.green("done"), humanize.Comma(int64(summary.Samples)), summary.Fitness, summary.BestEverFitness, summary.Elapsed.Round(time.Millisecond))
	fmt.Print(summary.Best.String())
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	dir := fs.String("artifacts-dir", artifactsDir, "run artifacts directory")
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := resectnet.NewClient(ctx, resectnet.Options{ArtifactsDir: *dir})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	entries, err := client.Runs(ctx, resectnet.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	if len(entries) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	p := newPrinter()
	for _, e := range entries {
		created := e.CreatedAtUTC
		if t, err := time.Parse(time.RFC3339Nano, e.CreatedAtUTC); err == nil {
			created = humanize.Time(t)
		}
		fmt.Printf("run_id=%s created=%s samples=%s outer=%dx%d seed=%d mse=%.6f accuracy=%.4f auc=%.4f\n",
			p.cyan(e.RunID), created, humanize.Comma(int64(e.Samples)), e.OuterFolds, e.OuterRepeats, e.Seed,
			e.MeanMSE, e.MeanAccuracy, e.MeanAUC)
	}
	return nil
}

func runShow(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	dir := fs.String("artifacts-dir", artifactsDir, "run artifacts directory")
	storeKind := fs.String("store", "memory", "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "resectnet.db", "sqlite database path")
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show the most recent run from run index")
	diagnostics := fs.Bool("diagnostics", false, "include per-generation search diagnostics")
	jsonOut := fs.Bool("json", false, "emit fold results as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := resectnet.NewClient(ctx, resectnet.Options{StoreKind: *storeKind, DBPath: *dbPath, ArtifactsDir: *dir})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	shown, err := client.Show(ctx, resectnet.ShowRequest{RunID: *runID, Latest: *latest})
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(shown)
	}

	p := newPrinter()
	fmt.Printf("run_id=%s samples=%s outer=%dx%d\n",
		p.cyan(shown.Run.RunID), humanize.Comma(int64(shown.Run.Samples)), shown.Run.OuterFolds, shown.Run.OuterRepeats)
	for _, fold := range shown.Folds {
		p.fold(fold)
	}
	if *diagnostics {
		for _, diag := range shown.Diagnostics {
			p.diagnostics(diag)
		}
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	dir := fs.String("artifacts-dir", artifactsDir, "run artifacts directory")
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run from run index")
	outDir := fs.String("out", exportsDir, "export output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("export requires --run-id or --latest")
	}

	client, err := resectnet.NewClient(ctx, resectnet.Options{ArtifactsDir: *dir, ExportsDir: *outDir})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	exported, err := client.Export(ctx, resectnet.ExportRequest{RunID: *runID, Latest: *latest, OutDir: *outDir})
	if err != nil {
		return err
	}
	fmt.Printf("exported run_id=%s to=%s\n", exported.RunID, exported.Directory)
	return nil
}

func runConvert(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	out := fs.String("out", "", "FANN training file to write")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		return errors.New("convert requires --out")
	}
	if fs.NArg() == 0 {
		return errors.New("convert requires at least one data file")
	}

	data, err := dataset.LoadFiles(fs.Args()...)
	if err != nil {
		return err
	}
	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	if err := dataset.WriteFANN(f, data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Printf("wrote %s samples=%s inputs=%d outputs=%d\n", *out, humanize.Comma(int64(data.Len())), data.NumInput(), data.NumOutput())
	return nil
}

func formatAUC(s model.RunSummary) string {
	if s.AUCFolds == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.4f±%.4f (%d folds)", s.MeanAUC, s.StdAUC, s.AUCFolds)
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: resectnet <run|evolve|runs|show|export|convert> [flags] [data files]", msg)
}
