package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/insightdelivered/statement-processor/internal/ai"
	"github.com/insightdelivered/statement-processor/internal/api"
	"github.com/insightdelivered/statement-processor/internal/categorizer"
	"github.com/insightdelivered/statement-processor/internal/config"
	"github.com/insightdelivered/statement-processor/internal/extractor"
	"github.com/insightdelivered/statement-processor/internal/logger"
	"github.com/insightdelivered/statement-processor/internal/models"
	"github.com/insightdelivered/statement-processor/internal/parser"
	"github.com/insightdelivered/statement-processor/internal/pipeline"
	"github.com/insightdelivered/statement-processor/internal/source"
	"github.com/insightdelivered/statement-processor/internal/writer"
)

const version = "2.0.0"

func main() {
	configFlag := flag.String("config", "", "Path to YAML config file (categories, parser methods, AI providers)")
	bankFlag := flag.String("bank", "", "Institution for every input: cba, anz (auto-detected if omitted)")
	outputFlag := flag.String("output", "", "Output CSV file path (defaults to <input>.csv)")
	headerFlag := flag.Bool("header", true, "Include run metadata header rows in CSV")
	serveFlag := flag.Bool("serve", false, "Run the HTTP API instead of converting files")
	levelFlag := flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	helpFlag := flag.Bool("help", false, "Show usage help")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Bank Statement Transaction Processor
by Insight Delivered (QEA AutoLens)

Extracts and categorises transactions from Commonwealth Bank and ANZ
statements (PDF or extracted text) into a single CSV.

Usage:
  statement-processor [flags] <statement.pdf|directory> [...]
  statement-processor --serve [--config=config.yaml]

Flags:
`)
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Auto-detect institution and convert
  statement-processor statement.pdf

  # Every statement under a directory, with categories from config
  statement-processor --config=config.yaml --output=all.csv statements/

  # Serve the upload API
  statement-processor --serve --config=config.yaml
`)
	}

	flag.Parse()

	if *versionFlag {
		fmt.Printf("statement-processor v%s\n", version)
		os.Exit(0)
	}
	if *helpFlag || (!*serveFlag && flag.NArg() == 0) {
		flag.Usage()
		os.Exit(0)
	}

	if err := config.LoadEnv(); err != nil {
		fatalf("%v\n", err)
	}
	cfg, err := config.Load(*configFlag)
	if err != nil {
		fatalf("%v\n", err)
	}
	if *levelFlag != "" {
		cfg.LogLevel = *levelFlag
	}
	log := logger.New(cfg.LogLevel)

	registry := parser.DefaultRegistry(log)
	if *bankFlag != "" {
		if _, err := registry.Lookup(*bankFlag); err != nil {
			fatalf("Unknown institution %q. Supported: %s\n", *bankFlag, strings.Join(registry.Aliases(), ", "))
		}
	}
	cat := categorizer.New(cfg.Categories, cfg.DefaultCategory, log)

	aiOpts, err := aiRoutes(cfg, log)
	if err != nil {
		fatalf("%v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *serveFlag {
		if err := serve(ctx, cfg, registry, cat, aiOpts, log); err != nil {
			log.Fatal().Err(err).Msg("server failed")
		}
		return
	}

	outputs, err := outputPaths(flag.Args(), *outputFlag)
	if err != nil {
		fatalf("%v\n", err)
	}
	for i, input := range flag.Args() {
		opts := runOptions{bank: *bankFlag, output: outputs[i], header: *headerFlag}
		if err := processInput(ctx, input, opts, registry, cat, aiOpts, log); err != nil {
			fmt.Fprintf(os.Stderr, "Error processing %s: %v\n", input, err)
			os.Exit(1)
		}
	}
}

// aiRoutes builds one AI extractor per institution configured for AI.
func aiRoutes(cfg *config.Config, log zerolog.Logger) ([]pipeline.DispatcherOption, error) {
	routes, err := cfg.AIRoutes(os.Getenv)
	if err != nil {
		return nil, err
	}

	insts := make([]string, 0, len(routes))
	for inst := range routes {
		insts = append(insts, string(inst))
	}
	sort.Strings(insts)

	var opts []pipeline.DispatcherOption
	for _, name := range insts {
		inst := models.Institution(name)
		p, err := ai.NewProvider(routes[inst])
		if err != nil {
			return nil, fmt.Errorf("parsers.%s: %w", name, err)
		}
		if !p.HasCredential() {
			log.Warn().Str("institution", name).Str("provider", p.Name()).Msg("AI provider has no credential; documents will fall back to text parsing")
		}
		log.Info().Str("institution", name).Str("provider", p.Name()).Msg("AI extraction enabled")
		opts = append(opts, pipeline.WithAIExtractor(inst, ai.NewExtractor(p, inst, ai.WithLogger(log))))
	}
	return opts, nil
}

func serve(ctx context.Context, cfg *config.Config, registry *parser.Registry, cat *categorizer.Categorizer, aiOpts []pipeline.DispatcherOption, log zerolog.Logger) error {
	h := api.New(api.Options{
		Registry:    registry,
		Categorizer: cat,
		AI:          aiOpts,
		Text:        extractor.New(log),
		CacheTTL:    cfg.CacheTTL(),
		MaxUploadMB: cfg.Server.MaxUploadMB,
		Version:     version,
	}, log)
	app := h.App()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown failed")
		}
	}()

	log.Info().Str("addr", cfg.Server.Addr).Msg("listening")
	return app.Listen(cfg.Server.Addr)
}

type runOptions struct {
	bank   string
	output string
	header bool
}

func processInput(ctx context.Context, input string, opts runOptions, registry *parser.Registry, cat *categorizer.Categorizer, aiOpts []pipeline.DispatcherOption, log zerolog.Logger) error {
	if _, err := os.Stat(input); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("input not found: %s", input)
	}

	fmt.Printf("Processing: %s\n", input)

	src := source.NewDirectory(input, opts.bank, extractor.New(log), log)
	dispatcher := pipeline.NewDispatcher(registry, src, log, aiOpts...)
	report, err := pipeline.NewProcessor(dispatcher, cat, log).RunSource(ctx, src)
	if err != nil {
		return err
	}

	w := &writer.CSVWriter{
		IncludeHeader: opts.header,
		Meta: writer.Metadata{
			RunID:       report.RunID,
			Source:      input,
			Documents:   report.Stats.Queried,
			Skipped:     report.Stats.Skipped(),
			GeneratedAt: time.Now().Format(time.RFC3339),
		},
	}
	if err := w.WriteToFile(opts.output, report.Records); err != nil {
		return fmt.Errorf("CSV write failed: %w", err)
	}

	printSummary(report, pipeline.Summarize(report.Records, cat.IsCategorized), opts.output)
	return nil
}

func printSummary(report *pipeline.RunReport, s pipeline.Summary, output string) {
	st := report.Stats
	fmt.Printf("  Documents: %d queried, %d processed, %d skipped\n", st.Queried, st.Processed, st.Skipped())
	if st.Skipped() > 0 {
		fmt.Printf("    no correspondent: %d, unsupported institution: %d, parse error: %d\n",
			st.SkippedNoCorrespondent, st.SkippedUnknown, st.SkippedParseError)
	}
	for _, d := range report.Documents {
		if !d.Outcome.OK() {
			fmt.Printf("  Document %d: skipped (%s)\n", d.DocumentID, d.Outcome.Error)
			continue
		}
		fmt.Printf("  Document %d: %s via %s, %d transaction(s)", d.DocumentID, d.Outcome.Institution.DisplayName(), d.Outcome.Method, len(d.Outcome.Transactions))
		if d.Outcome.AccountNumber != "" {
			fmt.Printf(", account %s", d.Outcome.AccountNumber)
		}
		fmt.Println()
	}
	fmt.Printf("  Transactions: %d (%.1f%% categorised)\n", s.Transactions, s.CategorizedPercent())
	fmt.Printf("  Debits: %s  Credits: %s  Net: %s\n", s.TotalDebits.StringFixed(2), s.TotalCredits.StringFixed(2), s.Net.StringFixed(2))
	for _, name := range report.Categories.Categories() {
		fmt.Printf("    %-24s %d\n", name, report.Categories.ByCategory[name])
	}
	if s.Transactions == 0 {
		fmt.Println("  Warning: No transactions found. The statement layout may not match the institution's parser.")
		fmt.Println("  Try specifying the institution explicitly with --bank if auto-detection was used.")
	}
	fmt.Printf("  Output: %s\n", output)
	fmt.Println("  Done.")
}

// outputPaths picks a CSV path per input. An explicit output is only valid
// for a single input; otherwise each input gets <input>.csv beside it.
func outputPaths(inputs []string, explicit string) ([]string, error) {
	if explicit != "" {
		if len(inputs) != 1 {
			return nil, fmt.Errorf("--output takes a single input, got %d; pass a directory to combine statements into one CSV", len(inputs))
		}
		return []string{explicit}, nil
	}
	paths := make([]string, len(inputs))
	for i, in := range inputs {
		clean := filepath.Clean(in)
		paths[i] = strings.TrimSuffix(clean, filepath.Ext(clean)) + ".csv"
	}
	return paths, nil
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(1)
}
