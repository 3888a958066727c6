package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"timeslice/internal/config"
	"timeslice/internal/exporter"
	"timeslice/internal/exprcol"
	"timeslice/internal/infrastructure"
	"timeslice/internal/source"
	"timeslice/internal/timeseries"
	"timeslice/pkg/contracts"
	"timeslice/pkg/contracts/domain"
)

func main() {
	configFile := flag.String("config", "timeslice.yaml", "path to the YAML configuration file")
	input := flag.String("input", "", "input file path ('-' for stdin, overrides config)")
	output := flag.String("output", "", "output file path (defaults to stdout, overrides config)")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(contracts.GetFullVersionString())
		return
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if *input != "" {
		cfg.Input.Path = *input
	}
	if *output != "" {
		cfg.Output.Path = *output
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("Failed to initialize logger, using default", "error", err)
		logger = slog.Default()
	}

	runID := uuid.New().String()
	ctx := infrastructure.WithRunID(context.Background(), runID)

	logger.InfoContext(ctx, "Starting timeslice run",
		slog.String("version", contracts.Version),
		slog.String("input", cfg.Input.Path),
		slog.String("input_format", cfg.Input.Format),
		slog.String("output_format", cfg.Output.Format),
		slog.Int("window_size", cfg.Window.Size),
		slog.Int("window_offset", cfg.Window.Offset))

	var recorder timeseries.Recorder
	if cfg.Metrics.Enabled {
		providers, err := infrastructure.InitializeMetrics(logger)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to initialize metrics", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := providers.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Metrics shutdown failed", "error", err)
			}
		}()
		recorder = providers.Pipeline

		mux := http.NewServeMux()
		mux.Handle("/metrics", providers.PrometheusHTTP)
		go func() {
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				logger.Warn("Metrics endpoint stopped", "error", err)
			}
		}()
	}

	count, err := run(ctx, cfg, logger, recorder)
	if err != nil {
		logger.ErrorContext(ctx, "Run failed", "error", err)
		os.Exit(1)
	}
	logger.InfoContext(ctx, "Run complete", slog.Int("rows_written", count))
}

// run builds the source, the iterator, and the writer from configuration
// and drains the whole stream.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, recorder timeseries.Recorder) (int, error) {
	src, cleanup, err := buildSource(cfg)
	if err != nil {
		return 0, fmt.Errorf("failed to build row source: %w", err)
	}
	defer cleanup()

	policy := timeseries.SkipRow
	if cfg.Window.OnEvalError == "partial" {
		policy = timeseries.EmitPartial
	}

	it, err := timeseries.New(src, timeseries.Options{
		WindowSize:    cfg.Window.Size,
		WindowOffset:  cfg.Window.Offset,
		BeforePadding: paddingValues(cfg.Window.BeforePadding),
		AfterPadding:  paddingValues(cfg.Window.AfterPadding),
		OnEvalError:   policy,
		Logger:        logger,
		Metrics:       recorder,
	})
	if err != nil {
		return 0, err
	}

	for _, spec := range cfg.Columns {
		fn, err := exprcol.DerivedColumn(spec.Expression)
		if err != nil {
			return 0, err
		}
		if err := it.AddDerivedColumn(spec.Name, fn); err != nil {
			return 0, err
		}
		logger.DebugContext(ctx, "Registered derived column",
			slog.String("name", spec.Name),
			slog.String("expression", spec.Expression))
	}
	for _, expression := range cfg.Filters {
		pred, err := exprcol.Filter(expression)
		if err != nil {
			return 0, err
		}
		it.AddFilter(pred)
	}

	out := io.Writer(os.Stdout)
	if cfg.Output.Path != "" && cfg.Output.Path != "-" {
		file, err := os.Create(cfg.Output.Path)
		if err != nil {
			return 0, fmt.Errorf("failed to create output file: %w", err)
		}
		defer file.Close()
		out = file
	}

	switch cfg.Output.Format {
	case "jsonl":
		return exporter.NewJSONLWriter().Write(out, it)
	default:
		return exporter.NewCSVWriter(logger).Write(out, it, exporter.WriteOptions{
			Columns: it.Columns(),
		})
	}
}

// buildSource opens the configured input as a row source
func buildSource(cfg *config.Config) (timeseries.RowSource, func(), error) {
	switch cfg.Input.Format {
	case "excel":
		src, err := source.NewExcel(cfg.Input.Path, source.ExcelOptions{
			Sheet:     cfg.Input.Sheet,
			Header:    cfg.Input.Header,
			HasHeader: cfg.Input.HasHeader,
		})
		if err != nil {
			return nil, nil, err
		}
		return src, func() { src.Close() }, nil
	default:
		reader := io.Reader(os.Stdin)
		cleanup := func() {}
		if cfg.Input.Path != "" && cfg.Input.Path != "-" {
			file, err := os.Open(cfg.Input.Path)
			if err != nil {
				return nil, nil, err
			}
			reader = file
			cleanup = func() { file.Close() }
		}
		src, err := source.NewCSV(reader, source.CSVOptions{
			Delimiter: parseDelimiter(cfg.Input.Delimiter),
			Header:    cfg.Input.Header,
			HasHeader: cfg.Input.HasHeader,
			Encoding:  cfg.Input.Encoding,
		})
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		return src, cleanup, nil
	}
}

func paddingValues(m map[string]float64) map[string]domain.Value {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]domain.Value, len(m))
	for col, f := range m {
		out[col] = domain.Number(f)
	}
	return out
}

func parseDelimiter(s string) rune {
	switch s {
	case "":
		return 0
	case "\\t", "tab":
		return '\t'
	default:
		return []rune(s)[0]
	}
}
