package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"royal/batch"
	"royal/config"
	"royal/internal"
	"royal/logger"
	"royal/parser"
	"royal/render"
	"royal/server"
	"royal/store"
)

// Exit codes
const (
	exitOK          = 0
	exitParseErrors = 1
	exitFailure     = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) > 0 {
		switch args[0] {
		case "version":
			fmt.Fprintln(stdout, GetBuildInfo())
			return exitOK
		case "serve":
			return runServe(ctx, args[1:], stderr)
		case "parse":
			args = args[1:]
		}
	}
	return runParse(ctx, args, stdin, stdout, stderr)
}

// cliFlags holds the flags shared by every command. Only flags given on the
// command line override the loaded configuration.
type cliFlags struct {
	fs         *flag.FlagSet
	configFile string
	envFile    string
	logLevel   string
	logFormat  string
	logFile    string
	db         string
}

func newFlags(name string, stderr io.Writer) *cliFlags {
	f := &cliFlags{fs: flag.NewFlagSet(name, flag.ContinueOnError)}
	f.fs.SetOutput(stderr)
	f.fs.StringVar(&f.configFile, "config", "", "YAML config file (default royal.yaml or $"+config.EnvConfigFile+")")
	f.fs.StringVar(&f.envFile, "env", config.DefaultEnvFile, ".env file with ROYAL_* settings")
	f.fs.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")
	f.fs.StringVar(&f.logFormat, "log-format", "", "log format: text or json")
	f.fs.StringVar(&f.logFile, "log-file", "", "also write logs to this rotated file")
	f.fs.StringVar(&f.db, "db", "", "SQLite database to store parsed messages in")
	return f
}

// load reads configuration and applies the flags that were set
func (f *cliFlags) load(apply func(cfg *config.Config, name string)) (*config.Config, error) {
	configFile := f.configFile
	if configFile == "" {
		configFile = config.DefaultConfigFile
		if path := os.Getenv(config.EnvConfigFile); path != "" {
			configFile = path
		}
	}
	cfg, err := config.LoadFrom(f.envFile, configFile)
	if err != nil {
		return nil, err
	}

	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "log-level":
			cfg.Logging.Level = f.logLevel
		case "log-format":
			cfg.Logging.Format = f.logFormat
		case "log-file":
			cfg.Logging.File = f.logFile
		case "db":
			cfg.Store.Path = f.db
		default:
			if apply != nil {
				apply(cfg, fl.Name)
			}
		}
	})
	return cfg, cfg.Validate()
}

func newLogger(cfg *config.Config, stderr io.Writer, runID string) *logger.ObservabilityLogger {
	return logger.New(logger.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
		Output: stderr,
		Fields: map[string]interface{}{"run_id": runID},
	})
}

func openStore(ctx context.Context, cfg *config.Config, log *logger.ObservabilityLogger) (*store.SQLiteStore, error) {
	if !cfg.IsStoreEnabled() {
		return nil, nil
	}
	st, err := store.Open(ctx, cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	log.Info(logger.ComponentStore, logger.CategoryLifecycle, "Message store opened", map[string]interface{}{"path": cfg.Store.Path})
	return st, nil
}

func runParse(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	f := newFlags("royal", stderr)
	var (
		strict, strictHeader bool
		output, charset, sep string
	)
	f.fs.BoolVar(&strict, "strict", false, "reject messages without an [s] start marker")
	f.fs.BoolVar(&strictHeader, "strict-header", false, "reject [msg ID] headers without a speaker token")
	f.fs.StringVar(&output, "output", "", "output format: text, json or yaml")
	f.fs.StringVar(&charset, "charset", "", "charset of the input scripts (utf-8, shift_jis, utf-16, ...)")
	f.fs.StringVar(&sep, "sep", "", "separator inserted between the lines of one message")
	f.fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: royal [flags] [script ...]\n       royal serve [flags]\n       royal version\n\nReads standard input when no script is given.\n\n")
		f.fs.PrintDefaults()
	}
	if err := f.fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitFailure
	}

	cfg, err := f.load(func(cfg *config.Config, name string) {
		switch name {
		case "strict":
			cfg.Parser.RequireStart = strict
		case "strict-header":
			cfg.Parser.RequireSpeakerToken = strictHeader
		case "output":
			cfg.Output.Format = output
		case "charset":
			cfg.Batch.Charset = charset
		case "sep":
			cfg.Batch.JoinSeparator = sep
		}
	})
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return exitFailure
	}

	runID := uuid.NewString()
	log := newLogger(cfg, stderr, runID)
	defer log.Close()
	ctx = internal.WithRunID(ctx, runID)

	writer, err := render.New(stdout, cfg.Output.Format)
	if err != nil {
		log.Error(logger.ComponentCLI, logger.CategoryError, "Invalid output format", map[string]interface{}{"error": err.Error()})
		return exitFailure
	}

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error(logger.ComponentStore, logger.CategoryError, "Failed to open message store", map[string]interface{}{"error": err.Error()})
		return exitFailure
	}
	if st != nil {
		defer st.Close()
	}

	requireStart, requireSpeaker := cfg.GetParserConfiguration()
	p := parser.New(parser.Options{
		RequireStart:        requireStart,
		RequireSpeakerToken: requireSpeaker,
		Logger:              log.Component(logger.ComponentParser),
	})

	sources := f.fs.Args()
	if len(sources) == 0 {
		sources = []string{"-"}
	}

	var total batch.Summary
	for _, source := range sources {
		summary, err := parseSource(ctx, source, stdin, p, cfg, log, writer, st)
		total.Merge(summary)
		if err != nil {
			log.Error(logger.ComponentCLI, logger.CategoryError, "Failed to process script", map[string]interface{}{
				"source": source,
				"error":  err.Error(),
			})
			return exitFailure
		}
	}

	log.Info(logger.ComponentCLI, logger.CategorySuccess, "Parse run complete", map[string]interface{}{
		"scripts":          len(sources),
		"records":          total.Records,
		"parsed":           total.Parsed,
		"failed":           total.Failed,
		"skipped_lines":    total.Skipped,
		"confidant_awards": total.Awards,
	})

	if total.Failed > 0 {
		return exitParseErrors
	}
	return exitOK
}

// parseSource parses one script file ("-" for stdin), rendering and optionally storing every record
func parseSource(ctx context.Context, source string, stdin io.Reader, p *parser.Parser, cfg *config.Config,
	log *logger.ObservabilityLogger, writer render.Writer, st *store.SQLiteStore) (batch.Summary, error) {
	in := stdin
	if source != "-" {
		file, err := os.Open(source)
		if err != nil {
			return batch.Summary{}, err
		}
		defer file.Close()
		in = file
	}

	decoded, err := batch.DecodeReader(in, cfg.Batch.Charset)
	if err != nil {
		return batch.Summary{}, err
	}

	ctx = internal.WithSource(ctx, source)
	return batch.Run(ctx, decoded, p, batch.Options{Separator: cfg.Batch.JoinSeparator, Logger: log},
		func(ctx context.Context, result batch.Result) error {
			entry := render.Entry{
				Source:  source,
				Index:   result.Record.Index,
				Line:    result.Record.Line,
				Message: result.Message,
			}
			if result.Err != nil {
				entry.Error = result.Err.Error()
				entry.Reason = string(parser.ReasonOf(result.Err))
			}
			if err := writer.Write(entry); err != nil {
				return err
			}
			if st != nil && result.Message != nil {
				return st.Save(ctx, source, result.Record.Index, result.Message)
			}
			return nil
		})
}

func runServe(ctx context.Context, args []string, stderr io.Writer) int {
	f := newFlags("royal serve", stderr)
	var port string
	f.fs.StringVar(&port, "port", "", "listen port (default 8787 or $"+config.EnvPort+")")
	if err := f.fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitFailure
	}

	cfg, err := f.load(func(cfg *config.Config, name string) {
		if name == "port" {
			cfg.Server.Port = port
		}
	})
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return exitFailure
	}

	log := newLogger(cfg, stderr, uuid.NewString())
	defer log.Close()

	log.Info(logger.ComponentConfig, logger.CategoryLifecycle, "Configuration loaded", map[string]interface{}{
		"require_start":         cfg.IsStrictStartEnabled(),
		"require_speaker_token": cfg.IsStrictHeaderEnabled(),
		"charset":               cfg.Batch.Charset,
		"port":                  cfg.Server.Port,
		"max_body_bytes":        cfg.Server.MaxBodyBytes,
		"store_enabled":         cfg.IsStoreEnabled(),
		"version":               GetVersionInfo(),
	})

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error(logger.ComponentStore, logger.CategoryError, "Failed to open message store", map[string]interface{}{"error": err.Error()})
		return exitFailure
	}
	if st != nil {
		defer st.Close()
	}

	srv := server.New(server.Options{Config: cfg, Logger: log, Store: st, Version: Version})
	if err := srv.ListenAndServe(ctx); err != nil {
		return exitFailure
	}
	return exitOK
}
