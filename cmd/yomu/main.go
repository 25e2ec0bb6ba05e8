package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/conorfennell/yomu/internal/analysis"
	"github.com/conorfennell/yomu/internal/article"
	"github.com/conorfennell/yomu/internal/config"
	"github.com/conorfennell/yomu/internal/definition"
	"github.com/conorfennell/yomu/internal/importer"
	"github.com/conorfennell/yomu/internal/storage"
	"github.com/conorfennell/yomu/internal/sync"
	"github.com/conorfennell/yomu/internal/web"
)

const usage = `Usage: yomu <command> [flags]

Commands:
  serve                        run the HTTP API
  add-source <path|git-url>    register a passage source
  remove-source <path|git-url> forget a source and its passages
  sync                         import passages from all sources
  import-url <url>             save a web article as a text
  import-cards <file>          bulk-create cards from .xlsx or .csv
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "serve":
		err = runServe(ctx, args)
	case "add-source":
		err = runAddSource(ctx, args)
	case "remove-source":
		err = runRemoveSource(ctx, args)
	case "sync":
		err = runSync(ctx, args)
	case "import-url":
		err = runImportURL(ctx, args)
	case "import-cards":
		err = runImportCards(ctx, args)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		slog.Error("Command failed", "command", os.Args[1], "error", err)
		stop()
		os.Exit(1)
	}
}

// setup parses args, installs the configured logger and opens the database.
func setup(name string, args []string, extra func(*pflag.FlagSet)) (*config.Config, *storage.DB, []string, error) {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	config.RegisterFlags(flags)
	if extra != nil {
		extra(flags)
	}
	if err := flags.Parse(args); err != nil {
		return nil, nil, nil, err
	}

	cfg, err := config.Load(flags)
	if err != nil {
		return nil, nil, nil, err
	}
	slog.SetDefault(cfg.Logger())

	db, err := storage.Open(cfg.DB.Path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	slog.Info("Database opened successfully", "path", cfg.DB.Path)
	return cfg, db, flags.Args(), nil
}

func runServe(ctx context.Context, args []string) error {
	cfg, db, _, err := setup("serve", args, nil)
	if err != nil {
		return err
	}
	defer db.Close()

	var seg analysis.Segmenter
	engine := "none"
	if k, err := analysis.NewKagome(); err != nil {
		slog.Error("Tokenizer unavailable, analysis will return no tokens", "error", err)
	} else {
		seg, engine = k, k.Name()
	}
	analyzer := analysis.NewAnalyzer(seg, engine)
	definer := definition.NewClient(cfg.Definition.URL, cfg.Definition.Timeout)

	handler := web.NewServer(db, analyzer, definer,
		web.WithReposDir(cfg.Sync.ReposDir),
		web.WithArticles(article.NewFetcher(article.DefaultTimeout)),
	)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server starting", "addr", cfg.Server.Addr, "engine", engine)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runAddSource(ctx context.Context, args []string) error {
	_, db, rest, err := setup("add-source", args, nil)
	if err != nil {
		return err
	}
	defer db.Close()

	if len(rest) != 1 {
		return errors.New("add-source takes exactly one path or git URL")
	}
	id, err := sync.AddSource(ctx, db, rest[0])
	if err != nil {
		return err
	}
	fmt.Printf("Source added with ID %d (%s)\n", id, sync.SourceType(rest[0]))
	return nil
}

func runRemoveSource(ctx context.Context, args []string) error {
	_, db, rest, err := setup("remove-source", args, nil)
	if err != nil {
		return err
	}
	defer db.Close()

	if len(rest) != 1 {
		return errors.New("remove-source takes exactly one path or git URL")
	}
	if err := sync.RemoveSource(ctx, db, rest[0]); err != nil {
		return err
	}
	fmt.Printf("Source removed: %s\n", rest[0])
	return nil
}

func runSync(ctx context.Context, args []string) error {
	cfg, db, _, err := setup("sync", args, nil)
	if err != nil {
		return err
	}
	defer db.Close()

	reports, err := sync.Run(ctx, db, cfg.Sync.ReposDir)
	if err != nil {
		return err
	}
	for _, r := range reports {
		fmt.Printf("Source %d: %d passages, %d written, %d removed, %d errors.\n",
			r.SourceID, r.Parsed, r.Written, r.Removed, len(r.Errors))
		for _, e := range r.Errors {
			fmt.Printf("- %s\n", e)
		}
	}
	return nil
}

func runImportURL(ctx context.Context, args []string) error {
	_, db, rest, err := setup("import-url", args, nil)
	if err != nil {
		return err
	}
	defer db.Close()

	if len(rest) != 1 {
		return errors.New("import-url takes exactly one URL")
	}
	text, err := article.NewFetcher(article.DefaultTimeout).Fetch(ctx, rest[0])
	if err != nil {
		return err
	}
	saved, _, err := db.SaveText(ctx, text, time.Now())
	if err != nil {
		return err
	}
	fmt.Printf("Text saved: %s (%s)\n", saved.Title, saved.ID)
	return nil
}

func runImportCards(ctx context.Context, args []string) error {
	icfg := importer.DefaultConfig()
	_, db, rest, err := setup("import-cards", args, func(flags *pflag.FlagSet) {
		flags.StringVar(&icfg.SheetName, "sheet", "", "Sheet to read (default: first sheet)")
		flags.StringVar(&icfg.WordColumn, "word-col", icfg.WordColumn, "Column holding the word")
		flags.StringVar(&icfg.ReadingColumn, "reading-col", icfg.ReadingColumn, "Column holding the reading")
		flags.StringVar(&icfg.MeaningColumn, "meaning-col", icfg.MeaningColumn, "Column holding the meaning")
		flags.IntVar(&icfg.StartRow, "start-row", icfg.StartRow, "First data row (1-based)")
	})
	if err != nil {
		return err
	}
	defer db.Close()

	if len(rest) != 1 {
		return errors.New("import-cards takes exactly one file")
	}
	icfg.FilePath = rest[0]

	result, err := importer.Import(ctx, db, icfg, time.Now())
	if err != nil {
		return err
	}
	fmt.Printf("Processed %d rows: %d created, %d skipped, %d errors.\n",
		result.TotalProcessed, result.Created, result.Skipped, len(result.Errors))
	for _, e := range result.Errors {
		fmt.Printf("- %s\n", e)
	}
	return nil
}
