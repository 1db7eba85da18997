package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/qcm/internal/analytics"
	"github.com/pavelanni/qcm/internal/course"
	"github.com/pavelanni/qcm/internal/extract"
	"github.com/pavelanni/qcm/internal/generate"
	"github.com/pavelanni/qcm/internal/handler"
	appI18n "github.com/pavelanni/qcm/internal/i18n"
	"github.com/pavelanni/qcm/internal/jobs"
	"github.com/pavelanni/qcm/internal/llm"
	"github.com/pavelanni/qcm/internal/review"
	"github.com/pavelanni/qcm/internal/roster"
	"github.com/pavelanni/qcm/internal/scoring"
	"github.com/pavelanni/qcm/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "qcm",
		Short: "Turn course documents into validated multiple-choice quizzes",
	}

	serve := serveCmd()
	root.AddCommand(serve, extractCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `qcm --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addExtractFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("ocr-lang", extract.DefaultLang, "Tesseract language for OCR")
	f.String("tesseract-bin", "tesseract", "Path to the tesseract binary")
	f.String("pdftoppm-bin", "pdftoppm", "Path to the pdftoppm binary (empty disables scanned PDFs)")
	f.Int64("extract-max-size-mb", extract.DefaultMaxFileSize>>20, "Largest accepted upload in MB")
}

func addLogFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "qcm.db", "SQLite database path")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.Bool("llm-ping", true, "Check the LLM endpoint at startup")
	f.StringP("lang", "l", "fr", "Default language for prompts and messages (fr, en)")
	f.String("upload-dir", "uploads", "Directory for uploaded course documents")
	f.Int("job-workers", jobs.DefaultWorkers, "Number of documents processed at once")
	addExtractFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

func extractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract FILE",
		Short: "Extract the text of a course document to stdout",
		Args:  cobra.ExactArgs(1),
		RunE:  runExtract,
	}
	cmd.Flags().Bool("json", false, "Print the full extraction result as JSON")
	addExtractFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export teacher analytics as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "qcm.db", "SQLite database path")
	f.Int64("owner", 0, "Teacher ID to export (0 = every teacher)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("QCM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("qcm")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/qcm")
	v.AddConfigPath("/etc/qcm")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// newPipeline builds the extraction pipeline from the extract flags.
func newPipeline(v *viper.Viper) *extract.Pipeline {
	var raster extract.Rasterizer
	if bin := v.GetString("pdftoppm-bin"); bin != "" {
		raster = extract.NewPdftoppm(bin)
	} else {
		slog.Warn("no pdftoppm binary configured, scanned PDFs will be refused")
	}
	return extract.NewPipeline(
		extract.NewTesseract(v.GetString("tesseract-bin")),
		extract.TextLayer{},
		raster,
		extract.Config{
			Lang:        v.GetString("ocr-lang"),
			MaxFileSize: v.GetInt64("extract-max-size-mb") << 20,
		},
	)
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if n, err := db.FailInterruptedJobs(context.Background()); err != nil {
		return fmt.Errorf("reset interrupted jobs: %w", err)
	} else if n > 0 {
		slog.Warn("marked interrupted jobs as failed", "count", n)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	llmClient := llm.New(v.GetString("llm-url"), v.GetString("llm-key"), v.GetString("llm-model"))
	if v.GetBool("llm-ping") {
		if err := llmClient.Ping(context.Background()); err != nil {
			slog.Warn("LLM endpoint unreachable, generation will use placeholders", "url", v.GetString("llm-url"), "error", err)
		} else {
			slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))
		}
	}
	gen, err := generate.New(llmClient, lang)
	if err != nil {
		return fmt.Errorf("create generator: %w", err)
	}

	maxUpload := v.GetInt64("extract-max-size-mb") << 20
	courses := course.New(db, newPipeline(v), gen, v.GetString("upload-dir"), maxUpload)
	runner := jobs.NewRunner(db, v.GetInt("job-workers"))

	h := handler.New(handler.Deps{
		Courses:   courses,
		Review:    review.New(db, courses),
		Scoring:   scoring.New(db),
		Analytics: analytics.NewService(db),
		Roster:    roster.New(db),
		Jobs:      runner,
		MaxUpload: maxUpload,
	})

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Route("/api", h.Routes)

	addr := v.GetString("addr")
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", addr,
			"model", v.GetString("llm-model"),
			"llm_url", v.GetString("llm-url"),
			"lang", lang,
			"ocr_lang", v.GetString("ocr-lang"),
			"job_workers", v.GetInt("job-workers"),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		slog.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "error", err)
	}
	if err := runner.Shutdown(shutdownCtx); err != nil {
		slog.Warn("jobs shutdown", "error", err)
	}
	return nil
}

func runExtract(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	res, err := newPipeline(v).Extract(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if v.GetBool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	_, err = fmt.Fprintln(os.Stdout, res.Text)
	return err
}

// analyticsExport is the document written by the export command.
type analyticsExport struct {
	GeneratedAt time.Time                  `json:"generated_at"`
	OwnerID     int64                      `json:"owner_id,omitempty"`
	Dashboard   analytics.TeacherDashboard `json:"dashboard"`
	Classes     analytics.ClassComparison  `json:"classes"`
	Grades      analytics.GradeReport      `json:"grades"`
	FollowUp    analytics.FollowUp         `json:"follow_up"`
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	owner := v.GetInt64("owner")
	svc := analytics.NewService(db)
	export := analyticsExport{GeneratedAt: time.Now().UTC(), OwnerID: owner}
	if export.Dashboard, err = svc.TeacherDashboard(ctx, owner); err != nil {
		return fmt.Errorf("teacher dashboard: %w", err)
	}
	if export.Classes, err = svc.CompareClasses(ctx, owner); err != nil {
		return fmt.Errorf("class comparison: %w", err)
	}
	if export.Grades, err = svc.GradeReport(ctx, owner); err != nil {
		return fmt.Errorf("grade report: %w", err)
	}
	if export.FollowUp, err = svc.FollowUp(ctx, owner, 0); err != nil {
		return fmt.Errorf("follow-up: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, _ = fmt.Fprintln(w)

	return nil
}
