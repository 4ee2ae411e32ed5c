package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/educheck/educheck/internal/cache"
	"github.com/educheck/educheck/internal/handler"
	appI18n "github.com/educheck/educheck/internal/i18n"
	"github.com/educheck/educheck/internal/llm"
	"github.com/educheck/educheck/internal/ocr"
	"github.com/educheck/educheck/internal/pipeline"
	"github.com/educheck/educheck/internal/scoring"
	"github.com/educheck/educheck/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "educheck",
		Short: "Scanned exam sheet grading with OCR and LLM assistance",
	}

	serve := serveCmd()
	root.AddCommand(serve, processCmd(), evaluateCmd(), feedbackCmd(), exportCmd(), tokenCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `educheck --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

// addCommonFlags registers the flags every subcommand shares: storage,
// model access and logging.
func addCommonFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db", "educheck.db", "SQLite sidecar database path (checkpoints, tokens)")
	f.String("mongo-uri", "mongodb://localhost:27017", "MongoDB connection URI")
	f.String("mongo-db", "educheck", "MongoDB database name")
	f.String("redis-addr", "", "Redis address for score caching (empty = disabled)")
	f.String("llm-url", "https://generativelanguage.googleapis.com/v1beta/openai/", "OpenAI-compatible API base URL")
	f.StringSlice("llm-keys", nil, "API keys, rotated on quota exhaustion (repeatable)")
	f.String("llm-model", "gemini-2.0-flash", "Model name")
	f.Duration("key-cooldown", 5*time.Minute, "How long a quota-exhausted key rests before reuse")
	f.StringSlice("ocr-langs", []string{"eng"}, "Tesseract language codes (repeatable)")
	f.StringP("lang", "l", "en", "Feedback language (en, hi)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	cmd.Flags().StringP("addr", "a", ":8080", "HTTP listen address")
	cmd.Flags().String("upload-dir", "uploads", "Directory for uploaded scans")
	addCommonFlags(cmd)
	return cmd
}

func processCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process [dir]",
		Short: "OCR and parse every scan in a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runProcess,
	}
	cmd.Flags().String("upload-dir", "uploads", "Directory to process when no argument is given")
	addCommonFlags(cmd)
	return cmd
}

func evaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score every processed student sheet against the answer key",
		RunE:  runEvaluate,
	}
	cmd.Flags().String("run-id", "", "Run identifier (empty = generate; reuse to resume an interrupted run)")
	cmd.Flags().Bool("reset", false, "Drop the run's checkpoints and re-evaluate every sheet")
	addCommonFlags(cmd)
	return cmd
}

func feedbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Fill in feedback for results that do not have it yet",
		RunE:  runFeedback,
	}
	addCommonFlags(cmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored results as JSON",
		RunE:  runExport,
	}
	cmd.Flags().String("run-id", "", "Run to export (empty = most recent)")
	cmd.Flags().StringP("output", "o", "-", "Output file path (- for stdout)")
	addCommonFlags(cmd)
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage API tokens",
	}

	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an API token and print it once",
		Args:  cobra.ExactArgs(1),
		RunE:  runTokenCreate,
	}
	addCommonFlags(create)

	revoke := &cobra.Command{
		Use:   "revoke <name>",
		Short: "Revoke an API token",
		Args:  cobra.ExactArgs(1),
		RunE:  runTokenRevoke,
	}
	addCommonFlags(revoke)

	list := &cobra.Command{
		Use:   "list",
		Short: "List active API tokens",
		RunE:  runTokenList,
	}
	addCommonFlags(list)

	cmd.AddCommand(create, revoke, list)
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

	v.SetEnvPrefix("EDUCHECK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("educheck")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/educheck")
	v.AddConfigPath("/etc/educheck")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// app bundles the wired dependencies shared by the subcommands.
type app struct {
	local  *store.Local
	docs   store.DocumentStore
	llm    *llm.Client
	pipe   *pipeline.Pipeline
	closer func()
}

func buildApp(v *viper.Viper) (*app, error) {
	local, err := store.OpenLocal(v.GetString("db"))
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(v.GetString("mongo-uri")))
	if err != nil {
		local.Close()
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := mongoClient.Ping(ctx, nil); err != nil {
		local.Close()
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	docs := store.NewMongoStore(mongoClient, v.GetString("mongo-db"))

	var redisClient *redis.Client
	if addr := v.GetString("redis-addr"); addr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: addr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unreachable, score caching disabled", "addr", addr, "error", err)
			redisClient = nil
		}
	}

	pool := llm.NewCredentialPool(v.GetStringSlice("llm-keys"), v.GetDuration("key-cooldown"))
	llmClient := llm.New(v.GetString("llm-url"), v.GetString("llm-model"), pool)
	if !llmClient.Available() {
		slog.Warn("no API keys configured, running in regex fallback mode")
	}

	engine := scoring.NewEngine(llmClient, llmClient, cache.NewScoreCache(redisClient))

	pipe := &pipeline.Pipeline{
		OCR:         ocr.NewTesseract(v.GetStringSlice("ocr-langs")...),
		LLM:         llmClient,
		Docs:        docs,
		Checkpoints: local,
		Engine:      engine,
	}

	closer := func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mongoClient.Disconnect(disconnectCtx)
		_ = local.Close()
	}

	return &app{local: local, docs: docs, llm: llmClient, pipe: pipe, closer: closer}, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	a, err := buildApp(v)
	if err != nil {
		return err
	}
	defer a.closer()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	h, err := handler.New(a.pipe, a.docs, a.local, a.llm, v.GetString("upload-dir"))
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"model", v.GetString("llm-model"),
		"llm_url", v.GetString("llm-url"),
		"lang", lang,
		"upload_dir", v.GetString("upload-dir"),
	)
	return http.ListenAndServe(addr, r)
}

func runProcess(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	a, err := buildApp(v)
	if err != nil {
		return err
	}
	defer a.closer()

	if err := appI18n.Init(v.GetString("lang")); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	dir := v.GetString("upload-dir")
	if len(args) > 0 {
		dir = args[0]
	}

	stats, err := a.pipe.ProcessDir(cmd.Context(), dir)
	if err != nil {
		return fmt.Errorf("process %s: %w", dir, err)
	}
	return printJSON(os.Stdout, stats)
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	a, err := buildApp(v)
	if err != nil {
		return err
	}
	defer a.closer()

	if err := appI18n.Init(v.GetString("lang")); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	runID := v.GetString("run-id")
	if runID == "" {
		runID = uuid.NewString()
	} else if v.GetBool("reset") {
		if err := a.local.ClearRun(runID); err != nil {
			return fmt.Errorf("reset run %s: %w", runID, err)
		}
	}

	stats, err := a.pipe.Evaluate(cmd.Context(), runID)
	if err != nil {
		return fmt.Errorf("evaluate run %s: %w", runID, err)
	}
	slog.Info("evaluation done", "run_id", runID,
		"evaluated", stats.Evaluated, "skipped", stats.Skipped, "failed", stats.Failed)
	return printJSON(os.Stdout, map[string]any{"run_id": runID, "stats": stats})
}

func runFeedback(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	a, err := buildApp(v)
	if err != nil {
		return err
	}
	defer a.closer()

	if err := appI18n.Init(v.GetString("lang")); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	updated, err := scoring.BackfillFeedback(cmd.Context(), a.docs, a.llm)
	if err != nil {
		return fmt.Errorf("backfill feedback: %w", err)
	}
	return printJSON(os.Stdout, map[string]int{"updated": updated})
}

type resultExport struct {
	RunID      string    `json:"run_id"`
	ExportedAt time.Time `json:"exported_at"`
	Count      int       `json:"count"`
	Results    any       `json:"results"`
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	a, err := buildApp(v)
	if err != nil {
		return err
	}
	defer a.closer()

	runID := v.GetString("run-id")
	if runID == "" {
		runID, err = a.local.GetMeta("last_run_id")
		if err != nil {
			return fmt.Errorf("look up last run: %w", err)
		}
	}

	results, err := a.docs.Results(cmd.Context(), runID)
	if err != nil {
		return fmt.Errorf("load results: %w", err)
	}

	export := resultExport{
		RunID:      runID,
		ExportedAt: time.Now().UTC(),
		Count:      len(results),
		Results:    results,
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
	return printJSON(w, export)
}

func runTokenCreate(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	local, err := store.OpenLocal(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open local store: %w", err)
	}
	defer local.Close()

	plaintext, err := local.CreateToken(args[0])
	if err != nil {
		return fmt.Errorf("create token: %w", err)
	}
	// Printed once; only the hash is stored.
	fmt.Println(plaintext)
	return nil
}

func runTokenRevoke(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	local, err := store.OpenLocal(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open local store: %w", err)
	}
	defer local.Close()

	if err := local.RevokeToken(args[0]); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	slog.Info("token revoked", "name", args[0])
	return nil
}

func runTokenList(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	local, err := store.OpenLocal(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open local store: %w", err)
	}
	defer local.Close()

	tokens, err := local.ActiveTokens()
	if err != nil {
		return fmt.Errorf("list tokens: %w", err)
	}
	return printJSON(os.Stdout, tokens)
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, _ = fmt.Fprintln(w)
	return nil
}
