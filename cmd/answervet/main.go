package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"answervet/internal/batch"
	"answervet/internal/capability"
	"answervet/internal/config"
	"answervet/internal/linkcheck"
	"answervet/internal/llm"
	"answervet/internal/logging"
	"answervet/internal/progress"
	"answervet/internal/store"
	"answervet/internal/table"
	"answervet/internal/workflow"
)

const version = "1.0.0"

var (
	// Global flags
	verbose   bool
	apiKey    string
	workspace string
	modelName string

	// Logger
	logger *zap.Logger

	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "answervet",
	Short: "answervet - vetted Q&A synthesis at batch scale",
	Long: `answervet answers questions and refuses to hand back anything it cannot
defend: every answer is fact-checked by an independent validator and every
cited link is probed for reachability and judged for relevance before the
answer is accepted. Rejected answers are regenerated with the rejection
reasons fed back, up to a bounded number of attempts.

Point it at a question for a single run, or at an XLSX/CSV table to answer
every row over a fixed worker pool.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if workspace == "" {
			wd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to resolve workspace: %w", err)
			}
			workspace = wd
		}

		// Initialize logger
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if err := logging.Initialize(workspace); err != nil {
			logger.Warn("File logging unavailable", zap.Error(err))
		}
		logging.Boot("answervet %s starting in %s", version, workspace)

		cfg, err = config.Load(filepath.Join(workspace, ".answervet", "config.yaml"))
		if err != nil {
			return err
		}
		if apiKey != "" {
			cfg.LLM.APIKey = apiKey
		}
		if modelName != "" {
			cfg.LLM.Model = modelName
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// askCmd answers a single question
var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a single question with validation and link vetting",
	Long: `Runs one question through the full answer workflow:
  1. Generate: draft an answer with supporting links
  2. Sanitize: strip markup, split out candidate links
  3. Validate: fact-check the prose and vet every link concurrently
  4. Decide: accept, or retry with the rejection reasons fed back

Example:
  answervet ask "What is the default port for PostgreSQL?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

// batchCmd answers a whole table of questions
var batchCmd = &cobra.Command{
	Use:   "batch [file]",
	Short: "Answer every question in an XLSX or CSV table",
	Long: `Loads questions from a table and runs each row through the answer
workflow over a fixed pool of workers. Rows are dequeued in file order;
one row's failure never stops the others. Ctrl-C stops gracefully: workers
finish their current row and completed results are written out.

Example:
  answervet batch questions.xlsx --output answered.xlsx
  answervet batch questions.csv --watch`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

// auditCmd shows recent recorded runs
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show recent recorded runs from the audit store",
	RunE:  runAudit,
}

// versionCmd prints the version
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the answervet version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("answervet %s\n", version)
	},
}

var (
	askContext  string
	askLimit    int
	askAttempts int

	batchOutput  string
	batchWorkers int
	batchWatch   bool

	auditLimit int
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Gemini API key (or set GEMINI_API_KEY env)")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVar(&modelName, "model", "", "Override the configured model")

	askCmd.Flags().StringVar(&askContext, "context", "", "Background context for the question")
	askCmd.Flags().IntVar(&askLimit, "char-limit", 0, "Answer length limit (default: config)")
	askCmd.Flags().IntVar(&askAttempts, "max-attempts", 0, "Retry budget (default: config)")

	batchCmd.Flags().StringVarP(&batchOutput, "output", "o", "", "Output file (default: <input>.answered.<ext>)")
	batchCmd.Flags().IntVar(&batchWorkers, "workers", 0, "Worker pool size (default: config)")
	batchCmd.Flags().BoolVar(&batchWatch, "watch", false, "Re-run the batch whenever the input file changes")

	auditCmd.Flags().IntVar(&auditLimit, "limit", 20, "Number of runs to show")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildStack wires the LLM client, capabilities and link verifier into a
// workflow factory. Each row gets a fresh workflow from the factory.
func buildStack() (batch.WorkflowFactory, error) {
	if cfg.LLM.APIKey == "" {
		return nil, fmt.Errorf("no API key: pass --api-key or set GEMINI_API_KEY")
	}

	client, err := llm.NewGeminiClient(llm.GeminiConfig{
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLMTimeout(),
	})
	if err != nil {
		return nil, err
	}

	generator := capability.NewGenerator(client, cfg.GenerateTimeout())
	checker := capability.NewFactChecker(client, cfg.ValidateTimeout())
	judge := capability.NewRelevanceJudge(client, cfg.RelevanceTimeout())

	var fetcher linkcheck.ContentFetcher
	if cfg.Links.UseBrowser {
		fetcher = linkcheck.NewRodFetcher(cfg.FetchTimeout())
	} else {
		fetcher = linkcheck.NewHTTPFetcher(cfg.FetchTimeout(), cfg.Links.MaxContentBytes, cfg.Links.UserAgent)
	}

	verifier := linkcheck.NewVerifier(linkcheck.Config{
		ProbeTimeout: cfg.ProbeTimeout(),
		UserAgent:    cfg.Links.UserAgent,
	}, fetcher, judge)

	return func() *workflow.Workflow {
		return workflow.New(generator, checker, verifier)
	}, nil
}

// openStore opens the audit store when enabled. A nil store is valid and
// means auditing is off.
func openStore() *store.AuditStore {
	if !cfg.Store.Enabled {
		return nil
	}
	dbPath := cfg.Store.DatabasePath
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(workspace, dbPath)
	}
	s, err := store.NewAuditStore(dbPath)
	if err != nil {
		logger.Warn("Audit store unavailable", zap.Error(err))
		return nil
	}
	return s
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("Received shutdown signal")
		cancel()
	}()

	factory, err := buildStack()
	if err != nil {
		return err
	}

	q := workflow.Question{
		Text:        strings.Join(args, " "),
		Context:     askContext,
		CharLimit:   cfg.Workflow.CharLimit,
		MaxAttempts: cfg.Workflow.MaxAttempts,
	}
	if askLimit > 0 {
		q.CharLimit = askLimit
	}
	if askAttempts > 0 {
		q.MaxAttempts = askAttempts
	}

	wf := factory()
	wf.SetStageHook(func(s workflow.Stage) {
		fmt.Println(renderStage(string(s)))
	})

	logger.Info("Answering question", zap.String("question", q.Text))
	result, err := wf.Run(ctx, q)
	if err != nil {
		return err
	}

	if s := openStore(); s != nil {
		defer s.Close()
		if err := s.RecordResult("", 0, result); err != nil {
			logger.Warn("Failed to record run", zap.Error(err))
		}
	}

	fmt.Println(renderResult(result))
	if !result.Succeeded() {
		os.Exit(1)
	}
	return nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	inPath := args[0]
	outPath := batchOutput
	if outPath == "" {
		ext := filepath.Ext(inPath)
		outPath = strings.TrimSuffix(inPath, ext) + ".answered" + ext
	}

	factory, err := buildStack()
	if err != nil {
		return err
	}

	workers := cfg.Batch.Workers
	if batchWorkers > 0 {
		workers = batchWorkers
	}

	auditStore := openStore()
	if auditStore != nil {
		defer auditStore.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runOnce := func(engine *batch.Engine) error {
		rows, err := table.Load(inPath, table.Defaults{
			CharLimit:   cfg.Workflow.CharLimit,
			MaxAttempts: cfg.Workflow.MaxAttempts,
		})
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return fmt.Errorf("no questions found in %s", inPath)
		}

		questions := make([]workflow.Question, len(rows))
		for i, row := range rows {
			questions[i] = row.Question
		}

		logger.Info("Starting batch",
			zap.Int("rows", len(rows)),
			zap.Int("workers", workers),
			zap.String("input", inPath))

		result, err := engine.Run(ctx, questions)
		if err != nil {
			return err
		}

		if auditStore != nil {
			for _, rr := range result.Rows {
				var recErr error
				if rr.Err != nil {
					recErr = auditStore.RecordError(result.JobID, rr.Row, questions[rr.Row].Text, rr.Err)
				} else {
					recErr = auditStore.RecordResult(result.JobID, rr.Row, rr.Result)
				}
				if recErr != nil {
					logger.Warn("Failed to record row", zap.Int("row", rr.Row), zap.Error(recErr))
				}
			}
		}

		if err := table.WriteResults(outPath, rows, toOutcomes(result.Rows)); err != nil {
			return err
		}

		fmt.Println(renderBatchSummary(result, outPath))
		return nil
	}

	newEngine := func() *batch.Engine {
		emitter := progress.NewEmitter()
		emitter.Subscribe(consoleConsumer())
		return batch.NewEngine(factory, workers, emitter)
	}

	// First Ctrl-C stops gracefully, second aborts in-flight rows.
	var current atomic.Pointer[batch.Engine]
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println(renderNotice("Stopping: workers finish their current row..."))
		if engine := current.Load(); engine != nil {
			engine.Stop()
		}
		<-sigCh
		cancel()
	}()

	current.Store(newEngine())
	if err := runOnce(current.Load()); err != nil {
		return err
	}

	if !batchWatch {
		return nil
	}

	// Watch mode: a settled write to the input re-runs the whole batch.
	rerun := make(chan string, 1)
	watcher, err := table.NewWatcher(inPath, func(path string) {
		select {
		case rerun <- path:
		default:
		}
	})
	if err != nil {
		return err
	}
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer watcher.Stop()

	fmt.Println(renderNotice(fmt.Sprintf("Watching %s; Ctrl-C to exit", inPath)))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-rerun:
			fmt.Println(renderNotice("Input changed, re-running batch"))
			current.Store(newEngine())
			if err := runOnce(current.Load()); err != nil {
				logger.Error("Batch re-run failed", zap.Error(err))
				fmt.Println(renderError(err.Error()))
			}
		}
	}
}

// toOutcomes maps engine row results to table rows.
func toOutcomes(rows map[int]batch.RowResult) map[int]table.Outcome {
	outcomes := make(map[int]table.Outcome, len(rows))
	for row, rr := range rows {
		if rr.Err != nil {
			outcomes[row] = table.Outcome{Status: "error", Reason: rr.Err.Error()}
			continue
		}
		out := table.Outcome{
			Status:   string(rr.Result.Status),
			Attempts: rr.Result.Attempts,
			Reason:   strings.Join(rr.Result.Reasons, "; "),
		}
		if rr.Result.Answer != nil {
			out.Answer = rr.Result.Answer.Body
		}
		out.Links = rr.Result.Documentation
		outcomes[row] = out
	}
	return outcomes
}

func runAudit(cmd *cobra.Command, args []string) error {
	dbPath := cfg.Store.DatabasePath
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(workspace, dbPath)
	}
	s, err := store.NewAuditStore(dbPath)
	if err != nil {
		return err
	}
	defer s.Close()

	records, err := s.GetRecent(auditLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println(renderNotice("No recorded runs"))
		return nil
	}

	for _, rec := range records {
		fmt.Println(renderAuditRecord(rec))
	}
	return nil
}
