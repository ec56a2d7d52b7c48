package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"

	"github.com/xhad/ask/pkg/chunker"
	cfgPkg "github.com/xhad/ask/pkg/config"
	"github.com/xhad/ask/pkg/embed"
	"github.com/xhad/ask/pkg/extract"
	"github.com/xhad/ask/pkg/llm"
	"github.com/xhad/ask/pkg/pipeline"
	"github.com/xhad/ask/pkg/retrieval"
	"github.com/xhad/ask/pkg/store"
	"github.com/xhad/ask/server"
)

type flags struct {
	configPath string
	source     string
	questions  string
	document   string
	purge      string
	serve      bool
	ollamaURL  string
	dbURL      string
	model      string
	topK       int
}

func main() {
	f := parseFlags()

	if err := run(f); err != nil {
		log.Fatal(err)
	}
}

func parseFlags() flags {
	var f flags

	flag.StringVar(&f.configPath, "config", "", "Path to config file")
	flag.StringVar(&f.source, "source", "", "Document URL or file path to ingest")
	flag.StringVar(&f.questions, "questions", "", "Questions to answer, separated by '|'")
	flag.StringVar(&f.document, "document", "", "Document reference to answer against (defaults to -source)")
	flag.StringVar(&f.purge, "purge", "", "Remove every stored chunk for a document, then exit")
	flag.BoolVar(&f.serve, "serve", false, "Start the HTTP/websocket server")
	flag.StringVar(&f.ollamaURL, "ollama-url", "", "Ollama server URL")
	flag.StringVar(&f.dbURL, "db-url", "", "PostgreSQL connection string")
	flag.StringVar(&f.model, "model", "", "LLM model to use")
	flag.IntVar(&f.topK, "top-k", 0, "Number of chunks to retrieve per question")
	flag.Parse()

	return f
}

func loadConfig(f flags) (*cfgPkg.Config, error) {
	// .env is optional; real environment variables win either way.
	if err := godotenv.Load(); err == nil {
		log.Println("loaded environment from .env")
	}

	cfg, err := cfgPkg.LoadConfig(f.configPath)
	if err != nil {
		return nil, err
	}

	// Command line flags override the config file.
	if f.ollamaURL != "" {
		cfg.LLM.BaseURL = f.ollamaURL
		cfg.Embedding.BaseURL = f.ollamaURL
	}
	if f.dbURL != "" {
		cfg.Database.URL = f.dbURL
	}
	if f.model != "" {
		cfg.LLM.Model = f.model
	}
	if f.topK > 0 {
		cfg.Retrieval.TopK = f.topK
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Red("config: %v", e)
		}
		return nil, fmt.Errorf("invalid configuration")
	}

	return cfg, nil
}

// app bundles the wired pipeline components for one process.
type app struct {
	cfg      *cfgPkg.Config
	store    *store.VectorStore
	ingestor *pipeline.Ingestor
	answerer *pipeline.Answerer
}

func buildApp(ctx context.Context, cfg *cfgPkg.Config) (*app, error) {
	provider, err := llm.NewEmbedder(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %v", err)
	}

	embeddings := embed.NewService(provider, embed.Config{
		MaxAttempts: cfg.Embedding.MaxAttempts,
		RateLimit:   cfg.Embedding.RateLimit,
	})

	vectorStore, err := store.NewWithConfig(store.Config{
		ConnString: cfg.Database.URL,
		TableName:  cfg.Database.TableName,
		BatchSize:  cfg.Database.BatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector store: %v", err)
	}

	// The live model decides the column dimension; the configured value
	// only covers an unreachable provider at startup.
	dim := embeddings.ProbeDimension(ctx, 10*time.Second, cfg.Embedding.Dimension)
	if err := vectorStore.EnsureIndex(ctx, dim); err != nil {
		vectorStore.Close()
		return nil, fmt.Errorf("failed to prepare vector index: %v", err)
	}

	generator, err := llm.NewGenerator(cfg.LLM)
	if err != nil {
		vectorStore.Close()
		return nil, fmt.Errorf("failed to initialize generator: %v", err)
	}

	extractor := extract.NewWithConfig(extract.Config{})
	ch := chunker.NewWithConfig(chunker.Config{
		ChunkSize:    cfg.Chunker.ChunkSize,
		ChunkOverlap: cfg.Chunker.ChunkOverlap,
	})

	idMode := pipeline.IDMode(cfg.Ingest.IDMode)
	ingestor := pipeline.NewIngestor(extractor, ch, embeddings, vectorStore, idMode)
	engine := retrieval.NewEngine(embeddings, vectorStore)
	answerer := pipeline.NewAnswerer(engine, generator, pipeline.AnswererConfig{
		TopK:     cfg.Retrieval.TopK,
		MinScore: float32(cfg.Retrieval.MinScore),
		IDMode:   idMode,
	})

	return &app{
		cfg:      cfg,
		store:    vectorStore,
		ingestor: ingestor,
		answerer: answerer,
	}, nil
}

func run(f flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	ctx := context.Background()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.store.Close()

	if f.purge != "" {
		if err := a.ingestor.Purge(ctx, f.purge); err != nil {
			return err
		}
		color.Green("✓ Removed stored chunks for %s\n", f.purge)
		return nil
	}

	if f.serve {
		return server.New(cfg.Server.Addr, a.ingestor, a.answerer).Run()
	}

	document := f.document
	if f.source != "" {
		id, err := ingestWithSpinner(ctx, a, f.source)
		if err != nil {
			return err
		}
		if document == "" {
			document = a.ingestor.Handle(f.source, id)
		}
		color.Green("✓ Ingested as %s\n", id)
	}

	if f.questions != "" {
		if document == "" {
			return fmt.Errorf("-questions requires -source or -document")
		}
		return answerOnce(ctx, a, document, splitQuestions(f.questions))
	}

	return runInteractive(ctx, a, document)
}

func ingestWithSpinner(ctx context.Context, a *app, source string) (string, error) {
	spinner := getSpinner(" Ingesting document...")
	id, err := a.ingestor.Ingest(ctx, source)
	spinner.Finish()
	fmt.Println()
	return id, err
}

func answerOnce(ctx context.Context, a *app, document string, questions []string) error {
	if len(questions) == 0 {
		return fmt.Errorf("no questions given")
	}

	bar := getProgressBar(len(questions), " Answering questions")
	answers := make([]string, 0, len(questions))

	// Questions are answered one at a time here so the bar can advance;
	// batch callers go through the server API instead.
	for _, q := range questions {
		ans, err := a.answerer.Answer(ctx, document, []string{q}, 0)
		if err != nil {
			bar.Finish()
			return err
		}
		answers = append(answers, ans[0])
		bar.Add(1)
	}
	bar.Finish()
	fmt.Println()

	for i, q := range questions {
		color.Cyan("Q%d: %s", i+1, q)
		fmt.Printf("%s\n\n", answers[i])
	}
	return nil
}

func splitQuestions(s string) []string {
	parts := strings.Split(s, "|")
	questions := make([]string, 0, len(parts))
	for _, p := range parts {
		if q := strings.TrimSpace(p); q != "" {
			questions = append(questions, q)
		}
	}
	return questions
}

func runInteractive(ctx context.Context, a *app, document string) error {
	color.Cyan("\nAsk questions about a document (type 'exit' to quit)")
	color.White("Paste a URL or file path to ingest it; anything else is a question.")

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if strings.ToLower(input) == "exit" {
			break
		}

		if looksLikeSource(input) {
			id, err := ingestWithSpinner(ctx, a, input)
			if err != nil {
				color.Red("Failed to ingest: %v\n", err)
				continue
			}
			document = a.ingestor.Handle(input, id)
			color.Green("✓ Ingested as %s\n", id)
			continue
		}

		if document == "" {
			color.Red("No document ingested yet. Paste a URL or file path first.\n")
			continue
		}

		spinner := getSpinner(" Searching document...")
		answers, err := a.answerer.Answer(ctx, document, []string{input}, 0)
		spinner.Finish()
		fmt.Println()

		if err != nil {
			color.Red("Error: %v\n", err)
			continue
		}
		assistantPrompt("Assistant: %s\n", answers[0])
	}

	return scanner.Err()
}

func looksLikeSource(input string) bool {
	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		return true
	}
	if strings.ContainsAny(input, " \t") {
		return false
	}
	_, err := os.Stat(input)
	return err == nil
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("items"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}
