package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/didact-dev/didact/pkg/didact"
	"github.com/didact-dev/didact/pkg/embeddings"
	"github.com/didact-dev/didact/pkg/llm"
	"github.com/didact-dev/didact/pkg/logger"
	"github.com/didact-dev/didact/pkg/store"
	"github.com/didact-dev/didact/pkg/trace"
)

func main() {
	app := &cli.App{
		Name:  "didact",
		Usage: "Knowledge-graph tutor: ingest course material, then ask it questions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db",
				Usage:   "Path to the SQLite graph database",
				Value:   "didact.db",
				EnvVars: []string{"DIDACT_DB"},
			},
			&cli.StringFlag{
				Name:    "neo4j-uri",
				Usage:   "Neo4j URI; when set, the graph lives in Neo4j instead of SQLite",
				EnvVars: []string{"NEO4J_URI"},
			},
			&cli.StringFlag{
				Name:    "neo4j-user",
				Usage:   "Neo4j username",
				Value:   "neo4j",
				EnvVars: []string{"NEO4J_USER"},
			},
			&cli.StringFlag{
				Name:    "neo4j-password",
				Usage:   "Neo4j password",
				EnvVars: []string{"NEO4J_PASSWORD"},
			},
			&cli.StringFlag{
				Name:    "chroma-url",
				Usage:   "Chroma server URL; when set, concept vectors live in Chroma",
				EnvVars: []string{"CHROMA_URL"},
			},
			&cli.StringFlag{
				Name:    "openrouter-key",
				Usage:   "OpenRouter API key for extraction and answer generation",
				EnvVars: []string{"OPENROUTER_API_KEY"},
			},
			&cli.StringFlag{
				Name:    "model",
				Usage:   "Chat model name",
				EnvVars: []string{"OPENROUTER_MODEL"},
			},
			&cli.StringFlag{
				Name:    "ollama-host",
				Usage:   "Ollama server URL, used for embeddings and as the chat fallback",
				EnvVars: []string{"OLLAMA_HOST"},
			},
			&cli.StringFlag{
				Name:    "embedding-model",
				Usage:   "Embedding model name",
				EnvVars: []string{"EMBEDDING_MODEL"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Logging level (debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "trace-file",
				Usage:   "Path for JSONL operation traces (tracing builds only)",
				EnvVars: []string{"DIDACT_TRACE_FILE"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Ingest a document into the knowledge graph",
				ArgsUsage: "[file|-]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "source",
						Usage: "Source URL recorded as a resource for the document",
					},
				},
				Action: ingestCommand,
			},
			{
				Name:   "index",
				Usage:  "Rebuild the semantic concept index from the graph",
				Action: indexCommand,
			},
			{
				Name:      "search",
				Usage:     "Retrieve the explanation context for a query",
				ArgsUsage: "<query>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Dump the full retrieval result as JSON",
					},
				},
				Action: searchCommand,
			},
			{
				Name:      "ask",
				Usage:     "Ask a question and get a scaffolded tutor answer",
				ArgsUsage: "<question>",
				Action:    askCommand,
			},
			{
				Name:   "stats",
				Usage:  "Show knowledge graph record counts",
				Action: statsCommand,
			},
			{
				Name:   "prune",
				Usage:  "Remove concepts with no relations, resources or examples",
				Action: pruneCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// buildInstance assembles a Didact facade from the global flags. The
// returned instance owns the gateway connections; callers must Close it.
func buildInstance(c *cli.Context) (*didact.Didact, error) {
	zlog, err := logger.New("dev", c.String("log-level"))
	if err != nil {
		return nil, err
	}

	var graph store.ConceptGraph
	var tracker store.DocumentTracker
	if uri := c.String("neo4j-uri"); uri != "" {
		neoGraph, err := store.NewNeo4jGraph(c.Context, store.Neo4jConfig{
			URI:      uri,
			Username: c.String("neo4j-user"),
			Password: c.String("neo4j-password"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Neo4j: %w", err)
		}
		graph = neoGraph
		tracker = store.NewMemoryTracker()
	} else {
		sqliteGraph, err := store.NewSQLiteGraph(c.String("db"))
		if err != nil {
			return nil, fmt.Errorf("failed to open graph database: %w", err)
		}
		graph = sqliteGraph
		tracker = sqliteGraph
	}

	embedder, err := embeddings.NewOllamaClient(c.String("ollama-host"), c.String("embedding-model"))
	if err != nil {
		graph.Close()
		return nil, fmt.Errorf("failed to build embedding client: %w", err)
	}

	var index store.ConceptIndex
	if chromaURL := c.String("chroma-url"); chromaURL != "" {
		index, err = store.NewChromaIndex(store.ChromaConfig{URL: chromaURL}, embedder)
		if err != nil {
			graph.Close()
			return nil, fmt.Errorf("failed to connect to Chroma: %w", err)
		}
	} else {
		index = store.NewMemoryIndex(embedder)
	}

	var extractLLM, chatLLM llm.LLMClient
	if key := c.String("openrouter-key"); key != "" {
		extractLLM = llm.NewOpenAILLM(llm.OpenAIConfig{
			APIKey: key,
			Model:  c.String("model"),
		})
		chatLLM = llm.NewOpenAILLM(llm.OpenAIConfig{
			APIKey:      key,
			Model:       c.String("model"),
			Temperature: 0.7,
			MaxTokens:   4096,
		})
	} else {
		extractLLM = llm.NewOllamaClient(c.String("ollama-host"), c.String("model"))
		chatLLM = extractLLM
	}

	exporter, err := trace.NewFileExporter(c.String("trace-file"))
	if err != nil {
		graph.Close()
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	return didact.New(didact.Config{
		Graph:   graph,
		Index:   index,
		LLM:     extractLLM,
		Chat:    chatLLM,
		Tracker: tracker,
		Logger:  zlog,
		Trace:   exporter,
	})
}

func ingestCommand(c *cli.Context) error {
	text, name, err := readDocument(c)
	if err != nil {
		return err
	}

	d, err := buildInstance(c)
	if err != nil {
		return err
	}
	defer d.Close()

	source := c.String("source")
	report, err := d.Ingest(c.Context, text, source)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}
	if report.Skipped {
		fmt.Printf("%s already ingested (hash %s), skipped\n", name, report.DocumentHash[:12])
		return nil
	}
	fmt.Printf("%s: %d chunks, %d concepts, %d relations, %d examples\n",
		name, report.Chunks, report.Concepts, report.Relations, report.Examples)
	return nil
}

func readDocument(c *cli.Context) (text, name string, err error) {
	arg := c.Args().First()
	if arg == "" || arg == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), "stdin", nil
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return "", "", fmt.Errorf("failed to read %s: %w", arg, err)
	}
	return string(data), arg, nil
}

func indexCommand(c *cli.Context) error {
	d, err := buildInstance(c)
	if err != nil {
		return err
	}
	defer d.Close()

	count, err := d.IndexConcepts(c.Context)
	if err != nil {
		return fmt.Errorf("index rebuild failed: %w", err)
	}
	fmt.Printf("indexed %d concepts\n", count)
	return nil
}

func searchCommand(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return cli.Exit("usage: didact search <query>", 1)
	}

	d, err := buildInstance(c)
	if err != nil {
		return err
	}
	defer d.Close()

	result, err := d.Retrieve(c.Context, query)
	if err != nil {
		return fmt.Errorf("retrieval failed: %w", err)
	}

	if c.Bool("json") {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Println(result.Summary())
	return nil
}

func askCommand(c *cli.Context) error {
	question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if question == "" {
		return cli.Exit("usage: didact ask <question>", 1)
	}

	d, err := buildInstance(c)
	if err != nil {
		return err
	}
	defer d.Close()

	answer, result, err := d.Ask(c.Context, question)
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}

	fmt.Println(answer)
	if len(result.Subgraph.Resources) > 0 {
		fmt.Println("\nSources:")
		for _, res := range result.Subgraph.Resources {
			fmt.Printf("  [%s] %s\n", res.Type, res.URL)
		}
	}
	return nil
}

func statsCommand(c *cli.Context) error {
	d, err := buildInstance(c)
	if err != nil {
		return err
	}
	defer d.Close()

	stats, err := d.Stats(c.Context)
	if err != nil {
		return err
	}
	fmt.Printf("concepts:  %d\nrelations: %d\nresources: %d\nexamples:  %d\n",
		stats.Concepts, stats.Relations, stats.Resources, stats.Examples)
	return nil
}

func pruneCommand(c *cli.Context) error {
	d, err := buildInstance(c)
	if err != nil {
		return err
	}
	defer d.Close()

	removed, err := d.PruneOrphans(c.Context)
	if err != nil {
		return err
	}
	fmt.Printf("removed %d orphan concepts\n", removed)
	return nil
}
