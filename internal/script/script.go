// Package script turns retrieved website content into the narration script,
// key messages and topic for one scene.
package script

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"livecast/internal/llm"
	"livecast/internal/logging"
	"livecast/internal/prompts"
	"livecast/internal/store"
	"livecast/internal/textproc"
)

// QueryDatabases pairs a search query with the vector databases it is answered from.
// A nil database stands for a website that failed to scrape.
type QueryDatabases struct {
	Query     string
	Databases []*store.Database
}

// SceneDatabases holds one entry per scene query, in query order.
type SceneDatabases []QueryDatabases

// Unique returns the distinct non-nil databases across all queries, in first-seen order.
func (s SceneDatabases) Unique() []*store.Database {
	seen := make(map[string]bool)
	var out []*store.Database
	for _, q := range s {
		for _, db := range q.Databases {
			if db == nil || seen[db.ID] {
				continue
			}
			seen[db.ID] = true
			out = append(out, db)
		}
	}
	return out
}

// SceneItems is the generated content of one scene.
type SceneItems struct {
	Script      string   `json:"script"`
	KeyMessages string   `json:"key_messages"`
	Topic       string   `json:"topic"`
	ImageURLs   []string `json:"image_urls,omitempty"`
}

// Retriever finds the chunks most relevant to a query.
type Retriever interface {
	FindRelevantDocs(ctx context.Context, query string, dbs []*store.Database, workers, k int) (string, []map[string]string, error)
}

// Config holds generator settings.
type Config struct {
	K             int // chunks retrieved per database
	KeyMessageGap int // spaces between key messages on the overlay
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{K: 4, KeyMessageGap: 40}
}

// Generator creates scene scripts with retrieval-augmented LLM calls.
type Generator struct {
	client    llm.Client
	retriever Retriever
	catalog   *prompts.Catalog
	cfg       Config
}

// NewGenerator creates a generator.
func NewGenerator(client llm.Client, retriever Retriever, catalog *prompts.Catalog, cfg Config) *Generator {
	if cfg.K <= 0 {
		cfg.K = 4
	}
	return &Generator{client: client, retriever: retriever, catalog: catalog, cfg: cfg}
}

// CreateScript answers every query from its databases, then writes the final
// script, key messages and topic from the joined answers.
// websites is the number of websites scraped for the scene and bounds the
// retrieval fan-out per query.
func (g *Generator) CreateScript(ctx context.Context, dbs SceneDatabases, websites int, instructions, lang string) (SceneItems, error) {
	timer := logging.StartTimer(logging.CategoryScript, "CreateScript")
	defer timer.StopWithInfo()

	if len(dbs) == 0 {
		return SceneItems{}, fmt.Errorf("no queries to answer")
	}
	set, err := g.catalog.ForLanguage(lang)
	if err != nil {
		return SceneItems{}, err
	}

	answers := make([]string, len(dbs))
	eg, egctx := errgroup.WithContext(ctx)
	for i, q := range dbs {
		eg.Go(func() error {
			answer, err := g.intermediateAnswer(egctx, q, websites, set.WebScraper)
			if err != nil {
				return fmt.Errorf("query %q: %w", q.Query, err)
			}
			answers[i] = answer
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return SceneItems{}, err
	}

	combined := strings.Join(answers, "\n\n")
	logging.ScriptDebug("Combined %d intermediate answers (%d bytes)", len(answers), len(combined))

	var items SceneItems
	eg, egctx = errgroup.WithContext(ctx)
	eg.Go(func() error {
		s, err := g.client.CompleteWithSystem(egctx, instructions, combined)
		if err != nil {
			return fmt.Errorf("generating script: %w", err)
		}
		items.Script = s
		return nil
	})
	eg.Go(func() error {
		km, err := g.client.CompleteWithSystem(egctx, set.KeyMessages, combined)
		if err != nil {
			return fmt.Errorf("generating key messages: %w", err)
		}
		items.KeyMessages = textproc.FilterKeyMessages(km, g.cfg.KeyMessageGap)
		return nil
	})
	eg.Go(func() error {
		topic, err := g.client.CompleteWithSystem(egctx, set.Topic, combined)
		if err != nil {
			return fmt.Errorf("generating topic: %w", err)
		}
		items.Topic = topic
		return nil
	})
	if err := eg.Wait(); err != nil {
		return SceneItems{}, err
	}

	logging.Script("Created script (%d chars), topic %q", len(items.Script), items.Topic)
	return items, nil
}

// intermediateAnswer retrieves context for one query and asks the LLM for a sourced answer.
func (g *Generator) intermediateAnswer(ctx context.Context, q QueryDatabases, websites int, scraperTmpl string) (string, error) {
	workers := websites
	if workers <= 0 {
		workers = len(q.Databases)
	}
	content, metadata, err := g.retriever.FindRelevantDocs(ctx, q.Query, q.Databases, workers, g.cfg.K)
	if err != nil {
		return "", err
	}
	system := prompts.RenderScraper(scraperTmpl, content, store.FormatMetadata(metadata))
	return g.client.CompleteWithSystem(ctx, system, q.Query)
}
