// Package judge fact-checks a generated script against the scraped sources
// before it goes to air.
package judge

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"livecast/internal/llm"
	"livecast/internal/logging"
	"livecast/internal/prompts"
	"livecast/internal/store"
)

// PrimaryFallback is used when the primary website has no database.
const PrimaryFallback = "primary info failed to retrieve, rely on secondary info"

// AccuracyMetrics are the queries used to gather secondary reference material.
var AccuracyMetrics = []string{
	"Storm stats (windspeed, pressure, radius of winds, etc.)",
	"Future storm path (where the storm is headed)",
	"Expected impacts (how much flooding, what warnings, etc.)",
}

// Verdict is the outcome of judging one script.
type Verdict struct {
	Accurate bool   `json:"accurate"`
	Reason   string `json:"reason"`
}

// Source provides the reference material a judge reads.
type Source interface {
	RebuildPageContent(ctx context.Context, db *store.Database) (string, error)
	FindRelevantDocsQueries(ctx context.Context, queries []string, dbs []*store.Database, k int) (string, []map[string]string, error)
}

// Judge asks the LLM whether a script agrees with its sources.
type Judge struct {
	client  llm.Client
	source  Source
	catalog *prompts.Catalog
	k       int
}

// New creates a judge retrieving k chunks per accuracy metric.
func New(client llm.Client, source Source, catalog *prompts.Catalog, k int) *Judge {
	if k <= 0 {
		k = 3
	}
	return &Judge{client: client, source: source, catalog: catalog, k: k}
}

// Evaluate judges script using the full page of primaryWebsite and a merged
// retrieval over dbs.
func (j *Judge) Evaluate(ctx context.Context, script, primaryWebsite string, dbs []*store.Database) (Verdict, error) {
	timer := logging.StartTimer(logging.CategoryJudge, "Evaluate")
	defer timer.Stop()

	tmpl, err := j.catalog.Judge()
	if err != nil {
		return Verdict{}, err
	}

	var primary, secondary string
	eg, egctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		primary = j.primaryInfo(egctx, primaryWebsite, dbs)
		return nil
	})
	eg.Go(func() error {
		var err error
		secondary, _, err = j.source.FindRelevantDocsQueries(egctx, AccuracyMetrics, dbs, j.k)
		if err != nil {
			return fmt.Errorf("retrieving secondary info: %w", err)
		}
		return nil
	})
	if err := eg.Wait(); err != nil {
		return Verdict{}, err
	}

	answer, err := j.client.CompleteWithSystem(ctx, prompts.RenderJudge(tmpl, primary, secondary), script)
	if err != nil {
		return Verdict{}, fmt.Errorf("judging script: %w", err)
	}

	v := ParseVerdict(answer)
	logging.Judge("Verdict accurate=%v for primary %s", v.Accurate, primaryWebsite)
	return v, nil
}

// primaryInfo rebuilds the page of the database scraped from website.
func (j *Judge) primaryInfo(ctx context.Context, website string, dbs []*store.Database) string {
	for _, db := range dbs {
		if db == nil || db.Metadata["website"] != website {
			continue
		}
		page, err := j.source.RebuildPageContent(ctx, db)
		if err != nil {
			logging.Get(logging.CategoryJudge).Warn("Rebuilding %s failed: %v", website, err)
			break
		}
		return page
	}
	return PrimaryFallback
}

// ParseVerdict reads an LLM answer. It passes when the answer starts with
// ACCURATE (case-insensitive); the rest of the answer is the reason.
func ParseVerdict(answer string) Verdict {
	answer = strings.TrimSpace(answer)
	upper := strings.ToUpper(answer)
	accurate := strings.HasPrefix(upper, "ACCURATE")

	reason := answer
	for _, prefix := range []string{"ACCURATE", "INACCURATE"} {
		if strings.HasPrefix(upper, prefix) {
			reason = strings.TrimSpace(answer[len(prefix):])
			reason = strings.TrimSpace(strings.TrimLeft(reason, ":.-"))
			break
		}
	}
	return Verdict{Accurate: accurate, Reason: reason}
}
