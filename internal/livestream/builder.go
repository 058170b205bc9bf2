// Package livestream generates scene collections and runs the endless
// playback timeline.
package livestream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"livecast/internal/config"
	"livecast/internal/delivery"
	"livecast/internal/judge"
	"livecast/internal/logging"
	"livecast/internal/script"
	"livecast/internal/store"
)

// ErrEmptyCollection is returned when no scene of a collection succeeded.
var ErrEmptyCollection = errors.New("collection has no scenes")

// Scene is one generated scene ready to air.
type Scene struct {
	Name     string                `json:"name"`
	Language string                `json:"language"`
	Items    script.SceneItems     `json:"items"`
	Verdict  *judge.Verdict        `json:"verdict,omitempty"`
	Sources  []*store.Database     `json:"-"`
	Queries  script.SceneDatabases `json:"-"`
}

// Collection is an ordered list of scenes generated together.
type Collection struct {
	ID        string    `json:"id"`
	Scenes    []Scene   `json:"scenes"`
	ImageURLs []string  `json:"image_urls,omitempty"`
	ImagesZip string    `json:"images_zip,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Searcher discovers URLs for a query.
type Searcher interface {
	Search(ctx context.Context, query string, n int, images bool) ([]string, error)
	ResetCount()
	Count() int64
}

// VectorStore persists scraped databases and scene history.
type VectorStore interface {
	CreateDatabase(ctx context.Context, website string, texts []string) (*store.Database, error)
	PruneDatabases(ctx context.Context, olderThan time.Duration) (int, error)
	RecordScene(ctx context.Context, rec store.SceneRecord) (int64, error)
}

// ScriptWriter creates the script of one scene.
type ScriptWriter interface {
	CreateScript(ctx context.Context, dbs script.SceneDatabases, websites int, instructions, lang string) (script.SceneItems, error)
}

// Judge fact-checks a script.
type Judge interface {
	Evaluate(ctx context.Context, script, primaryWebsite string, dbs []*store.Database) (judge.Verdict, error)
}

// InstructionSource resolves instruction keys to prompt text.
type InstructionSource interface {
	Instructions(key string) (string, error)
}

// ImageSaver downloads images into the stream archive.
type ImageSaver interface {
	SaveImages(ctx context.Context, urls []string) (string, error)
}

// Deliverer hands finished artifacts to the overlay.
type Deliverer interface {
	Deliver(ctx context.Context, files ...string) error
}

// BuilderConfig holds collection generation settings.
type BuilderConfig struct {
	Scenes         []config.ResolvedScene
	StormURL       string
	URLsToReturn   int           // search results per query
	MaxStormImages int           // storm images kept in the archive; 0 keeps all
	Retention      time.Duration // databases older than this are pruned; 0 keeps all
}

// Builder generates collections.
type Builder struct {
	cfg          BuilderConfig
	scraper      Scraper
	searcher     Searcher // nil when search is disabled
	store        VectorStore
	writer       ScriptWriter
	judge        Judge // nil when judging is disabled
	instructions InstructionSource
	images       ImageSaver
	deliverer    Deliverer
	pub          delivery.Publisher
}

// BuilderDeps are the collaborators of a Builder. Searcher, Judge and
// Publisher are optional.
type BuilderDeps struct {
	Scraper      Scraper
	Searcher     Searcher
	Store        VectorStore
	Writer       ScriptWriter
	Judge        Judge
	Instructions InstructionSource
	Images       ImageSaver
	Deliverer    Deliverer
	Publisher    delivery.Publisher
}

// NewBuilder creates a builder.
func NewBuilder(cfg BuilderConfig, deps BuilderDeps) *Builder {
	if cfg.URLsToReturn <= 0 {
		cfg.URLsToReturn = 4
	}
	return &Builder{
		cfg:          cfg,
		scraper:      deps.Scraper,
		searcher:     deps.Searcher,
		store:        deps.Store,
		writer:       deps.Writer,
		judge:        deps.Judge,
		instructions: deps.Instructions,
		images:       deps.Images,
		deliverer:    deps.Deliverer,
		pub:          deps.Publisher,
	}
}

// GenerateCollection scrapes, writes and records every scene. Scenes whose
// script fails are dropped.
func (b *Builder) GenerateCollection(ctx context.Context) (*Collection, error) {
	timer := logging.StartTimer(logging.CategoryStream, "GenerateCollection")
	defer timer.StopWithInfo()

	coll := &Collection{ID: uuid.NewString(), CreatedAt: time.Now().UTC()}
	logging.Stream("Generating collection %s with %d scenes", coll.ID, len(b.cfg.Scenes))

	if b.cfg.Retention > 0 {
		if n, err := b.store.PruneDatabases(ctx, b.cfg.Retention); err != nil {
			logging.StreamWarn("Pruning old databases failed: %v", err)
		} else if n > 0 {
			logging.StreamDebug("Pruned %d databases", n)
		}
	}

	// Databases for every scene and the storm images, concurrently.
	sceneDBs := make([]sceneSources, len(b.cfg.Scenes))
	eg, egctx := errgroup.WithContext(ctx)
	for i, scene := range b.cfg.Scenes {
		eg.Go(func() error {
			dbs, websites, err := b.CreateDatabases(egctx, scene)
			if err != nil {
				return fmt.Errorf("scene %s: %w", scene.Name, err)
			}
			sceneDBs[i] = sceneSources{dbs: dbs, websites: websites}
			return nil
		})
	}
	if b.cfg.StormURL != "" {
		eg.Go(func() error {
			urls, err := b.scraper.StormImages(egctx, b.cfg.StormURL)
			if err != nil {
				logging.StreamWarn("Storm image scrape failed: %v", err)
				return nil
			}
			if n := b.cfg.MaxStormImages; n > 0 && len(urls) > n {
				urls = urls[:n]
			}
			coll.ImageURLs = urls
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	if b.searcher != nil {
		logging.Search("Search calls this collection: %d", b.searcher.Count())
		b.searcher.ResetCount()
	}

	// Scripts for every scene, concurrently. Failures drop the scene.
	scenes := make([]*Scene, len(b.cfg.Scenes))
	var wg sync.WaitGroup
	for i, rs := range b.cfg.Scenes {
		wg.Add(1)
		go func(i int, rs config.ResolvedScene) {
			defer wg.Done()
			scene, err := b.writeScene(ctx, rs, sceneDBs[i])
			if err != nil {
				logging.StreamError("Dropping scene %s: %v", rs.Name, err)
				return
			}
			scenes[i] = scene
		}(i, rs)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, s := range scenes {
		if s != nil {
			coll.Scenes = append(coll.Scenes, *s)
		}
	}
	if len(coll.Scenes) == 0 {
		return nil, ErrEmptyCollection
	}

	if len(coll.ImageURLs) > 0 && b.images != nil {
		zipPath, err := b.images.SaveImages(ctx, coll.ImageURLs)
		if err != nil {
			logging.StreamWarn("Saving storm images failed: %v", err)
		} else {
			coll.ImagesZip = zipPath
			if err := b.deliverer.Deliver(ctx, zipPath); err != nil {
				return nil, err
			}
		}
	}

	b.record(ctx, coll)

	if b.pub != nil {
		b.pub.Publish(delivery.Event{Type: delivery.EventCollection, Name: coll.ID})
	}
	logging.Stream("Collection %s ready: %d/%d scenes", coll.ID, len(coll.Scenes), len(b.cfg.Scenes))
	return coll, nil
}

type sceneSources struct {
	dbs      script.SceneDatabases
	websites int
}

// writeScene creates the script for one scene and, when a judge is set,
// regenerates it once if the judge rejects it.
func (b *Builder) writeScene(ctx context.Context, rs config.ResolvedScene, src sceneSources) (*Scene, error) {
	instructions, err := b.instructions.Instructions(rs.Instructions)
	if err != nil {
		return nil, err
	}

	scene := &Scene{Name: rs.Name, Language: rs.Language, Queries: src.dbs, Sources: src.dbs.Unique()}
	scene.Items, err = b.writer.CreateScript(ctx, src.dbs, src.websites, instructions, rs.Language)
	if err != nil {
		return nil, err
	}
	if b.judge == nil {
		return scene, nil
	}

	primary := primaryWebsite(rs, scene.Sources, b.searcher != nil)
	for attempt := 1; ; attempt++ {
		v, err := b.judge.Evaluate(ctx, scene.Items.Script, primary, scene.Sources)
		if err != nil {
			logging.Get(logging.CategoryJudge).Warn("Judging %s failed, airing unjudged: %v", rs.Name, err)
			return scene, nil
		}
		scene.Verdict = &v
		if v.Accurate || attempt == 2 {
			return scene, nil
		}
		logging.Judge("Scene %s rejected (%s), regenerating", rs.Name, v.Reason)
		scene.Items, err = b.writer.CreateScript(ctx, src.dbs, src.websites, instructions, rs.Language)
		if err != nil {
			return nil, err
		}
	}
}

// primaryWebsite is the URL the first configured slot was scraped from, or
// the first scraped site when URLs came from search.
func primaryWebsite(rs config.ResolvedScene, dbs []*store.Database, searched bool) string {
	if searched || len(rs.Sites) == 0 {
		if len(dbs) > 0 {
			return dbs[0].Metadata["website"]
		}
		return ""
	}
	slot := rs.Sites[0]
	for _, db := range dbs {
		if slot.Backup != "" && db.Metadata["website"] == slot.Backup {
			return slot.Backup
		}
	}
	return slot.Primary
}

func (b *Builder) record(ctx context.Context, coll *Collection) {
	for _, s := range coll.Scenes {
		rec := store.SceneRecord{
			CollectionID: coll.ID,
			Scene:        s.Name,
			Language:     s.Language,
			Topic:        s.Items.Topic,
			KeyMessages:  s.Items.KeyMessages,
			Script:       s.Items.Script,
		}
		if s.Verdict != nil {
			accurate := s.Verdict.Accurate
			rec.Accurate = &accurate
		}
		if _, err := b.store.RecordScene(ctx, rec); err != nil {
			logging.StreamWarn("Recording scene %s failed: %v", s.Name, err)
		}
	}
}

// CreateDatabases builds the vector databases a scene is answered from and
// returns them per query with the number of websites involved. With search
// enabled each query gets databases from its own search results; otherwise
// every query shares the scene's configured websites. A site that fails
// leaves a nil database in its slot.
func (b *Builder) CreateDatabases(ctx context.Context, scene config.ResolvedScene) (script.SceneDatabases, int, error) {
	queries := scene.QuerySet.Texts()
	out := make(script.SceneDatabases, len(queries))

	if b.searcher == nil {
		dbs := b.buildDatabases(ctx, scene.Sites)
		for i, q := range queries {
			out[i] = script.QueryDatabases{Query: q, Databases: dbs}
		}
		return out, len(scene.Sites), ctx.Err()
	}

	eg, egctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		eg.Go(func() error {
			urls, err := b.searcher.Search(egctx, q, b.cfg.URLsToReturn, false)
			if err != nil {
				logging.SearchWarn("Search for %q failed: %v", q, err)
			}
			sites := make([]config.Website, len(urls))
			for j, u := range urls {
				sites[j] = config.Website{Primary: u}
			}
			out[i] = script.QueryDatabases{Query: q, Databases: b.buildDatabases(egctx, sites)}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, 0, err
	}
	return out, b.cfg.URLsToReturn, ctx.Err()
}

// buildDatabases scrapes sites and embeds each into its own database, in
// site order.
func (b *Builder) buildDatabases(ctx context.Context, sites []config.Website) []*store.Database {
	dbs := make([]*store.Database, len(sites))
	if len(sites) == 0 {
		return dbs
	}

	results := b.scraper.ScrapeSites(ctx, sites)
	var wg sync.WaitGroup
	for i, res := range results {
		if res.Err != nil || len(res.Chunks) == 0 {
			logging.ScrapeWarn("No database for %s: %v", sites[i].Primary, res.Err)
			continue
		}
		wg.Add(1)
		go func(i int, res ScrapeResult) {
			defer wg.Done()
			db, err := b.store.CreateDatabase(ctx, res.Website, res.Chunks)
			if err != nil {
				logging.StoreWarn("Embedding %s failed: %v", res.Website, err)
				return
			}
			dbs[i] = db
		}(i, res)
	}
	wg.Wait()
	return dbs
}
