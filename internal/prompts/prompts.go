// Package prompts holds the system instructions sent to the LLM.
//
// The built-in instructions live in catalog/*.yaml and are baked into the
// binary with go:embed. A workspace may override or add entries by placing
// YAML files with the same layout in .livecast/prompts/.
package prompts

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"livecast/internal/logging"
)

// Entry categories.
const (
	CategoryScene       = "scene"
	CategoryWebScraper  = "web_scraper"
	CategoryKeyMessages = "key_messages"
	CategoryTopic       = "topic"
	CategoryJudge       = "judge"
)

var (
	// ErrUnknownLanguage is returned for a language code without an instruction set.
	ErrUnknownLanguage = errors.New("unknown language")
	// ErrUnknownInstructions is returned for a scene instructions key that is not in the catalog.
	ErrUnknownInstructions = errors.New("unknown instructions")
)

//go:embed catalog
var embeddedCatalog embed.FS

// Entry is one instruction text.
type Entry struct {
	ID       string `yaml:"id"`
	Category string `yaml:"category"`
	Language string `yaml:"language"`
	Content  string `yaml:"content"`
}

// LanguageSet is the per-language instructions used while building a scene.
type LanguageSet struct {
	Language    string // catalog language: en or ph
	WebScraper  string
	KeyMessages string
	Topic       string
}

// Catalog indexes entries by id.
type Catalog struct {
	entries map[string]Entry
}

// languageAliases maps scene language codes to catalog languages.
var languageAliases = map[string]string{
	"en":  "en",
	"us":  "en",
	"aus": "en",
	"ph":  "ph",
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

// Default returns the embedded catalog, loaded once.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = LoadFS(embeddedCatalog, "catalog")
	})
	return defaultCatalog, defaultErr
}

// LoadFS loads every YAML file under root in fsys.
func LoadFS(fsys fs.FS, root string) (*Catalog, error) {
	c := &Catalog{entries: make(map[string]Entry)}
	if err := c.merge(fsys, root); err != nil {
		return nil, err
	}
	logging.ScriptDebug("Loaded %d prompt entries from %s", len(c.entries), root)
	return c, nil
}

// WithOverrides returns a copy of c with the entries from YAML files in dir
// layered on top. A missing dir returns c unchanged.
func (c *Catalog) WithOverrides(dir string) (*Catalog, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return c, nil
	}
	out := &Catalog{entries: make(map[string]Entry, len(c.entries))}
	for id, e := range c.entries {
		out.entries[id] = e
	}
	if err := out.merge(os.DirFS(dir), "."); err != nil {
		return nil, err
	}
	logging.Script("Applied prompt overrides from %s", dir)
	return out, nil
}

func (c *Catalog) merge(fsys fs.FS, root string) error {
	return fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(path.Ext(p))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", p, err)
		}
		var entries []Entry
		if err := yaml.Unmarshal(data, &entries); err != nil {
			return fmt.Errorf("failed to parse %s: %w", p, err)
		}
		for _, e := range entries {
			if e.ID == "" || e.Category == "" {
				return fmt.Errorf("%s: entry missing id or category", p)
			}
			if strings.TrimSpace(e.Content) == "" {
				return fmt.Errorf("%s: entry %s has no content", p, e.ID)
			}
			e.Content = strings.TrimSpace(e.Content)
			c.entries[e.ID] = e
		}
		return nil
	})
}

// Get returns the entry with the given id.
func (c *Catalog) Get(id string) (Entry, bool) {
	e, ok := c.entries[id]
	return e, ok
}

// IDs returns all entry ids in sorted order.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Instructions returns the scene instructions stored under key.
func (c *Catalog) Instructions(key string) (string, error) {
	e, ok := c.entries[key]
	if !ok || e.Category != CategoryScene {
		return "", fmt.Errorf("%w: %q", ErrUnknownInstructions, key)
	}
	return e.Content, nil
}

// ForLanguage returns the stage instructions for a scene language code.
func (c *Catalog) ForLanguage(lang string) (LanguageSet, error) {
	target, ok := languageAliases[strings.ToLower(lang)]
	if !ok {
		return LanguageSet{}, fmt.Errorf("%w: %q", ErrUnknownLanguage, lang)
	}
	set := LanguageSet{Language: target}
	for _, want := range []struct {
		category string
		dst      *string
	}{
		{CategoryWebScraper, &set.WebScraper},
		{CategoryKeyMessages, &set.KeyMessages},
		{CategoryTopic, &set.Topic},
	} {
		e, ok := c.entries[want.category+"_"+target]
		if !ok {
			return LanguageSet{}, fmt.Errorf("%w: %q has no %s instructions", ErrUnknownLanguage, lang, want.category)
		}
		*want.dst = e.Content
	}
	return set, nil
}

// Judge returns the fact-check instructions.
func (c *Catalog) Judge() (string, error) {
	e, ok := c.entries[CategoryJudge]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownInstructions, CategoryJudge)
	}
	return e.Content, nil
}

// ForLanguage looks up lang in the embedded catalog.
func ForLanguage(lang string) (LanguageSet, error) {
	c, err := Default()
	if err != nil {
		return LanguageSet{}, err
	}
	return c.ForLanguage(lang)
}

// RenderScraper fills the {page_content} and {metadata} placeholders.
func RenderScraper(tmpl, content, metadata string) string {
	return strings.NewReplacer("{page_content}", content, "{metadata}", metadata).Replace(tmpl)
}

// RenderJudge fills the {primary_info} and {secondary_info} placeholders.
func RenderJudge(tmpl, primary, secondary string) string {
	return strings.NewReplacer("{primary_info}", primary, "{secondary_info}", secondary).Replace(tmpl)
}

// Voice returns the TTS voice for a scene language.
func Voice(lang string) string {
	return VoiceFor(lang, map[string]string{"aus": "fable"}, "shimmer")
}

// VoiceFor returns voices[lang], or fallback when lang has no entry.
func VoiceFor(lang string, voices map[string]string, fallback string) string {
	if v, ok := voices[lang]; ok && v != "" {
		return v
	}
	return fallback
}

// OverridesDir returns the prompt override directory for a workspace.
func OverridesDir(workspace string) string {
	return filepath.Join(workspace, ".livecast", "prompts")
}
