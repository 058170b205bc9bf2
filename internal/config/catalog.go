package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Website is one scrape slot: a primary URL and an optional backup that is
// tried with the same browser when the primary yields nothing.
// In YAML a slot is either a plain URL string or a {primary, backup} map.
type Website struct {
	Primary string `yaml:"primary"`
	Backup  string `yaml:"backup,omitempty"`
}

// UnmarshalYAML accepts both the scalar and the mapping form.
func (w *Website) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		w.Primary = node.Value
		w.Backup = ""
		return nil
	}
	type plain Website
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*w = Website(p)
	return nil
}

// MarshalYAML writes slots without a backup as plain strings.
func (w Website) MarshalYAML() (interface{}, error) {
	if w.Backup == "" {
		return w.Primary, nil
	}
	type plain Website
	return plain(w), nil
}

// Query is one named search query. Order within a QuerySet is significant:
// intermediate answers are joined in query order.
type Query struct {
	Name string
	Text string
}

// QuerySet is an ordered list of queries. In YAML it is either a list of
// strings or a mapping of name -> query (mapping order is preserved).
type QuerySet []Query

// UnmarshalYAML accepts both the sequence and the mapping form.
func (q *QuerySet) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		out := make(QuerySet, 0, len(node.Content))
		for i, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: query must be a string", item.Line)
			}
			out = append(out, Query{Name: fmt.Sprintf("query_%d", i+1), Text: item.Value})
		}
		*q = out
		return nil
	case yaml.MappingNode:
		out := make(QuerySet, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			k, v := node.Content[i], node.Content[i+1]
			if v.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: query %q must be a string", v.Line, k.Value)
			}
			out = append(out, Query{Name: k.Value, Text: v.Value})
		}
		*q = out
		return nil
	default:
		return fmt.Errorf("line %d: queries must be a list or a mapping", node.Line)
	}
}

// MarshalYAML writes the set as an ordered mapping.
func (q QuerySet) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, query := range q {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: query.Name},
			&yaml.Node{Kind: yaml.ScalarNode, Value: query.Text},
		)
	}
	return node, nil
}

// Texts returns the query strings in order.
func (q QuerySet) Texts() []string {
	out := make([]string, len(q))
	for i, query := range q {
		out[i] = query.Text
	}
	return out
}

// Catalog holds named website lists and query sets that scenes refer to.
type Catalog struct {
	Websites map[string][]Website `yaml:"websites"`
	Queries  map[string]QuerySet  `yaml:"queries"`
}

// SceneConfig configures one scene within a collection.
type SceneConfig struct {
	Name         string `yaml:"name"`
	Queries      string `yaml:"queries"`      // catalog query set key
	Websites     string `yaml:"websites"`     // catalog website list key
	Instructions string `yaml:"instructions"` // prompt catalog key for the final script
	Language     string `yaml:"language"`
}

// CollectionConfig configures the ordered scenes played as one collection.
type CollectionConfig struct {
	StormURL       string        `yaml:"storm_url"`
	MaxStormImages int           `yaml:"max_storm_images"` // 0 keeps every storm image
	Iterations     int           `yaml:"total_collection_iterations"`
	Scenes         []SceneConfig `yaml:"scenes"`
}

// ResolvedScene is a scene with its catalog references looked up.
type ResolvedScene struct {
	SceneConfig
	QuerySet QuerySet
	Sites    []Website
}

// Validate checks that every scene resolves against the catalog.
func (c CollectionConfig) Validate(cat Catalog) error {
	if len(c.Scenes) == 0 {
		return fmt.Errorf("collection has no scenes")
	}
	if c.Iterations < 1 {
		return fmt.Errorf("total_collection_iterations must be at least 1")
	}
	seen := make(map[string]bool, len(c.Scenes))
	for _, s := range c.Scenes {
		if s.Name == "" {
			return fmt.Errorf("scene without a name")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate scene name %q", s.Name)
		}
		seen[s.Name] = true
		if _, err := cat.Resolve(s); err != nil {
			return err
		}
	}
	return nil
}

// Resolve looks up a scene's query set and websites.
func (cat Catalog) Resolve(s SceneConfig) (ResolvedScene, error) {
	queries, ok := cat.Queries[s.Queries]
	if !ok || len(queries) == 0 {
		return ResolvedScene{}, fmt.Errorf("scene %q: unknown or empty query set %q", s.Name, s.Queries)
	}
	sites, ok := cat.Websites[s.Websites]
	if !ok || len(sites) == 0 {
		return ResolvedScene{}, fmt.Errorf("scene %q: unknown or empty website list %q", s.Name, s.Websites)
	}
	if s.Language == "" {
		return ResolvedScene{}, fmt.Errorf("scene %q: language required", s.Name)
	}
	return ResolvedScene{SceneConfig: s, QuerySet: queries, Sites: sites}, nil
}

// ResolveAll resolves every scene of the collection in order.
func (c CollectionConfig) ResolveAll(cat Catalog) ([]ResolvedScene, error) {
	out := make([]ResolvedScene, 0, len(c.Scenes))
	for _, s := range c.Scenes {
		r, err := cat.Resolve(s)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
