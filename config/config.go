// CLAUDE:SUMMARY YAML configuration for babelfeed: sites, sources, languages, translation session and stage settings, with defaults and env overrides.
// Package config loads the babelfeed configuration.
//
// Load reads a YAML file over Default(), applies BABELFEED_* environment
// overrides and validates the result.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/babelfeed/rules"
	"github.com/hazyhaar/babelfeed/translate/browser"
)

// Config is the top-level configuration.
type Config struct {
	DataDir     string          `yaml:"data_dir"`
	Languages   []Language      `yaml:"languages"`
	Sites       map[string]Site `yaml:"sites"`
	Sources     []Source        `yaml:"sources"`
	Translation Translation     `yaml:"translation"`
	Fetch       Fetch           `yaml:"fetch"`
	Format      Format          `yaml:"format"`
	Raw         Raw             `yaml:"raw"`
	Archive     Archive         `yaml:"archive"`
	Schedule    Schedule        `yaml:"schedule"`
	Metrics     Metrics         `yaml:"metrics"`
	Dev         Dev             `yaml:"dev"`
	Log         Log             `yaml:"log"`
}

// Language is a target language. DerivedFrom names an earlier language
// this one is converted from instead of translated (OpenCC Scheme).
type Language struct {
	Code        string `yaml:"code"`
	Name        string `yaml:"name"`
	Prefix      string `yaml:"prefix"`
	DerivedFrom string `yaml:"derived_from"`
	Scheme      string `yaml:"scheme"`
}

// Site is a publication target. Tags are the ids of the sources it
// publishes.
type Site struct {
	Tags    []string `yaml:"tags"`
	DevOnly bool     `yaml:"dev"`
}

// Source is one content source.
type Source struct {
	ID        string       `yaml:"id"`
	Type      string       `yaml:"type"`
	Language  string       `yaml:"language"`
	URLs      []string     `yaml:"urls"`
	ItemsPath string       `yaml:"items_path"`
	Rules     []rules.Rule `yaml:"rules"`
}

// Translation configures the engine and its browser session.
type Translation struct {
	Mock            bool              `yaml:"mock"`
	ItemsPerSession int               `yaml:"items_per_session"`
	OverridesDir    string            `yaml:"overrides_dir"`
	PageURL         string            `yaml:"page_url"`
	Remote          string            `yaml:"remote"`
	Headless        bool              `yaml:"headless"`
	Timeout         time.Duration     `yaml:"timeout"`
	MinInterval     time.Duration     `yaml:"min_interval"`
	Selectors       browser.Selectors `yaml:"selectors"`
}

// Fetch configures source HTTP requests.
type Fetch struct {
	Timeout   time.Duration `yaml:"timeout"`
	MaxBytes  int64         `yaml:"max_bytes"`
	UserAgent string        `yaml:"user_agent"`
}

// Format configures the format stage.
type Format struct {
	// ImageLookup enables og:image discovery on item pages.
	ImageLookup   bool     `yaml:"image_lookup"`
	ImageDenylist []string `yaml:"image_denylist"`
}

// Raw configures raw capture retention.
type Raw struct {
	RetentionDays int `yaml:"retention_days"`
}

// Archive selects the archive backend.
type Archive struct {
	Backend string `yaml:"backend"` // fs | sqlite
	Path    string `yaml:"path"`
}

// Schedule configures the daemon.
type Schedule struct {
	Cron string `yaml:"cron"`
}

// Metrics configures the Prometheus textfile.
type Metrics struct {
	Textfile string `yaml:"textfile"`
}

// Dev configures development mode.
type Dev struct {
	Enabled         bool `yaml:"enabled"`
	MaxFilesPerSite int  `yaml:"max_files_per_site"`
}

// Log configures logging.
type Log struct {
	Level string `yaml:"level"`
}

// Default returns the defaults every loaded file is merged over.
func Default() *Config {
	return &Config{
		DataDir:   "data",
		Languages: []Language{{Code: "en", Name: "English"}},
		Translation: Translation{
			ItemsPerSession: 10,
			OverridesDir:    "i18n",
			PageURL:         browser.DefaultPageURL,
			Headless:        true,
			Timeout:         30 * time.Second,
			MinInterval:     300 * time.Millisecond,
		},
		Fetch: Fetch{
			Timeout:   30 * time.Second,
			MaxBytes:  10 * 1024 * 1024,
			UserAgent: "babelfeed/1.0",
		},
		Format: Format{
			ImageLookup:   true,
			ImageDenylist: []string{"www.githubstatus.com", "news.ycombinator.com", "github.com", "gist.github.com", "pypi.org"},
		},
		Raw:      Raw{RetentionDays: 7},
		Archive:  Archive{Backend: "fs"},
		Schedule: Schedule{Cron: "0 * * * *"},
		Dev:      Dev{MaxFilesPerSite: 5},
		Log:      Log{Level: "info"},
	}
}

// Load reads path over the defaults, applies env overrides and validates.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv applies BABELFEED_DATA_DIR, BABELFEED_MOCK, BABELFEED_DEV and
// BABELFEED_LOG_LEVEL.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("BABELFEED_DATA_DIR"); ok && v != "" {
		c.DataDir = v
	}
	if v, ok := lookup("BABELFEED_MOCK"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: BABELFEED_MOCK: %w", err)
		}
		c.Translation.Mock = b
	}
	if v, ok := lookup("BABELFEED_DEV"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: BABELFEED_DEV: %w", err)
		}
		c.Dev.Enabled = b
	}
	if v, ok := lookup("BABELFEED_LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate checks references and values.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir is required")
	}
	if len(c.Languages) == 0 {
		return fmt.Errorf("config: at least one language is required")
	}
	seen := make(map[string]bool, len(c.Languages))
	for i := range c.Languages {
		l := &c.Languages[i]
		if _, err := language.Parse(l.Code); err != nil {
			return fmt.Errorf("config: languages[%d]: bad code %q: %w", i, l.Code, err)
		}
		if seen[l.Code] {
			return fmt.Errorf("config: language %s listed twice", l.Code)
		}
		if l.DerivedFrom != "" {
			if !seen[l.DerivedFrom] {
				return fmt.Errorf("config: language %s is derived from %s which must be listed before it", l.Code, l.DerivedFrom)
			}
			if l.Scheme == "" {
				l.Scheme = "s2t"
			}
		}
		seen[l.Code] = true
	}

	sources := make(map[string]bool, len(c.Sources))
	for i := range c.Sources {
		s := &c.Sources[i]
		if s.ID == "" {
			return fmt.Errorf("config: sources[%d]: id is required", i)
		}
		if sources[s.ID] {
			return fmt.Errorf("config: source %s defined twice", s.ID)
		}
		sources[s.ID] = true
		if s.Type == "" || strings.Contains(s.Type, "_") {
			return fmt.Errorf("config: source %s: type %q must be non-empty without '_'", s.ID, s.Type)
		}
		if s.Language != "" && strings.Contains(s.Language, "_") {
			return fmt.Errorf("config: source %s: language %q contains '_'", s.ID, s.Language)
		}
		if len(s.URLs) == 0 {
			return fmt.Errorf("config: source %s: at least one url is required", s.ID)
		}
		for j := range s.Rules {
			if err := s.Rules[j].Validate(); err != nil {
				return fmt.Errorf("config: source %s rule %d: %w", s.ID, j, err)
			}
		}
	}

	for name, site := range c.Sites {
		if name == "" || strings.Contains(name, "_") {
			return fmt.Errorf("config: site name %q must be non-empty without '_'", name)
		}
		for _, tag := range site.Tags {
			if !sources[tag] {
				return fmt.Errorf("config: site %s references unknown source %s", name, tag)
			}
		}
	}

	if c.Translation.ItemsPerSession <= 0 {
		return fmt.Errorf("config: translation.items_per_session must be > 0")
	}
	if c.Raw.RetentionDays <= 0 {
		return fmt.Errorf("config: raw.retention_days must be > 0")
	}
	switch c.Archive.Backend {
	case "fs", "sqlite":
	default:
		return fmt.Errorf("config: archive.backend %q (use fs or sqlite)", c.Archive.Backend)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q (use debug, info, warn or error)", c.Log.Level)
	}
	return nil
}

// LanguageCodes returns the configured language codes in order.
func (c *Config) LanguageCodes() []string {
	out := make([]string, len(c.Languages))
	for i, l := range c.Languages {
		out[i] = l.Code
	}
	return out
}

// SiteNames returns every configured site, sorted.
func (c *Config) SiteNames() []string {
	out := make([]string, 0, len(c.Sites))
	for name := range c.Sites {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// SelectSites resolves the requested site names (all sites when empty)
// and drops dev-only sites outside dev mode.
func (c *Config) SelectSites(requested []string) ([]string, error) {
	names := requested
	if len(names) == 0 {
		names = c.SiteNames()
	}
	var out []string
	for _, name := range names {
		site, ok := c.Sites[name]
		if !ok {
			return nil, fmt.Errorf("config: unknown site %q", name)
		}
		if site.DevOnly && !c.Dev.Enabled {
			continue
		}
		out = append(out, name)
	}
	return out, nil
}

// Source returns the source with id.
func (c *Config) Source(id string) (Source, bool) {
	for _, s := range c.Sources {
		if s.ID == id {
			return s, true
		}
	}
	return Source{}, false
}

// SourcesFor returns the sources tagged by sites, in configuration order
// and deduplicated, and for each source id the sites it targets.
func (c *Config) SourcesFor(sites []string) ([]Source, map[string][]string) {
	targets := make(map[string][]string)
	for _, name := range sites {
		for _, tag := range c.Sites[name].Tags {
			if !contains(targets[tag], name) {
				targets[tag] = append(targets[tag], name)
			}
		}
	}
	var out []Source
	for _, s := range c.Sources {
		if len(targets[s.ID]) > 0 {
			out = append(out, s)
		}
	}
	return out, targets
}

// RunlogPath is the run ledger database.
func (c *Config) RunlogPath() string { return filepath.Join(c.DataDir, "runlog.db") }

// ArchivePath is the archive location for the configured backend.
func (c *Config) ArchivePath() string {
	if c.Archive.Path != "" {
		return c.Archive.Path
	}
	if c.Archive.Backend == "sqlite" {
		return filepath.Join(c.DataDir, "archive.db")
	}
	return filepath.Join(c.DataDir, "archive")
}

// MaxFilesPerSite is the per-site per-stage file cap, 0 when unlimited.
func (c *Config) MaxFilesPerSite() int {
	if c.Dev.Enabled {
		return c.Dev.MaxFilesPerSite
	}
	return 0
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
