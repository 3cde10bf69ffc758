// CLAUDE:SUMMARY Multi-language translation engine: override packs, derived languages and batched calls to one recyclable external session.
// Package translate completes the translation state of items.
//
// For each text and each target language the engine tries, in order, a
// local override pack, a derivation from an already resolved language and
// finally the external session. Consecutive targets that need the session
// share one text input. The engine owns the session: it remembers the last
// source/target it configured, recycles it after a number of items and
// once more when it goes stale.
package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/text/language"

	"github.com/hazyhaar/babelfeed/item"
)

// State is the resolution state of one language/field pair.
type State string

const (
	StatePending  State = "pending"
	StateLocal    State = "local"
	StateDerived  State = "derived"
	StateExternal State = "external"
	StateFailed   State = "failed"
)

// Defaults.
const (
	DefaultItemsPerSession = 10
	DefaultMaxRunes        = 4500
)

var (
	sourcePattern = regexp.MustCompile(`^(auto|[a-z]{2})$`)
	targetPattern = regexp.MustCompile(`^[a-z]{2}$`)
)

// Result is the outcome for one target language.
type Result struct {
	Text  string
	State State
	Err   error
}

// Config configures an Engine.
type Config struct {
	// Languages is the ordered list of languages every item is completed
	// into. A derived language must come after its source.
	Languages []string
	// ItemsPerSession is the number of items that may use the session
	// before it is recycled. Default: 10.
	ItemsPerSession int
	// MaxRunes truncates text before it reaches the session. Default: 4500.
	MaxRunes int
	// Mock resolves every target to the original text.
	Mock      bool
	Derived   map[string]Derivation
	Overrides *Overrides
	Logger    *slog.Logger
}

func (c *Config) defaults() {
	if c.ItemsPerSession <= 0 {
		c.ItemsPerSession = DefaultItemsPerSession
	}
	if c.MaxRunes <= 0 {
		c.MaxRunes = DefaultMaxRunes
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Engine resolves translations. It is not safe for concurrent use.
type Engine struct {
	cfg     Config
	session Session
	log     *slog.Logger

	open       bool
	lastSource string
	lastTarget string
	items      int
	recycles   int
}

// New creates an Engine. session may be nil in mock mode or when every
// language is covered by overrides and derivations.
func New(cfg Config, session Session) *Engine {
	cfg.defaults()
	return &Engine{cfg: cfg, session: session, log: cfg.Logger}
}

// Languages returns the configured languages.
func (e *Engine) Languages() []string { return e.cfg.Languages }

// Recycles returns how many times the session was recycled.
func (e *Engine) Recycles() int { return e.recycles }

// Close closes the session if it is open. The next item that needs the
// session opens a fresh one with a new items-per-session budget.
func (e *Engine) Close() error {
	e.items = 0
	if !e.open || e.session == nil {
		return nil
	}
	e.open = false
	e.resetMemory()
	return e.session.Close()
}

// TranslateText resolves text from source into every target, in order.
// seed holds languages already resolved for this text; it may satisfy a
// derivation. Per-language failures are reported in the results; the
// returned error is fatal for the text (missing dependency, session stale
// twice, cancelled context). A call that reaches the session counts as one
// item towards the recycle threshold.
func (e *Engine) TranslateText(ctx context.Context, text, source string, targets []string, seed map[string]string) (map[string]Result, error) {
	var used bool
	out, err := e.translateText(ctx, text, source, targets, seed, &used)
	if used {
		e.items++
	}
	return out, err
}

func (e *Engine) translateText(ctx context.Context, text, source string, targets []string, seed map[string]string, used *bool) (map[string]Result, error) {
	out := make(map[string]Result, len(targets))
	if e.cfg.Mock {
		for _, lang := range targets {
			out[lang] = Result{Text: text, State: StateLocal}
		}
		return out, nil
	}

	resolved := func(lang string) (string, bool) {
		if r, ok := out[lang]; ok && r.State != StateFailed {
			return r.Text, true
		}
		if v, ok := seed[lang]; ok {
			return v, true
		}
		if lang == source {
			return text, true
		}
		return "", false
	}

	for i := 0; i < len(targets); {
		lang := targets[i]
		if v, ok := e.cfg.Overrides.Lookup(lang, text); ok {
			out[lang] = Result{Text: v, State: StateLocal}
			i++
			continue
		}
		if d, ok := e.cfg.Derived[lang]; ok {
			if r, ok := out[d.From]; ok && r.State == StateFailed {
				out[lang] = Result{State: StateFailed, Err: fmt.Errorf("translate: %s depends on failed %s: %w", lang, d.From, r.Err)}
				i++
				continue
			}
			src, ok := resolved(d.From)
			if !ok {
				return out, &MissingDependencyError{Language: lang, DependsOn: d.From}
			}
			v, err := d.Convert(src)
			if err != nil {
				out[lang] = Result{State: StateFailed, Err: fmt.Errorf("translate: derive %s: %w", lang, err)}
			} else {
				out[lang] = Result{Text: v, State: StateDerived}
			}
			i++
			continue
		}

		j := i + 1
		for j < len(targets) && e.needsSession(targets[j], text) {
			j++
		}
		if err := e.runBatch(ctx, text, source, targets[i:j], out, used); err != nil {
			return out, err
		}
		i = j
	}
	return out, nil
}

func (e *Engine) needsSession(lang, text string) bool {
	if _, ok := e.cfg.Overrides.Lookup(lang, text); ok {
		return false
	}
	_, derived := e.cfg.Derived[lang]
	return !derived
}

// SessionCode maps a language tag to the code the session selects: the
// base subtag, so zh-Hans and zh-Hant both become zh.
func SessionCode(lang string) string {
	tag, err := language.Parse(lang)
	if err != nil {
		return strings.ToLower(lang)
	}
	base, _ := tag.Base()
	return base.String()
}

func (e *Engine) runBatch(ctx context.Context, text, source string, batch []string, out map[string]Result, used *bool) error {
	if !sourcePattern.MatchString(source) {
		for _, lang := range batch {
			out[lang] = Result{State: StateFailed, Err: &UnsupportedLanguageError{Language: source, Role: "source"}}
		}
		return nil
	}
	var langs, codes []string
	for _, lang := range batch {
		code := SessionCode(lang)
		if !targetPattern.MatchString(code) {
			out[lang] = Result{State: StateFailed, Err: &UnsupportedLanguageError{Language: lang, Role: "target"}}
			continue
		}
		langs = append(langs, lang)
		codes = append(codes, code)
	}
	if len(langs) == 0 {
		return nil
	}
	if e.session == nil {
		return ErrNoSession
	}

	text = truncate(text, e.cfg.MaxRunes)
	*used = true
	err := e.attempt(ctx, text, source, langs, codes, out)
	if err == nil || !e.isStale(ctx, err) {
		return err
	}
	e.log.Warn("translate: session stale, recycling", "source", source, "targets", langs, "error", err)
	if rerr := e.recycle(ctx); rerr != nil {
		return fmt.Errorf("translate: recycle: %w", rerr)
	}
	if err := e.attempt(ctx, text, source, langs, codes, out); err != nil {
		if e.isStale(ctx, err) && !errors.Is(err, ErrSessionStale) {
			return fmt.Errorf("%w: %v", ErrSessionStale, err)
		}
		return fmt.Errorf("translate: retry after recycle: %w", err)
	}
	return nil
}

func (e *Engine) isStale(ctx context.Context, err error) bool {
	if errors.Is(err, ErrSessionStale) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil
}

// attempt runs one batch against the session: configure the source,
// input the text once, then select each target and read its output.
func (e *Engine) attempt(ctx context.Context, text, source string, langs, codes []string, out map[string]Result) error {
	if err := e.ensureOpen(ctx); err != nil {
		return err
	}
	var unsupported *UnsupportedLanguageError

	if e.lastSource != source {
		if err := e.session.SetSource(ctx, source); err != nil {
			e.lastSource = ""
			if errors.As(err, &unsupported) {
				for _, lang := range langs {
					out[lang] = Result{State: StateFailed, Err: err}
				}
				return nil
			}
			return err
		}
		e.lastSource = source
	}

	typed := false
	for k, lang := range langs {
		if e.lastTarget != codes[k] {
			if err := e.session.SetTarget(ctx, codes[k]); err != nil {
				e.lastTarget = ""
				if errors.As(err, &unsupported) {
					out[lang] = Result{State: StateFailed, Err: err}
					continue
				}
				return err
			}
			e.lastTarget = codes[k]
		}
		if !typed {
			if err := e.session.Input(ctx, text); err != nil {
				return err
			}
			typed = true
		}
		v, err := e.session.Output(ctx)
		if err != nil {
			return err
		}
		out[lang] = Result{Text: v, State: StateExternal}
	}
	if typed {
		return e.session.Clear(ctx)
	}
	return nil
}

func (e *Engine) ensureOpen(ctx context.Context) error {
	if !e.open {
		if err := e.session.Open(ctx); err != nil {
			return fmt.Errorf("translate: open session: %w", err)
		}
		e.open = true
		e.resetMemory()
		return nil
	}
	if e.items >= e.cfg.ItemsPerSession {
		e.log.Info("translate: items per session reached, recycling", "items", e.items)
		return e.recycle(ctx)
	}
	return nil
}

func (e *Engine) recycle(ctx context.Context) error {
	if e.open {
		if err := e.session.Close(); err != nil {
			e.log.Warn("translate: close session", "error", err)
		}
	}
	e.open = false
	e.resetMemory()
	e.items = 0
	e.recycles++
	if err := e.session.Open(ctx); err != nil {
		return fmt.Errorf("translate: open session: %w", err)
	}
	e.open = true
	return nil
}

func (e *Engine) resetMemory() {
	e.lastSource = ""
	e.lastTarget = ""
}

func truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

// Report records what CompleteItem did per language and field.
type Report struct {
	States   map[string]map[string]State
	Failures map[string]error
}

func newReport() *Report {
	return &Report{States: make(map[string]map[string]State), Failures: make(map[string]error)}
}

func (r *Report) set(lang, field string, s State) {
	if r.States[lang] == nil {
		r.States[lang] = make(map[string]State)
	}
	r.States[lang][field] = s
}

// Count returns the number of pairs in state s.
func (r *Report) Count(s State) int {
	n := 0
	for _, fields := range r.States {
		for _, st := range fields {
			if st == s {
				n++
			}
		}
	}
	return n
}

// Unsupported reports whether lang failed because the session cannot
// handle it.
func (r *Report) Unsupported(lang string) bool {
	var ue *UnsupportedLanguageError
	return errors.As(r.Failures[lang], &ue)
}

// CompleteItem fills every missing language/field pair of it, in place.
// Pairs already present are never sent again. Languages that fail are
// listed in the report and left missing; a fatal error stops the item.
func (e *Engine) CompleteItem(ctx context.Context, it *item.FormattedItem) (*Report, error) {
	orig, ok := it.Original()
	if !ok || len(orig) == 0 {
		return nil, fmt.Errorf("translate: %s (%s): %w", it.ID, it.OriginalLanguage, ErrFieldNotFound)
	}
	rep := newReport()
	var used bool
	defer func() {
		if used {
			e.items++
		}
	}()

	for _, field := range it.Translations.Fields(it.OriginalLanguage) {
		text := orig[field]
		var targets []string
		seed := make(map[string]string)
		for _, lang := range e.cfg.Languages {
			if lang == it.OriginalLanguage {
				continue
			}
			if v, ok := it.Translations[lang][field]; ok {
				seed[lang] = v
				continue
			}
			targets = append(targets, lang)
		}
		if len(targets) == 0 {
			continue
		}
		res, err := e.translateText(ctx, text, it.OriginalLanguage, targets, seed, &used)
		for lang, r := range res {
			rep.set(lang, field, r.State)
			if r.State == StateFailed {
				if rep.Failures[lang] == nil {
					rep.Failures[lang] = r.Err
				}
				continue
			}
			it.Translations.Set(lang, field, r.Text)
		}
		if err != nil {
			return rep, fmt.Errorf("translate: %s field %s: %w", it.ID, field, err)
		}
	}
	if len(rep.Failures) > 0 {
		e.log.Warn("translate: item incomplete", "id", it.ID, "failed_languages", len(rep.Failures))
	}
	return rep, nil
}
