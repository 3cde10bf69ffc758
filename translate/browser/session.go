// CLAUDE:SUMMARY Chrome-driven translation session: stealth page on a translator UI, language selection by selectors, paced by a rate limiter.
// Package browser implements translate.Session on top of a translator web
// page driven through headless Chrome (Rod + stealth).
//
// Every UI action waits at most Config.Timeout. A timeout or an element
// that never appears means the page is stale; a language option that is
// missing from the menu means the language is unsupported.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"golang.org/x/time/rate"

	"github.com/hazyhaar/babelfeed/translate"
)

// Selectors locate the translator UI elements. Option is a format string
// receiving the session language code.
type Selectors struct {
	Ready        string `yaml:"ready"`
	SourceButton string `yaml:"source_button"`
	SourceMenu   string `yaml:"source_menu"`
	TargetButton string `yaml:"target_button"`
	TargetMenu   string `yaml:"target_menu"`
	Option       string `yaml:"option"`
	Input        string `yaml:"input"`
	Output       string `yaml:"output"`
}

// DefaultSelectors match the DeepL mobile translator.
func DefaultSelectors() Selectors {
	return Selectors{
		Ready:        "textarea[dl-test=translator-source-input]",
		SourceButton: "button[dl-test=translator-source-lang-btn]",
		SourceMenu:   "div[dl-test=translator-source-lang-list]",
		TargetButton: "button[dl-test=translator-target-lang-btn]",
		TargetMenu:   "div[dl-test=translator-target-lang-list]",
		Option:       "button[dl-test=translator-lang-option-%s]",
		Input:        "textarea[dl-test=translator-source-input]",
		Output:       "textarea[dl-test=translator-target-input]",
	}
}

// DefaultPageURL is the translator page opened by default.
const DefaultPageURL = "https://www.deepl.com/en/translator-mobile"

// Config configures a Session.
type Config struct {
	PageURL string
	// RemoteURL is the DevTools WebSocket URL of an external Chrome.
	// Empty launches a local Chrome.
	RemoteURL string
	Headless  bool
	// Timeout bounds each UI wait. Default: 30s.
	Timeout time.Duration
	// MinInterval is the minimum spacing between UI actions. Default: 300ms.
	MinInterval time.Duration
	// OptionTimeout bounds the lookup of a language option. Default: 3s.
	OptionTimeout time.Duration
	Selectors     Selectors
	Logger        *slog.Logger
}

func or(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (c *Config) defaults() {
	if c.PageURL == "" {
		c.PageURL = DefaultPageURL
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MinInterval <= 0 {
		c.MinInterval = 300 * time.Millisecond
	}
	if c.OptionTimeout <= 0 {
		c.OptionTimeout = 3 * time.Second
	}
	def := DefaultSelectors()
	sel := &c.Selectors
	sel.Ready = or(sel.Ready, def.Ready)
	sel.SourceButton = or(sel.SourceButton, def.SourceButton)
	sel.SourceMenu = or(sel.SourceMenu, def.SourceMenu)
	sel.TargetButton = or(sel.TargetButton, def.TargetButton)
	sel.TargetMenu = or(sel.TargetMenu, def.TargetMenu)
	sel.Option = or(sel.Option, def.Option)
	sel.Input = or(sel.Input, def.Input)
	sel.Output = or(sel.Output, def.Output)
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Session drives one translator page.
type Session struct {
	cfg     Config
	log     *slog.Logger
	limiter *rate.Limiter

	browser *rod.Browser
	lnch    *launcher.Launcher
	page    *rod.Page
	prev    string
}

var _ translate.Session = (*Session)(nil)

// New creates a Session. Call Open before use.
func New(cfg Config) *Session {
	cfg.defaults()
	return &Session{
		cfg:     cfg,
		log:     cfg.Logger,
		limiter: rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
	}
}

// Open launches (or connects to) Chrome and loads the translator page.
func (s *Session) Open(ctx context.Context) error {
	if s.page != nil {
		return nil
	}
	wsURL := s.cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().Headless(s.cfg.Headless).
			Set("disable-blink-features", "AutomationControlled").
			Set("lang", "en-US")
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		s.lnch = l
		s.log.Info("browser: launched local chrome", "headless", s.cfg.Headless)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		s.cleanup()
		return fmt.Errorf("browser: connect: %w", err)
	}
	s.browser = b

	page, err := stealth.Page(b)
	if err != nil {
		s.cleanup()
		return fmt.Errorf("browser: create page: %w", err)
	}
	s.page = page

	navCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	if err := page.Context(navCtx).Navigate(s.cfg.PageURL); err != nil {
		s.cleanup()
		return fmt.Errorf("browser: navigate %s: %w", s.cfg.PageURL, s.stale(err))
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		s.log.Warn("browser: wait load", "url", s.cfg.PageURL, "error", err)
	}
	if _, err := page.Context(navCtx).Element(s.cfg.Selectors.Ready); err != nil {
		s.cleanup()
		return fmt.Errorf("browser: translator not ready: %w", s.stale(err))
	}
	s.prev = ""
	s.log.Info("browser: translator page ready", "url", s.cfg.PageURL)
	return nil
}

// SetSource selects the source language.
func (s *Session) SetSource(ctx context.Context, lang string) error {
	return s.selectLanguage(ctx, "source", lang, s.cfg.Selectors.SourceButton, s.cfg.Selectors.SourceMenu)
}

// SetTarget selects the target language.
func (s *Session) SetTarget(ctx context.Context, lang string) error {
	return s.selectLanguage(ctx, "target", lang, s.cfg.Selectors.TargetButton, s.cfg.Selectors.TargetMenu)
}

func (s *Session) selectLanguage(ctx context.Context, role, lang, button, menu string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	p := s.page.Context(ctx)
	btn, err := p.Timeout(s.cfg.Timeout).Element(button)
	if err != nil {
		return fmt.Errorf("browser: %s button: %w", role, s.stale(err))
	}
	if err := btn.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("browser: open %s menu: %w", role, s.stale(err))
	}
	m, err := p.Timeout(s.cfg.Timeout).Element(menu)
	if err != nil {
		return fmt.Errorf("browser: %s menu: %w", role, s.stale(err))
	}
	if err := m.Timeout(s.cfg.Timeout).WaitVisible(); err != nil {
		return fmt.Errorf("browser: %s menu: %w", role, s.stale(err))
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	opt, err := p.Timeout(s.cfg.OptionTimeout).Element(fmt.Sprintf(s.cfg.Selectors.Option, lang))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &translate.UnsupportedLanguageError{Language: lang, Role: role}
	}
	if err := opt.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("browser: select %s %s: %w", role, lang, s.stale(err))
	}
	return nil
}

// Input replaces the source text.
func (s *Session) Input(ctx context.Context, text string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	el, err := s.page.Context(ctx).Timeout(s.cfg.Timeout).Element(s.cfg.Selectors.Input)
	if err != nil {
		return fmt.Errorf("browser: input field: %w", s.stale(err))
	}
	if _, err := el.Eval(setValueJS, text); err != nil {
		return fmt.Errorf("browser: set input: %w", s.stale(err))
	}
	return nil
}

// Output waits for the translation of the current input in the current
// target language. After a target switch the previous translation may
// linger, so a value equal to the previous read is only accepted once it
// has been stable for settleDelay.
func (s *Session) Output(ctx context.Context) (string, error) {
	if err := s.ready(ctx); err != nil {
		return "", err
	}
	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	el, err := s.page.Context(waitCtx).Element(s.cfg.Selectors.Output)
	if err != nil {
		return "", fmt.Errorf("browser: output field: %w", s.stale(err))
	}
	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()
	start := time.Now()
	for {
		res, err := el.Context(waitCtx).Eval(getValueJS)
		if err != nil {
			return "", fmt.Errorf("browser: read output: %w", s.stale(err))
		}
		v := strings.TrimSuffix(res.Value.Str(), "\n")
		if strings.TrimSpace(v) != "" && (v != s.prev || time.Since(start) >= settleDelay) {
			s.prev = v
			return v, nil
		}
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("browser: output never appeared: %w", translate.ErrSessionStale)
		case <-tick.C:
		}
	}
}

const settleDelay = 2 * time.Second

// Clear empties the source text.
func (s *Session) Clear(ctx context.Context) error {
	if s.page == nil {
		return nil
	}
	el, err := s.page.Context(ctx).Timeout(s.cfg.Timeout).Element(s.cfg.Selectors.Input)
	if err != nil {
		return fmt.Errorf("browser: input field: %w", s.stale(err))
	}
	if _, err := el.Eval(setValueJS, ""); err != nil {
		return fmt.Errorf("browser: clear input: %w", s.stale(err))
	}
	s.prev = ""
	return nil
}

// Close closes the page and Chrome.
func (s *Session) Close() error {
	s.cleanup()
	return nil
}

func (s *Session) cleanup() {
	if s.page != nil {
		s.page.Close()
		s.page = nil
	}
	if s.browser != nil {
		s.browser.Close()
		s.browser = nil
	}
	if s.lnch != nil {
		s.lnch.Cleanup()
		s.lnch = nil
	}
}

func (s *Session) ready(ctx context.Context) error {
	if s.page == nil {
		return fmt.Errorf("browser: session not open: %w", translate.ErrSessionStale)
	}
	return s.limiter.Wait(ctx)
}

// stale maps Rod wait failures to translate.ErrSessionStale.
func (s *Session) stale(err error) error {
	return staleError(err)
}

func staleError(err error) error {
	var notFound *rod.ElementNotFoundError
	var notInteractable *rod.NoPointerEventsError
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &notFound),
		errors.As(err, &notInteractable):
		return fmt.Errorf("%w: %v", translate.ErrSessionStale, err)
	}
	return err
}

const setValueJS = `function (v) {
	this.value = v;
	this.dispatchEvent(new Event("input", { bubbles: true }));
	this.dispatchEvent(new Event("change", { bubbles: true }));
}`

const getValueJS = `function () { return this.value !== undefined ? this.value : this.innerText; }`
