package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/hazyhaar/babelfeed/config"
	"github.com/hazyhaar/babelfeed/translate"
)

// NewEngine builds the translation engine described by cfg: override
// packs from translation.overrides_dir and an OpenCC derivation for
// every language with derived_from.
func NewEngine(cfg *config.Config, session translate.Session, logger *slog.Logger) (*translate.Engine, error) {
	overrides, err := translate.LoadOverrides(cfg.Translation.OverridesDir)
	if err != nil {
		return nil, err
	}
	derived := make(map[string]translate.Derivation)
	for _, l := range cfg.Languages {
		if l.DerivedFrom == "" {
			continue
		}
		d, err := translate.OpenCCDerivation(l.DerivedFrom, l.Scheme)
		if err != nil {
			return nil, fmt.Errorf("pipeline: language %s: %w", l.Code, err)
		}
		derived[l.Code] = d
	}
	return translate.New(translate.Config{
		Languages:       cfg.LanguageCodes(),
		ItemsPerSession: cfg.Translation.ItemsPerSession,
		Mock:            cfg.Translation.Mock,
		Derived:         derived,
		Overrides:       overrides,
		Logger:          logger,
	}, session), nil
}
