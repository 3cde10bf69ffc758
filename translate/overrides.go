package translate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Overrides are local translation packs: per target language, a map from
// original text to its fixed translation. Keys are NFC-normalised.
type Overrides struct {
	packs map[string]map[string]string
}

// NewOverrides builds overrides from in-memory packs.
func NewOverrides(packs map[string]map[string]string) *Overrides {
	o := &Overrides{packs: make(map[string]map[string]string, len(packs))}
	for lang, pack := range packs {
		o.add(lang, pack)
	}
	return o
}

// LoadOverrides reads every <lang>.yml (or .yaml) in dir. A missing
// directory yields empty overrides.
func LoadOverrides(dir string) (*Overrides, error) {
	o := &Overrides{packs: make(map[string]map[string]string)}
	if dir == "" {
		return o, nil
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return o, nil
	}
	if err != nil {
		return nil, fmt.Errorf("translate: read overrides dir: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		ext := filepath.Ext(name)
		if e.IsDir() || (ext != ".yml" && ext != ".yaml") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("translate: read override pack %s: %w", name, err)
		}
		var pack map[string]string
		if err := yaml.Unmarshal(data, &pack); err != nil {
			return nil, fmt.Errorf("translate: parse override pack %s: %w", name, err)
		}
		o.add(strings.TrimSuffix(name, ext), pack)
	}
	return o, nil
}

func (o *Overrides) add(lang string, pack map[string]string) {
	m := o.packs[lang]
	if m == nil {
		m = make(map[string]string, len(pack))
		o.packs[lang] = m
	}
	for k, v := range pack {
		m[norm.NFC.String(k)] = v
	}
}

// Lookup returns the override of text for lang.
func (o *Overrides) Lookup(lang, text string) (string, bool) {
	if o == nil {
		return "", false
	}
	v, ok := o.packs[lang][norm.NFC.String(text)]
	return v, ok && v != ""
}

// Len returns the number of entries for lang.
func (o *Overrides) Len(lang string) int {
	if o == nil {
		return 0
	}
	return len(o.packs[lang])
}
