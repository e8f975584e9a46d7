// Package localization holds the notification texts sent to actors outside
// the websocket feed, one JSON file per language.
package localization

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DefaultLanguage is used when a text is missing in the requested language.
const DefaultLanguage = "en"

// Localizer maps language -> key -> text.
type Localizer struct {
	mu    sync.RWMutex
	texts map[string]map[string]string
}

// NewLocalizer loads every <lang>.json in dir.
func NewLocalizer(dir string) (*Localizer, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read locales dir: %w", err)
	}

	l := &Localizer{texts: make(map[string]map[string]string)}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read locale %s: %w", name, err)
		}
		var texts map[string]string
		if err := json.Unmarshal(data, &texts); err != nil {
			return nil, fmt.Errorf("parse locale %s: %w", name, err)
		}
		l.texts[strings.TrimSuffix(name, ".json")] = texts
	}
	return l, nil
}

// Languages lists the loaded language codes.
func (l *Localizer) Languages() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	langs := make([]string, 0, len(l.texts))
	for lang := range l.texts {
		langs = append(langs, lang)
	}
	return langs
}

// GetString returns the text for key in lang, then in DefaultLanguage, then
// the key itself.
func (l *Localizer) GetString(lang, key string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if text, ok := l.texts[lang][key]; ok {
		return text
	}
	if text, ok := l.texts[DefaultLanguage][key]; ok {
		return text
	}
	return key
}

// Format is GetString followed by fmt.Sprintf.
func (l *Localizer) Format(lang, key string, args ...any) string {
	return fmt.Sprintf(l.GetString(lang, key), args...)
}
