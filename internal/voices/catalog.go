// Package voices resolves voice keys to model assets on disk.
package voices

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/book-expert/tts-job-service/internal/core"
)

const (
	// DefaultVoice is used when a request does not name a voice.
	DefaultVoice = "en_US-lessac-high"
	// DefaultModelExt is the model file extension of piper voices.
	DefaultModelExt = "onnx"
)

// Entry is one resolved voice.
type Entry struct {
	Key       string `json:"key"`
	Language  string `json:"language"`
	Locale    string `json:"locale"`
	Speaker   string `json:"speaker"`
	Quality   string `json:"quality"`
	ModelPath string `json:"-"`
}

// ConfigPath returns the path of the model's JSON configuration.
func (e Entry) ConfigPath() string {
	return e.ModelPath + ".json"
}

// manifestEntry is one record of the voice manifest. Fields other than key
// are ignored.
type manifestEntry struct {
	Key string `json:"key"`
}

// Catalog maps voice keys to entries. It is immutable after construction
// and safe for concurrent reads.
type Catalog struct {
	entries      map[string]Entry
	defaultVoice string
}

// Load reads a JSON manifest (an array of objects with a "key" field) and
// resolves each key under voicesDir.
func Load(manifestPath, voicesDir, modelExt, defaultVoice string) (*Catalog, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read voice manifest '%s': %w", manifestPath, err)
	}

	var manifest []manifestEntry

	err = json.Unmarshal(data, &manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to parse voice manifest '%s': %w", manifestPath, err)
	}

	keys := make([]string, 0, len(manifest))
	for _, item := range manifest {
		keys = append(keys, item.Key)
	}

	return New(keys, voicesDir, modelExt, defaultVoice)
}

// New builds a catalog from voice keys. The model of key
// en_US-lessac-high resolves to <voicesDir>/en/en_US/lessac/high/en_US-lessac-high.<modelExt>.
func New(keys []string, voicesDir, modelExt, defaultVoice string) (*Catalog, error) {
	if modelExt == "" {
		modelExt = DefaultModelExt
	}

	if defaultVoice == "" {
		defaultVoice = DefaultVoice
	}

	entries := make(map[string]Entry, len(keys))

	for _, key := range keys {
		entry, err := parseKey(key)
		if err != nil {
			return nil, err
		}

		entry.ModelPath = filepath.Join(
			voicesDir,
			entry.Language,
			entry.Locale,
			entry.Speaker,
			entry.Quality,
			key+"."+strings.TrimPrefix(modelExt, "."),
		)
		entries[key] = entry
	}

	return &Catalog{
		entries:      entries,
		defaultVoice: defaultVoice,
	}, nil
}

// Resolve looks up key, falling back to the default voice when key is empty.
func (c *Catalog) Resolve(key string) (Entry, error) {
	if key == "" {
		key = c.defaultVoice
	}

	entry, ok := c.entries[key]
	if !ok {
		return Entry{}, fmt.Errorf("%w: '%s'", core.ErrVoiceNotFound, key)
	}

	return entry, nil
}

// Keys returns all voice keys in sorted order.
func (c *Catalog) Keys() []string {
	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}

// DefaultVoice returns the key used when a request names no voice.
func (c *Catalog) DefaultVoice() string {
	return c.defaultVoice
}

func parseKey(key string) (Entry, error) {
	parts := strings.SplitN(key, "-", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Entry{}, fmt.Errorf("%w: '%s'", core.ErrInvalidVoiceKey, key)
	}

	locale := parts[0]

	language, _, found := strings.Cut(locale, "_")
	if !found || language == "" {
		return Entry{}, fmt.Errorf("%w: locale '%s' in '%s'", core.ErrInvalidVoiceKey, locale, key)
	}

	return Entry{
		Key:       key,
		Language:  language,
		Locale:    locale,
		Speaker:   parts[1],
		Quality:   parts[2],
		ModelPath: "",
	}, nil
}
