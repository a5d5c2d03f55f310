// Package vocabulary loads the word list pushed by reminders and picks
// entries from it.
package vocabulary

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// ErrEmptyVocabulary is returned when a word list has no entries.
var ErrEmptyVocabulary = errors.New("vocabulary: empty word list")

// Entry is one vocabulary word.
type Entry struct {
	Name    string `json:"name" yaml:"name"`
	IPA     string `json:"ipa" yaml:"ipa"`
	Meaning string `json:"meaning" yaml:"meaning"`
	Example string `json:"example" yaml:"example"`
}

type wordList struct {
	Words []Entry `json:"words" yaml:"words"`
}

// Load reads a word list file. The format follows the extension: .yaml/.yml
// is YAML, anything else JSON.
func Load(path string) ([]Entry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("vocabulary: path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("vocabulary: read %s: %w", path, err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	return Parse(data, ext == ".yaml" || ext == ".yml")
}

// Parse decodes and validates a word list document.
func Parse(data []byte, isYAML bool) ([]Entry, error) {
	var wl wordList
	if isYAML {
		if err := yaml.Unmarshal(data, &wl); err != nil {
			return nil, fmt.Errorf("vocabulary: yaml: %w", err)
		}
	} else {
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&wl); err != nil {
			return nil, fmt.Errorf("vocabulary: json: %w", err)
		}
	}
	if err := Validate(wl.Words); err != nil {
		return nil, err
	}
	return wl.Words, nil
}

// Validate requires a non-empty list whose entries carry every field.
func Validate(entries []Entry) error {
	if len(entries) == 0 {
		return ErrEmptyVocabulary
	}
	for i, e := range entries {
		switch {
		case strings.TrimSpace(e.Name) == "":
			return fmt.Errorf("vocabulary: words[%d]: name is required", i)
		case strings.TrimSpace(e.IPA) == "":
			return fmt.Errorf("vocabulary: words[%d] (%s): ipa is required", i, e.Name)
		case strings.TrimSpace(e.Meaning) == "":
			return fmt.Errorf("vocabulary: words[%d] (%s): meaning is required", i, e.Name)
		case strings.TrimSpace(e.Example) == "":
			return fmt.Errorf("vocabulary: words[%d] (%s): example is required", i, e.Name)
		}
	}
	return nil
}
