package vocabulary

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestLoadJSONAndYAML(t *testing.T) {
	t.Parallel()

	js, err := Load(filepath.Join("testdata", "words.json"))
	if err != nil {
		t.Fatalf("Load(json) err=%v", err)
	}
	if len(js) != 1 || js[0].Name != "abundant" || js[0].IPA != "/əˈbʌndənt/" {
		t.Fatalf("Load(json)=%+v", js)
	}

	ys, err := Load(filepath.Join("testdata", "words.yaml"))
	if err != nil {
		t.Fatalf("Load(yaml) err=%v", err)
	}
	if len(ys) != 2 || ys[1].Meaning != "miễn cưỡng" {
		t.Fatalf("Load(yaml)=%+v", ys)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join("testdata", "nope.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestParseRejectsInvalidLists(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		doc     string
		isEmpty bool
	}{
		{name: "empty", doc: `{"words":[]}`, isEmpty: true},
		{name: "missing", doc: `{}`, isEmpty: true},
		{name: "no ipa", doc: `{"words":[{"name":"a","meaning":"m","example":"e"}]}`},
		{name: "malformed", doc: `{"words":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), false)
			if err == nil {
				t.Fatalf("expected error")
			}
			if got := errors.Is(err, ErrEmptyVocabulary); got != tt.isEmpty {
				t.Fatalf("errors.Is(ErrEmptyVocabulary)=%v want %v (err=%v)", got, tt.isEmpty, err)
			}
		})
	}
}

func TestPickSingleEntry(t *testing.T) {
	t.Parallel()

	s := NewSeededSelector(1)
	only := Entry{Name: "one", IPA: "/wʌn/", Meaning: "một", Example: "One apple."}
	for i := 0; i < 50; i++ {
		got, err := s.Pick([]Entry{only})
		if err != nil || got != only {
			t.Fatalf("Pick()=%+v, %v", got, err)
		}
	}
}

func TestPickEmpty(t *testing.T) {
	t.Parallel()

	if _, err := NewSeededSelector(1).Pick(nil); !errors.Is(err, ErrEmptyVocabulary) {
		t.Fatalf("Pick(nil) err=%v", err)
	}
}

func TestPickRoughlyUniform(t *testing.T) {
	t.Parallel()

	entries := []Entry{{Name: "a"}, {Name: "b"}, {Name: "c"}, {Name: "d"}}
	s := NewSeededSelector(42)

	const draws = 40000
	counts := map[string]int{}
	for i := 0; i < draws; i++ {
		e, err := s.Pick(entries)
		if err != nil {
			t.Fatalf("Pick err=%v", err)
		}
		counts[e.Name]++
	}

	want := draws / len(entries)
	for _, e := range entries {
		got := counts[e.Name]
		if got < want*9/10 || got > want*11/10 {
			t.Fatalf("entry %s drawn %d times, want about %d (%v)", e.Name, got, want, counts)
		}
	}
}
