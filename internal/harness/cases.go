package harness

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ScriptExt and ExpectExt are the case file extensions.
const (
	ScriptExt = ".js"
	ExpectExt = ".out"
)

// Case is a script and its expectation file.
type Case struct {
	Name   string
	Script string
	Expect string
}

// CaseResult is the outcome of checking one case.
type CaseResult struct {
	Name    string   `json:"name"`
	Pass    bool     `json:"pass"`
	Updated bool     `json:"updated,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

// Discover finds every script under dir, sorted by path. filter, if set, is
// a glob matched against the case name.
func Discover(dir, filter string) ([]Case, error) {
	var cases []Case

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ScriptExt {
			return nil
		}

		name := strings.TrimSuffix(filepath.Base(path), ScriptExt)
		if filter != "" {
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		cases = append(cases, Case{
			Name:   name,
			Script: path,
			Expect: strings.TrimSuffix(path, ScriptExt) + ExpectExt,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return cases, nil
}

// Check compares a result's transcript with the case's expectation file.
// With update set, the expectation file is rewritten instead.
func Check(c Case, res *Result, update bool) (CaseResult, error) {
	got := res.Transcript()

	if update {
		if err := os.WriteFile(c.Expect, []byte(got), 0o644); err != nil {
			return CaseResult{}, fmt.Errorf("write expectation: %w", err)
		}
		return CaseResult{Name: c.Name, Pass: true, Updated: true}, nil
	}

	want, err := os.ReadFile(c.Expect)
	if errors.Is(err, fs.ErrNotExist) {
		return CaseResult{
			Name:   c.Name,
			Errors: []string{fmt.Sprintf("missing expectation file %s (run with --update to create it)", filepath.Base(c.Expect))},
		}, nil
	}
	if err != nil {
		return CaseResult{}, fmt.Errorf("read expectation: %w", err)
	}

	if string(want) == got {
		return CaseResult{Name: c.Name, Pass: true}, nil
	}
	return CaseResult{
		Name:   c.Name,
		Errors: []string{"transcript mismatch", Diff(string(want), got)},
	}, nil
}

// Diff renders the first differing line of two transcripts.
func Diff(want, got string) string {
	wantLines := strings.Split(want, "\n")
	gotLines := strings.Split(got, "\n")

	for i := 0; i < len(wantLines) || i < len(gotLines); i++ {
		var w, g string
		if i < len(wantLines) {
			w = wantLines[i]
		}
		if i < len(gotLines) {
			g = gotLines[i]
		}
		if w != g || i >= len(wantLines) || i >= len(gotLines) {
			return fmt.Sprintf("line %d: want %q, got %q", i+1, w, g)
		}
	}
	return "transcripts are identical"
}
