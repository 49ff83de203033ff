// Package ignore reads gitignore-style files so the file index can skip
// paths a project already excludes from version control.
package ignore

import (
	"bufio"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Pattern is one parsed ignore line.
type Pattern struct {
	// Glob uses path.Match syntax.
	Glob string
	// DirOnly is set for lines ending in "/".
	DirOnly bool
	// Anchored patterns contain a slash and match from the root.
	Anchored bool
}

// Parser reads and parses gitignore-style files.
type Parser struct {
	// IgnoreFiles are file names looked up at the project root.
	IgnoreFiles []string

	// Fallback lines are used when none of IgnoreFiles exist.
	Fallback []string
}

// NewParser creates a parser for the given ignore file names.
func NewParser(ignoreFiles, fallback []string) *Parser {
	return &Parser{IgnoreFiles: ignoreFiles, Fallback: fallback}
}

// ParseProject reads every ignore file found at root and returns a
// Matcher over their combined patterns.
func (p *Parser) ParseProject(root string) (*Matcher, error) {
	var lines []string
	found := false

	for _, name := range p.IgnoreFiles {
		fileLines, err := readLines(filepath.Join(root, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		lines = append(lines, fileLines...)
		found = true
	}
	if !found {
		lines = p.Fallback
	}

	return NewMatcher(lines), nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

// parseLine returns false for blanks, comments and negations.
func parseLine(line string) (Pattern, bool) {
	line = strings.TrimRight(line, " \t\r")
	if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
		return Pattern{}, false
	}

	var p Pattern
	if strings.HasSuffix(line, "/") {
		p.DirOnly = true
		line = strings.TrimRight(line, "/")
	}
	line = strings.TrimPrefix(line, "**/")
	if strings.HasPrefix(line, "/") || strings.Contains(line, "/") {
		p.Anchored = true
		line = strings.TrimPrefix(line, "/")
	}
	line = strings.TrimSuffix(line, "/**")
	if line == "" {
		return Pattern{}, false
	}
	if _, err := path.Match(line, ""); err != nil {
		return Pattern{}, false
	}
	p.Glob = line
	return p, true
}

// Matcher tests relative paths against parsed patterns.
type Matcher struct {
	patterns []Pattern
}

// NewMatcher parses lines, dropping duplicates and invalid globs.
func NewMatcher(lines []string) *Matcher {
	seen := make(map[Pattern]bool)
	m := &Matcher{}
	for _, line := range lines {
		p, ok := parseLine(line)
		if !ok || seen[p] {
			continue
		}
		seen[p] = true
		m.patterns = append(m.patterns, p)
	}
	return m
}

// Patterns returns the parsed patterns in file order.
func (m *Matcher) Patterns() []Pattern {
	return m.patterns
}

// Match reports whether rel, a path relative to the project root, is
// ignored. isDir tells whether rel itself is a directory.
func (m *Matcher) Match(rel string, isDir bool) bool {
	if m == nil || len(m.patterns) == 0 {
		return false
	}
	segs := strings.Split(strings.Trim(filepath.ToSlash(rel), "/"), "/")
	for _, p := range m.patterns {
		if p.matches(segs, isDir) {
			return true
		}
	}
	return false
}

func (p Pattern) matches(segs []string, isDir bool) bool {
	last := len(segs) - 1
	for i := range segs {
		// A DirOnly hit on the final segment needs rel itself to be a dir.
		if p.DirOnly && i == last && !isDir {
			return false
		}
		candidate := segs[i]
		if p.Anchored {
			candidate = strings.Join(segs[:i+1], "/")
		}
		if ok, _ := path.Match(p.Glob, candidate); ok {
			return true
		}
	}
	return false
}
