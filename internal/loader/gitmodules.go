package loader

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
)

// ParseGitmodules parses the git-config-style .gitmodules format:
//
//	[submodule "name"]
//		path = vendor/lib
//		url = https://example.com/lib.git
//
// Only the path and url keys are read. Entries without a url are skipped —
// they cannot be scheduled. The format is simple enough that a dedicated
// git-config dependency would be heavier than the file it parses.
func ParseGitmodules(data []byte) ([]Submodule, error) {
	var (
		subs    []Submodule
		current *Submodule
	)

	flush := func() {
		if current != nil && current.URL != "" {
			subs = append(subs, *current)
		}
		current = nil
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		if strings.HasPrefix(line, "[") {
			flush()
			if name, ok := parseSectionHeader(line); ok {
				current = &Submodule{Name: name}
			}
			continue
		}

		if current == nil {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "path":
			current.Path = strings.TrimSpace(value)
		case "url":
			current.URL = strings.TrimSpace(value)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning .gitmodules: %w", err)
	}
	flush()

	return subs, nil
}

// parseSectionHeader extracts the submodule name from a line like
// `[submodule "name"]`. Sections of other kinds return ok=false.
func parseSectionHeader(line string) (string, bool) {
	inner := strings.TrimSuffix(strings.TrimPrefix(line, "["), "]")
	if !strings.HasPrefix(inner, "submodule") {
		return "", false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(inner, "submodule"))
	rest = strings.Trim(rest, `"`)
	return rest, true
}
