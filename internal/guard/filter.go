package guard

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// Filter screens outgoing reply fragments against a keyword list.
// Plain entries match as case-insensitive substrings; entries with
// regexp metacharacters compile as-is.
type Filter struct {
	patterns []*regexp.Regexp
	logger   *slog.Logger
}

func NewFilter(keywords []string, logger *slog.Logger) (*Filter, error) {
	compiled, err := compilePatterns(keywords)
	if err != nil {
		return nil, err
	}
	return &Filter{patterns: compiled, logger: logger}, nil
}

// Review reports whether the fragment may be sent. When it may not,
// the second return value names the pattern that matched.
func (f *Filter) Review(fragment string) (bool, string) {
	text := strings.TrimSpace(fragment)
	for _, re := range f.patterns {
		if re.MatchString(text) {
			f.logger.Warn("fragment withheld by keyword filter",
				"pattern", re.String(),
			)
			return false, re.String()
		}
	}
	return true, ""
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		var re *regexp.Regexp
		var err error
		if isRegex(p) {
			re, err = regexp.Compile(p)
		} else {
			re, err = regexp.Compile(`(?i)` + regexp.QuoteMeta(p))
		}
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

func isRegex(s string) bool {
	for _, c := range s {
		switch c {
		case '(', ')', '[', ']', '{', '}', '|', '^', '$', '.', '*', '+', '?', '\\':
			return true
		}
	}
	return false
}
