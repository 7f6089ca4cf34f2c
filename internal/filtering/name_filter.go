package filtering

import (
	"fmt"

	"github.com/gobwas/glob"
)

type pattern struct {
	text string
	glob glob.Glob
}

// NameFilter matches plugin slugs against compiled glob patterns
type NameFilter struct {
	include []pattern
	exclude []pattern
}

// NewNameFilter compiles the include and exclude patterns
func NewNameFilter(include, exclude []string) (*NameFilter, error) {
	inc, err := compilePatterns(include)
	if err != nil {
		return nil, fmt.Errorf("invalid include pattern: %w", err)
	}
	exc, err := compilePatterns(exclude)
	if err != nil {
		return nil, fmt.Errorf("invalid exclude pattern: %w", err)
	}
	return &NameFilter{include: inc, exclude: exc}, nil
}

func compilePatterns(texts []string) ([]pattern, error) {
	patterns := make([]pattern, 0, len(texts))
	for _, text := range texts {
		// No separators, so * also matches across '/' and '.'
		g, err := glob.Compile(text)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", text, err)
		}
		patterns = append(patterns, pattern{text: text, glob: g})
	}
	return patterns, nil
}

// Active reports whether any pattern is configured
func (f *NameFilter) Active() bool {
	return len(f.include) > 0 || len(f.exclude) > 0
}

// ShouldInclude determines if a slug passes the filter
//
// Logic:
// 1. A slug matching any exclude pattern is excluded (exclude takes precedence)
// 2. With include patterns, the slug must match at least one
// 3. Otherwise the slug is included
func (f *NameFilter) ShouldInclude(slug string) (bool, string) {
	for _, p := range f.exclude {
		if p.glob.Match(slug) {
			return false, fmt.Sprintf("excluded by pattern '%s'", p.text)
		}
	}

	if len(f.include) > 0 {
		for _, p := range f.include {
			if p.glob.Match(slug) {
				return true, fmt.Sprintf("included by pattern '%s'", p.text)
			}
		}
		return false, "no match found in include patterns"
	}

	if len(f.exclude) > 0 {
		return true, "no match in exclude patterns"
	}
	return true, "no name filters specified"
}
