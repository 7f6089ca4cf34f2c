package filtering

import (
	"fmt"
	"slices"
)

// TagFilter matches plugin tags using exact string matching
type TagFilter struct {
	include []string
	exclude []string
}

// NewTagFilter creates a TagFilter
func NewTagFilter(include, exclude []string) *TagFilter {
	return &TagFilter{include: include, exclude: exclude}
}

// Active reports whether any tag rule is configured
func (f *TagFilter) Active() bool {
	return len(f.include) > 0 || len(f.exclude) > 0
}

// ShouldInclude determines if a plugin with the given tags passes the filter
//
// Logic:
// 1. Any tag in the exclude list excludes the plugin (exclude takes precedence)
// 2. With include tags, at least one plugin tag must be listed
// 3. Otherwise the plugin is included
func (f *TagFilter) ShouldInclude(tags []string) (bool, string) {
	for _, tag := range tags {
		if slices.Contains(f.exclude, tag) {
			return false, fmt.Sprintf("excluded by tag '%s'", tag)
		}
	}

	if len(f.include) > 0 {
		for _, tag := range tags {
			if slices.Contains(f.include, tag) {
				return true, fmt.Sprintf("included by tag '%s'", tag)
			}
		}
		return false, fmt.Sprintf("no matching tags found in include list %v (plugin tags: %v)", f.include, tags)
	}

	if len(f.exclude) > 0 {
		return true, "no matching tags in exclude list"
	}
	return true, "no tag filters specified"
}
