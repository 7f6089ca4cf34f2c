package filtering

import (
	"fmt"
	"strings"

	"github.com/stacklok/plugin-mirror/internal/config"
	"github.com/stacklok/plugin-mirror/internal/registry"
)

// Filter combines the slug and tag filters
type Filter struct {
	names *NameFilter
	tags  *TagFilter
}

// New builds a Filter from cfg. A nil cfg includes every plugin.
func New(cfg *config.FilterConfig) (*Filter, error) {
	var nameInclude, nameExclude, tagInclude, tagExclude []string
	if cfg != nil && cfg.Names != nil {
		nameInclude = cfg.Names.Include
		nameExclude = cfg.Names.Exclude
	}
	if cfg != nil && cfg.Tags != nil {
		tagInclude = cfg.Tags.Include
		tagExclude = cfg.Tags.Exclude
	}

	names, err := NewNameFilter(nameInclude, nameExclude)
	if err != nil {
		return nil, err
	}
	return &Filter{
		names: names,
		tags:  NewTagFilter(tagInclude, tagExclude),
	}, nil
}

// ShouldInclude determines if a plugin should be mirrored and provides the reason.
// Both filters must pass. A nil Filter includes everything.
func (f *Filter) ShouldInclude(plugin *registry.Plugin) (bool, string) {
	if f == nil {
		return true, "no filters specified, default include"
	}

	nameIncluded, nameReason := f.names.ShouldInclude(plugin.Slug)
	if !nameIncluded {
		return false, fmt.Sprintf("name filter: %s", nameReason)
	}

	var tagReason string
	if f.tags.Active() {
		var tagIncluded bool
		tagIncluded, tagReason = f.tags.ShouldInclude(plugin.Tags())
		if !tagIncluded {
			return false, fmt.Sprintf("tag filter: %s", tagReason)
		}
	}

	var reasons []string
	if f.names.Active() {
		reasons = append(reasons, fmt.Sprintf("name filter: %s", nameReason))
	}
	if f.tags.Active() {
		reasons = append(reasons, fmt.Sprintf("tag filter: %s", tagReason))
	}
	if len(reasons) == 0 {
		return true, "no filters specified, default include"
	}
	return true, "passed all filters: " + strings.Join(reasons, " AND ")
}
