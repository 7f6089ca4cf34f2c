package filtering

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/plugin-mirror/internal/config"
	"github.com/stacklok/plugin-mirror/internal/registry"
)

func TestNameFilter_ShouldInclude(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		slug     string
		include  []string
		exclude  []string
		expected bool
		reason   string
	}{
		{name: "no patterns", slug: "akismet", expected: true, reason: "no name filters specified"},
		{name: "include prefix match", slug: "woocommerce-payments", include: []string{"woo*"}, expected: true, reason: "included by pattern 'woo*'"},
		{name: "include miss", slug: "jetpack", include: []string{"woo*"}, expected: false, reason: "no match found in include patterns"},
		{name: "single char wildcard", slug: "seo-1", include: []string{"seo-?"}, expected: true, reason: "included by pattern 'seo-?'"},
		{name: "single char wildcard miss", slug: "seo-pro", include: []string{"seo-?"}, expected: false, reason: "no match found in include patterns"},
		{name: "alternatives", slug: "jetpack", include: []string{"{akismet,jetpack}"}, expected: true, reason: "included by pattern '{akismet,jetpack}'"},
		{name: "exclude wins over include", slug: "woo-beta", include: []string{"woo*"}, exclude: []string{"*-beta"}, expected: false, reason: "excluded by pattern '*-beta'"},
		{name: "exclude only miss", slug: "akismet", exclude: []string{"*-beta"}, expected: true, reason: "no match in exclude patterns"},
		{name: "wildcard spans dots", slug: "my.plugin.v2", include: []string{"my*v2"}, expected: true, reason: "included by pattern 'my*v2'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f, err := NewNameFilter(tt.include, tt.exclude)
			require.NoError(t, err)

			included, reason := f.ShouldInclude(tt.slug)
			assert.Equal(t, tt.expected, included)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestNewNameFilter_InvalidPattern(t *testing.T) {
	t.Parallel()

	_, err := NewNameFilter([]string{"[abc"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid include pattern")

	_, err = NewNameFilter(nil, []string{"[abc"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid exclude pattern")
}

func TestTagFilter_ShouldInclude(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		tags     []string
		include  []string
		exclude  []string
		expected bool
	}{
		{name: "no filters", tags: []string{"seo"}, expected: true},
		{name: "nil tags with no filters", expected: true},
		{name: "include match", tags: []string{"seo", "forms"}, include: []string{"forms"}, expected: true},
		{name: "include miss", tags: []string{"seo"}, include: []string{"forms"}, expected: false},
		{name: "include with no tags", include: []string{"forms"}, expected: false},
		{name: "exclude match", tags: []string{"seo", "deprecated"}, exclude: []string{"deprecated"}, expected: false},
		{name: "exclude wins over include", tags: []string{"forms", "deprecated"}, include: []string{"forms"}, exclude: []string{"deprecated"}, expected: false},
		{name: "exclude miss", tags: []string{"seo"}, exclude: []string{"deprecated"}, expected: true},
		{name: "case sensitive", tags: []string{"SEO"}, include: []string{"seo"}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			included, reason := NewTagFilter(tt.include, tt.exclude).ShouldInclude(tt.tags)
			assert.Equal(t, tt.expected, included)
			assert.NotEmpty(t, reason)
		})
	}
}

func TestFilter_ShouldInclude(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cfg      *config.FilterConfig
		plugin   *registry.Plugin
		expected bool
		reason   string
	}{
		{
			name:     "nil config",
			plugin:   registry.NewTestPlugin("akismet"),
			expected: true,
			reason:   "no filters specified, default include",
		},
		{
			name:     "empty config",
			cfg:      &config.FilterConfig{},
			plugin:   registry.NewTestPlugin("akismet"),
			expected: true,
			reason:   "no filters specified, default include",
		},
		{
			name: "name excluded",
			cfg: &config.FilterConfig{
				Names: &config.NameFilterConfig{Exclude: []string{"hello-*"}},
			},
			plugin:   registry.NewTestPlugin("hello-dolly"),
			expected: false,
			reason:   "name filter: excluded by pattern 'hello-*'",
		},
		{
			name: "tag excluded",
			cfg: &config.FilterConfig{
				Tags: &config.TagFilterConfig{Exclude: []string{"spam"}},
			},
			plugin:   registry.NewTestPlugin("shady", registry.WithTags("seo", "spam")),
			expected: false,
			reason:   "tag filter: excluded by tag 'spam'",
		},
		{
			name: "passes both",
			cfg: &config.FilterConfig{
				Names: &config.NameFilterConfig{Include: []string{"woo*"}},
				Tags:  &config.TagFilterConfig{Include: []string{"ecommerce"}},
			},
			plugin:   registry.NewTestPlugin("woocommerce", registry.WithTags("ecommerce")),
			expected: true,
			reason:   "passed all filters: name filter: included by pattern 'woo*' AND tag filter: included by tag 'ecommerce'",
		},
		{
			name: "name passes tag fails",
			cfg: &config.FilterConfig{
				Names: &config.NameFilterConfig{Include: []string{"woo*"}},
				Tags:  &config.TagFilterConfig{Include: []string{"ecommerce"}},
			},
			plugin:   registry.NewTestPlugin("woo-seo", registry.WithTags("seo")),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f, err := New(tt.cfg)
			require.NoError(t, err)

			included, reason := f.ShouldInclude(tt.plugin)
			assert.Equal(t, tt.expected, included)
			if tt.reason != "" {
				assert.Equal(t, tt.reason, reason)
			}
		})
	}
}

func TestFilter_NilIncludesAll(t *testing.T) {
	t.Parallel()

	var f *Filter
	included, _ := f.ShouldInclude(registry.NewTestPlugin("anything"))
	assert.True(t, included)
}

func TestNew_InvalidPattern(t *testing.T) {
	t.Parallel()

	_, err := New(&config.FilterConfig{Names: &config.NameFilterConfig{Include: []string{"[unterminated"}}})
	assert.Error(t, err)
}
