// Package filtering decides which plugins the mirror keeps.
//
// Plugins are matched by slug against glob patterns and by tag against
// exact tag lists. Both filters have include and exclude rules, and an
// exclude match always wins. A plugin is kept only when both filters pass.
//
// # Slug Filtering
//
// Slug patterns use gobwas/glob syntax:
//
//   - "woo*" matches "woocommerce", "woocommerce-payments"
//   - "seo-?" matches "seo-1" but not "seo-pro"
//   - "{akismet,jetpack}" matches exactly those two slugs
//
// # Tag Filtering
//
// Tag filtering uses exact matching against the plugin's directory tags.
//
// # Usage
//
//	f, err := filtering.New(cfg.Sync.Filter)
//	if err != nil {
//		return err
//	}
//	if ok, reason := f.ShouldInclude(plugin); !ok {
//		slog.Debug("Skipping plugin", "slug", plugin.Slug, "reason", reason)
//	}
package filtering
