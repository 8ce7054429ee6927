package mcpbridge

import "embed"

// pluginDocsFS mirrors the teacher's embed.FS pattern (internal/server's
// templates/static embeds) for the "plugin_dev_guide" tool's static content
// (SPEC_FULL.md §4.7).
//
//go:embed docs/*.md
var pluginDocsFS embed.FS
