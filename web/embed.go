// Package web embeds the static chat page for single-binary distribution.
package web

import "embed"

// Assets contains the chat page served on unmatched routes.
//
//go:embed all:static
var Assets embed.FS
