// Package asset builds and caches per-user Visuals: a resized avatar
// bitmap plus the active/inactive/streaming colors extracted from it.
package asset

import (
	"errors"
	"image"
	"image/color"
)

// Sentinel errors surfaced by Service.GetOrBuild. None of these are
// cached; the next call for the same key retries the fetch.
var (
	ErrNetwork = errors.New("asset: network error fetching avatar")
	ErrDecode  = errors.New("asset: failed to decode avatar image")
	ErrIO      = errors.New("asset: io error reading avatar response")
)

// Visual is the fully built, renderer-ready representation of one
// participant's avatar: a fixed-size premultiplied RGBA bitmap and the
// three colors derived from its dominant palette entry.
type Visual struct {
	Bitmap         *image.RGBA
	ActiveColor    color.RGBA
	InactiveColor  color.RGBA
	StreamingColor color.RGBA
}

type cacheKey struct {
	GuildID string
	UserID  string
}
