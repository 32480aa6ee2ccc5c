package render

import (
	"image/color"
	"strconv"
	"strings"
)

const (
	MarkerColor = "black"
	EarthColor  = "lightblue"
	EarthAlpha  = 128 // of 255
)

// Named colors understood by every renderer.
var namedColors = map[string]string{
	"red":       "#ff0000",
	"blue":      "#0000ff",
	"green":     "#008000",
	"orange":    "#ffa500",
	"purple":    "#800080",
	"black":     "#000000",
	"white":     "#ffffff",
	"gray":      "#808080",
	"lightblue": "#add8e6",
	"cyan":      "#00ffff",
	"magenta":   "#ff00ff",
	"yellow":    "#ffff00",
}

// Hex returns the #rrggbb form of a named or hex color. Unknown names map
// to gray.
func Hex(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if h, ok := namedColors[name]; ok {
		return h
	}
	if len(name) == 7 && name[0] == '#' {
		if _, err := strconv.ParseUint(name[1:], 16, 32); err == nil {
			return name
		}
	}
	return namedColors["gray"]
}

// RGBA converts a named or hex color to an opaque color.RGBA.
func RGBA(name string) color.RGBA {
	v, _ := strconv.ParseUint(Hex(name)[1:], 16, 32)
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
}
