// Package render turns assistant Markdown into styled terminal output.
package render

const (
	StyleAuto  = "auto"
	StyleDark  = "dark"
	StyleLight = "light"
	StyleNoTTY = "notty"
)

// Options configures the markdown renderer.
type Options struct {
	// Width is the word wrap column (default: 80)
	Width int

	// Style is "auto", a glamour standard style name, or a path to a JSON style file
	Style string

	// EnableEmoji converts :emoji: shortcodes
	EnableEmoji bool

	// PreserveNewLines keeps single line breaks from the model's reply
	PreserveNewLines bool
}

func DefaultOptions() Options {
	return Options{
		Width:            80,
		Style:            StyleAuto,
		EnableEmoji:      true,
		PreserveNewLines: true,
	}
}

// WithWidth returns Options with the specified width.
func (o Options) WithWidth(width int) Options {
	o.Width = width
	return o
}

// WithStyle returns Options with the specified style.
func (o Options) WithStyle(style string) Options {
	o.Style = style
	return o
}
