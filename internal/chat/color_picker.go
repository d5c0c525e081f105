package chat

import (
	"math/rand"
	"sync"
	"time"

	"github.com/gookit/color"
)

// ColorPicker represents a strategy for choosing a display color for new sessions.
type ColorPicker interface {
	Next() string
}

var defaultColorPalette = []color.Color{
	color.FgRed,
	color.FgGreen,
	color.FgYellow,
	color.FgBlue,
	color.FgMagenta,
	color.FgCyan,
}

// colorize wraps text in the escape sequence prefix, leaving it untouched when prefix is empty.
func colorize(prefix, text string) string {
	if prefix == "" {
		return text
	}
	return prefix + text + color.ResetSet
}

func escapeFor(c color.Color) string {
	return "\x1b[" + c.Code() + "m"
}

func newRandomColorPicker(palette []color.Color) ColorPicker {
	if len(palette) == 0 {
		return noColorPicker{}
	}
	prefixes := make([]string, 0, len(palette))
	for _, c := range palette {
		prefixes = append(prefixes, escapeFor(c))
	}
	return &randomColorPicker{
		palette: prefixes,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

type randomColorPicker struct {
	mu      sync.Mutex
	palette []string
	rng     *rand.Rand
}

func (p *randomColorPicker) Next() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.palette[p.rng.Intn(len(p.palette))]
}

type noColorPicker struct{}

func (noColorPicker) Next() string { return "" }
