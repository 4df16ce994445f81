package render

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
)

// glamour.TermRenderer is not safe for concurrent Render calls, so renderers
// are pooled per option set rather than shared.
type rendererPool struct {
	mu    sync.RWMutex
	pools map[Options]*sync.Pool
}

var globalPool = &rendererPool{
	pools: make(map[Options]*sync.Pool),
}

// Markdown renders content for terminal display. Surrounding blank lines
// that glamour adds are trimmed.
func Markdown(content string, opts Options) (string, error) {
	renderer, err := globalPool.get(opts)
	if err != nil {
		return "", err
	}
	defer globalPool.put(opts, renderer)

	out, err := renderer.Render(content)
	if err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return strings.Trim(out, "\n"), nil
}

// MarkdownOrPlain falls back to the raw content when rendering fails.
func MarkdownOrPlain(content string, opts Options) string {
	out, err := Markdown(content, opts)
	if err != nil {
		return content
	}
	return out
}

func (p *rendererPool) getPool(opts Options) *sync.Pool {
	p.mu.RLock()
	if pool, ok := p.pools[opts]; ok {
		p.mu.RUnlock()
		return pool
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if pool, ok := p.pools[opts]; ok {
		return pool
	}

	pool := &sync.Pool{
		New: func() interface{} {
			renderer, err := createRenderer(opts)
			if err != nil {
				return nil
			}
			return renderer
		},
	}
	p.pools[opts] = pool
	return pool
}

func (p *rendererPool) get(opts Options) (*glamour.TermRenderer, error) {
	renderer := p.getPool(opts).Get()
	if renderer == nil {
		// New failed; surface the error
		return createRenderer(opts)
	}
	return renderer.(*glamour.TermRenderer), nil
}

func (p *rendererPool) put(opts Options, renderer *glamour.TermRenderer) {
	if renderer == nil {
		return
	}
	p.getPool(opts).Put(renderer)
}

func createRenderer(opts Options) (*glamour.TermRenderer, error) {
	width := opts.Width
	if width <= 0 {
		width = DefaultOptions().Width
	}

	rendererOpts := []glamour.TermRendererOption{
		glamour.WithWordWrap(width),
	}

	switch {
	case opts.Style == "" || opts.Style == StyleAuto:
		rendererOpts = append(rendererOpts, glamour.WithAutoStyle())
	case isStandardStyle(opts.Style):
		rendererOpts = append(rendererOpts, glamour.WithStandardStyle(opts.Style))
	default:
		rendererOpts = append(rendererOpts, glamour.WithStylePath(opts.Style))
	}

	if opts.EnableEmoji {
		rendererOpts = append(rendererOpts, glamour.WithEmoji())
	}
	if opts.PreserveNewLines {
		rendererOpts = append(rendererOpts, glamour.WithPreservedNewLines())
	}

	renderer, err := glamour.NewTermRenderer(rendererOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	return renderer, nil
}

func isStandardStyle(name string) bool {
	switch name {
	case StyleDark, StyleLight, StyleNoTTY, "ascii", "dracula", "pink", "tokyo-night":
		return true
	default:
		return false
	}
}
