package document

import "context"

// Layout is a fixed-layout document: a title and ordered lines, handed to
// the rendering capability as-is.
type Layout struct {
	Title string
	Lines []string
}

// Renderer is the opaque document-rendering capability. Implementations are
// expected to release any spawned resources on both success and failure.
type Renderer interface {
	// RenderDocument produces the artifact bytes for a fixed layout.
	RenderDocument(ctx context.Context, doc Layout) ([]byte, error)
	// RenderHTML converts rendered HTML into artifact bytes.
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// TextRenderer is a development fallback that emits the rendered source
// bytes unchanged. Production deployments wire the external PDF capability
// in its place.
type TextRenderer struct{}

func (TextRenderer) RenderDocument(_ context.Context, doc Layout) ([]byte, error) {
	out := doc.Title + "\n\n"
	for _, line := range doc.Lines {
		out += line + "\n"
	}
	return []byte(out), nil
}

func (TextRenderer) RenderHTML(_ context.Context, html string) ([]byte, error) {
	return []byte(html), nil
}
