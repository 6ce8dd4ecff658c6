// Package render turns an agent's message history into sanitized HTML for
// embedding in dashboards and transcripts.
package render

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Message is one transcript entry. Content is treated as Markdown for user
// and assistant turns, and as preformatted text for tool results.
type Message struct {
	Role       string
	Content    string
	ToolCallID string
}

// Renderer converts Markdown message content to sanitized HTML.
type Renderer struct {
	markdown goldmark.Markdown
	policy   *bluemonday.Policy
}

// New creates a Renderer with GitHub-flavored Markdown and a UGC sanitation
// policy.
func New() *Renderer {
	return &Renderer{
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		),
		policy: bluemonday.UGCPolicy(),
	}
}

// Markdown renders one Markdown string to sanitized HTML.
func (r *Renderer) Markdown(source string) (string, error) {
	var buf bytes.Buffer
	if err := r.markdown.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return r.policy.Sanitize(buf.String()), nil
}

// Transcript renders a whole conversation. Each message becomes a <section>
// with its role as a CSS class; tool results render as escaped <pre> blocks.
func (r *Renderer) Transcript(messages []Message) (string, error) {
	var b strings.Builder
	for _, msg := range messages {
		role := msg.Role
		if role == "" {
			role = "unknown"
		}
		fmt.Fprintf(&b, "<section class=%q>\n", "message message-"+role)

		if msg.ToolCallID != "" {
			fmt.Fprintf(&b, "<pre>%s</pre>\n", html.EscapeString(msg.Content))
		} else {
			rendered, err := r.Markdown(msg.Content)
			if err != nil {
				return "", err
			}
			b.WriteString(rendered)
			if !strings.HasSuffix(rendered, "\n") {
				b.WriteString("\n")
			}
		}
		b.WriteString("</section>\n")
	}
	return b.String(), nil
}
