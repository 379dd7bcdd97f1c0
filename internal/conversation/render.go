package conversation

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/microcosm-cc/bluemonday"
	"github.com/russross/blackfriday/v2"
)

//go:embed templates/conversation.html.tmpl
var htmlTemplateText string

var (
	htmlTemplate = template.Must(template.New("conversation").Parse(htmlTemplateText))

	// UGC policy: keeps formatting markup, drops scripts, handlers and styles.
	htmlPolicy = bluemonday.UGCPolicy()

	roleStyles = map[string]lipgloss.Style{
		"user":      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		"assistant": lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
	}
	rawStyle = lipgloss.NewStyle().Faint(true)
)

// RenderText writes a terminal transcript of v.
//
// v is anything Parse accepts. When it does not resolve into role/content
// turns the original value is printed verbatim under a "Conversation (raw):"
// notice.
func RenderText(w io.Writer, v any) error {
	turns, ok := Parse(v).Turns()
	if !ok {
		_, err := fmt.Fprintf(w, "%s\n%s\n", rawStyle.Render("Conversation (raw):"), rawText(v))
		return err
	}
	for _, t := range turns {
		role := DisplayRole(t.Role)
		if _, err := fmt.Fprintf(w, "%s\n%s\n\n", roleStyles[role].Render(role), t.Content); err != nil {
			return err
		}
	}
	return nil
}

type htmlTurn struct {
	Role    string
	Content template.HTML
}

type htmlView struct {
	Structured bool
	Turns      []htmlTurn
	Raw        string
}

// RenderHTML writes an HTML fragment for v. Turn content is rendered as
// Markdown and sanitized; raw values are escaped inside a <pre> block.
func RenderHTML(w io.Writer, v any) error {
	view := htmlView{}
	if turns, ok := Parse(v).Turns(); ok {
		view.Structured = true
		view.Turns = make([]htmlTurn, 0, len(turns))
		for _, t := range turns {
			view.Turns = append(view.Turns, htmlTurn{
				Role:    DisplayRole(t.Role),
				Content: renderMarkdown(t.Content),
			})
		}
	} else {
		view.Raw = rawText(v)
	}
	return htmlTemplate.Execute(w, view)
}

func renderMarkdown(content string) template.HTML {
	extensions := blackfriday.CommonExtensions |
		blackfriday.HardLineBreak |
		blackfriday.NoEmptyLineBeforeBlock
	unsafe := blackfriday.Run([]byte(content), blackfriday.WithExtensions(extensions))
	return template.HTML(htmlPolicy.SanitizeBytes(unsafe))
}

func rawText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case json.RawMessage:
		return string(x)
	case Value:
		if s, err := x.JSON(); err == nil {
			return s
		}
		return fmt.Sprint(x.raw)
	default:
		return fmt.Sprint(v)
	}
}
