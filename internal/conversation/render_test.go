package conversation

import (
	"bytes"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func renderDoc(t *testing.T, v any) *goquery.Document {
	t.Helper()

	var buf bytes.Buffer
	if err := RenderHTML(&buf, v); err != nil {
		t.Fatalf("RenderHTML: %v", err)
	}
	doc, err := goquery.NewDocumentFromReader(&buf)
	if err != nil {
		t.Fatalf("parse rendered html: %v", err)
	}
	return doc
}

func TestRenderHTML_StructuredTurns(t *testing.T) {
	t.Parallel()

	doc := renderDoc(t, `[{"role":"user","content":"Hi **there**"},{"role":"ASSISTANT","content":"hello"},{"role":"system","content":"rules"}]`)

	turns := doc.Find(".conversation .turn")
	if turns.Length() != 3 {
		t.Fatalf("turns=%d want 3", turns.Length())
	}

	var roles []string
	turns.Each(func(_ int, s *goquery.Selection) {
		r, _ := s.Attr("data-role")
		roles = append(roles, r)
	})
	if strings.Join(roles, ",") != "user,assistant,user" {
		t.Fatalf("roles=%v", roles)
	}

	if got := turns.First().Find(".content strong").Text(); got != "there" {
		t.Fatalf("markdown not rendered, strong=%q", got)
	}
	if doc.Find(".raw").Length() != 0 {
		t.Fatalf("structured conversation must not render raw block")
	}
}

func TestRenderHTML_SanitizesContent(t *testing.T) {
	t.Parallel()

	doc := renderDoc(t, []Turn{{Role: "user", Content: `<script>alert(1)</script><a href="javascript:alert(2)" onclick="x()">link</a>`}})

	if doc.Find("script").Length() != 0 {
		t.Fatalf("script tag survived sanitization")
	}
	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		if _, ok := s.Attr("onclick"); ok {
			t.Fatalf("event handler survived sanitization")
		}
		if href, _ := s.Attr("href"); strings.HasPrefix(href, "javascript:") {
			t.Fatalf("javascript href survived: %q", href)
		}
	})
}

func TestRenderHTML_RawPassthrough(t *testing.T) {
	t.Parallel()

	in := `It's "fine" <b>`
	doc := renderDoc(t, in)

	if doc.Find(".turn").Length() != 0 {
		t.Fatalf("raw value must not render turns")
	}
	if got := doc.Find("pre.raw").Text(); got != in {
		t.Fatalf("raw text=%q want %q", got, in)
	}
	if doc.Find("pre.raw b").Length() != 0 {
		t.Fatalf("raw value must be escaped, not interpreted")
	}
}

func TestRenderText(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := RenderText(&buf, `[{"role":"assistant","content":"first"},{"role":"tool","content":"second"}]`); err != nil {
		t.Fatalf("RenderText: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"assistant", "first", "user", "second"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "first") > strings.Index(out, "second") {
		t.Fatalf("turn order not preserved:\n%s", out)
	}

	buf.Reset()
	if err := RenderText(&buf, "not a conversation"); err != nil {
		t.Fatalf("RenderText raw: %v", err)
	}
	if !strings.Contains(buf.String(), "Conversation (raw):") || !strings.Contains(buf.String(), "not a conversation") {
		t.Fatalf("raw output=%q", buf.String())
	}
}
