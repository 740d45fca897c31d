// Package normalize turns HTML email bodies into compact markdown-like text
package normalize

import (
	stdhtml "html"
	"regexp"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// Element names that mark a body as HTML. Other angle-bracketed text, such as
// <bob@example.com> or <https://example.com>, is plain text.
const elementNames = `html|head|body|title|meta|link|style|script|noscript|template|iframe|object|svg|` +
	`div|span|p|br|hr|a|b|strong|i|em|u|s|strike|del|ins|small|big|font|code|pre|tt|sup|sub|` +
	`blockquote|center|address|section|article|header|footer|nav|aside|main|figure|form|img|` +
	`h[1-6]|ul|ol|li|dl|dt|dd|table|thead|tbody|tfoot|tr|td|th|caption`

var (
	markupPattern    = regexp.MustCompile(`(?i)<!doctype|<!--|</?(` + elementNames + `)(\s[^<>]*)?/?>`)
	inlineSpace      = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)
	textWhitespace   = regexp.MustCompile(`[\s\x{00a0}]+`)
	excessBlankLines = regexp.MustCompile(`\n{3,}`)
	fallbackPolicy   = bluemonday.StrictPolicy()
)

// Elements whose content never reaches the output
var skipped = map[string]bool{
	"script":   true,
	"style":    true,
	"head":     true,
	"title":    true,
	"noscript": true,
	"template": true,
	"iframe":   true,
	"object":   true,
	"svg":      true,
}

// Elements rendered on their own line
var blocks = map[string]bool{
	"div":        true,
	"section":    true,
	"article":    true,
	"header":     true,
	"footer":     true,
	"nav":        true,
	"aside":      true,
	"main":       true,
	"table":      true,
	"tbody":      true,
	"thead":      true,
	"tr":         true,
	"blockquote": true,
	"pre":        true,
	"hr":         true,
	"center":     true,
	"address":    true,
	"dl":         true,
	"dt":         true,
	"dd":         true,
	"figure":     true,
	"form":       true,
}

// Normalize converts an HTML or plain-text body to clean text.
// It never fails: markup the parser rejects is stripped instead.
func Normalize(input string) string {
	if strings.TrimSpace(input) == "" {
		return ""
	}

	if !markupPattern.MatchString(input) {
		return collapse(input)
	}

	doc, err := html.Parse(strings.NewReader(input))
	if err != nil {
		return stripTags(input)
	}

	r := &renderer{out: &strings.Builder{}}
	r.walk(doc)
	return escapeMarkup(collapse(r.out.String()))
}

// escapeMarkup re-escapes decoded entities that would read as markup, so
// normalized output is never parsed as HTML again.
func escapeMarkup(text string) string {
	return markupPattern.ReplaceAllStringFunc(text, func(m string) string {
		return "&lt;" + m[1:]
	})
}

// FromValue normalizes v when it is a string and returns "" otherwise
func FromValue(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return Normalize(s)
}

func stripTags(input string) string {
	return escapeMarkup(collapse(stdhtml.UnescapeString(fallbackPolicy.Sanitize(input))))
}

func collapse(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = inlineSpace.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")

	text = excessBlankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

type listState struct {
	ordered bool
	index   int
}

type renderer struct {
	out   *strings.Builder
	lists []*listState
	pre   int
}

func (r *renderer) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		if r.pre > 0 {
			r.out.WriteString(n.Data)
			return
		}
		r.out.WriteString(textWhitespace.ReplaceAllString(n.Data, " "))
		return
	case html.ElementNode:
		r.element(n)
		return
	case html.CommentNode, html.DoctypeNode:
		return
	}

	r.children(n)
}

func (r *renderer) children(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		r.walk(c)
	}
}

// capture renders the children of n into a separate buffer
func (r *renderer) capture(n *html.Node) string {
	saved := r.out
	r.out = &strings.Builder{}
	r.children(n)
	text := r.out.String()
	r.out = saved
	return text
}

func (r *renderer) element(n *html.Node) {
	tag := strings.ToLower(n.Data)
	if skipped[tag] {
		return
	}

	switch tag {
	case "b", "strong":
		r.wrap(n, "**")
	case "i", "em":
		r.wrap(n, "*")
	case "a":
		text := strings.TrimSpace(textWhitespace.ReplaceAllString(r.capture(n), " "))
		href := attr(n, "href")
		if text == "" && href == "" {
			return
		}
		r.out.WriteString("[" + text + "](" + href + ")")
	case "h1", "h2", "h3", "h4", "h5", "h6":
		level := int(tag[1] - '0')
		text := strings.TrimSpace(textWhitespace.ReplaceAllString(r.capture(n), " "))
		r.out.WriteString("\n\n" + strings.Repeat("#", level) + " " + text + "\n\n")
	case "ul", "ol":
		r.lists = append(r.lists, &listState{ordered: tag == "ol"})
		r.out.WriteString("\n")
		r.children(n)
		r.lists = r.lists[:len(r.lists)-1]
		r.out.WriteString("\n")
	case "li":
		r.out.WriteString("\n" + r.marker())
		r.children(n)
	case "p":
		r.out.WriteString("\n\n")
		r.children(n)
		r.out.WriteString("\n\n")
	case "br":
		r.out.WriteString("\n")
	case "td", "th":
		r.children(n)
		r.out.WriteString(" ")
	default:
		if !blocks[tag] {
			r.children(n)
			return
		}
		if tag == "pre" {
			r.pre++
			defer func() { r.pre-- }()
		}
		r.out.WriteString("\n")
		r.children(n)
		r.out.WriteString("\n")
	}
}

func (r *renderer) wrap(n *html.Node, marker string) {
	inner := r.capture(n)
	text := strings.TrimSpace(inner)
	if text == "" {
		r.out.WriteString(inner)
		return
	}

	if strings.HasPrefix(inner, " ") {
		r.out.WriteString(" ")
	}
	r.out.WriteString(marker + text + marker)
	if strings.HasSuffix(inner, " ") {
		r.out.WriteString(" ")
	}
}

func (r *renderer) marker() string {
	if len(r.lists) == 0 {
		return "* "
	}
	list := r.lists[len(r.lists)-1]
	if !list.ordered {
		return "* "
	}
	list.index++
	return strconv.Itoa(list.index) + ". "
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}
