package normalize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_Empty(t *testing.T) {
	assert.Equal(t, "", Normalize(""))
	assert.Equal(t, "", Normalize("   \n\t "))
	assert.Equal(t, "", Normalize("<html><head><title>x</title></head><body></body></html>"))
}

func TestFromValue(t *testing.T) {
	assert.Equal(t, "", FromValue(nil))
	assert.Equal(t, "", FromValue(42))
	assert.Equal(t, "", FromValue(map[string]any{"value": "<b>x</b>"}))
	assert.Equal(t, "**x**", FromValue("<b>x</b>"))
}

func TestNormalize_Markup(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "heading",
			input: "<h2>Title</h2><p>Body</p>",
			want:  "## Title\n\nBody",
		},
		{
			name:  "heading levels",
			input: "<h1>One</h1><h6>Six</h6>",
			want:  "# One\n\n###### Six",
		},
		{
			name:  "link",
			input: `<p>Go <a href="http://x">click</a> now</p>`,
			want:  "Go [click](http://x) now",
		},
		{
			name:  "link without href",
			input: "<p><a>plain</a></p>",
			want:  "[plain]()",
		},
		{
			name:  "bold and italic",
			input: "<p>Hello <b>world</b> and <em>you</em></p>",
			want:  "Hello **world** and *you*",
		},
		{
			name:  "unordered list",
			input: "<ul><li>One</li><li>Two</li></ul>",
			want:  "* One\n* Two",
		},
		{
			name:  "ordered lists restart numbering",
			input: "<ol><li>First</li><li>Second</li></ol><p>gap</p><ol><li>Again</li></ol>",
			want:  "1. First\n2. Second\n\ngap\n\n1. Again",
		},
		{
			name:  "script and style removed",
			input: "<html><head><style>p{color:red}</style></head><body><script>alert(1)</script><p>Hi</p></body></html>",
			want:  "Hi",
		},
		{
			name:  "entities decoded",
			input: "<p>Fish &amp; chips&nbsp;today</p>",
			want:  "Fish & chips today",
		},
		{
			name:  "line breaks",
			input: "first<br>second",
			want:  "first\nsecond",
		},
		{
			name:  "source whitespace collapsed",
			input: "<div>\n   spread\n   over\n   lines\n</div>",
			want:  "spread over lines",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestNormalize_PlainText(t *testing.T) {
	in := "  Line one\n\n\n\nLine   two \t\n\n\nthree  "
	assert.Equal(t, "Line one\n\nLine two\n\nthree", Normalize(in))
}

func TestNormalize_AngleBracketsInPlainText(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Contact Bob <bob@x.com> today", "Contact Bob <bob@x.com> today"},
		{"See <https://example.com/a> for details", "See <https://example.com/a> for details"},
		{"x <y and z> w", "x <y and z> w"},
		{"Reply to <a@b.com> or <s.smith@x.org>", "Reply to <a@b.com> or <s.smith@x.org>"},
		{"From: Alice <alice@example.com>\n\n\nHi", "From: Alice <alice@example.com>\n\nHi"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.input))
	}
}

func TestNormalize_EscapedTagsStayText(t *testing.T) {
	assert.Equal(t, "Use &lt;b>tags&lt;/b> here", Normalize("<p>Use &lt;b&gt;tags&lt;/b&gt; here</p>"))
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"Plain text\nwith lines\n\nand a gap",
		"Contact Bob <bob@x.com> today",
		"See <https://example.com/a> for details",
		"<p>Use &lt;b&gt;tags&lt;/b&gt; here</p>",
		"<p>Mail &lt;bob@x.com&gt; or &lt;p&gt;</p>",
		"<div>a &lt;br/&gt; b &lt;!-- c --&gt;</div>",
		"<h2>Title</h2><p>Hello <b>there</b>, see <a href=\"https://example.com\">this</a></p><ul><li>a</li><li>b</li></ul>",
		"Line one\n\n\n\nLine   two",
	}

	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once))
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	in := "<div><p>Same <i>input</i></p><ol><li>x</li></ol></div>"
	assert.Equal(t, Normalize(in), Normalize(in))
}

func TestNormalize_MalformedMarkup(t *testing.T) {
	assert.NotPanics(t, func() {
		out := Normalize("<div><p>unclosed <b>bold <i>and <a href=")
		assert.True(t, strings.Contains(out, "unclosed"))
	})
}

func TestStripTags(t *testing.T) {
	assert.Equal(t, "a & b\n\nc", stripTags("<p>a &amp; b</p>\n\n\n<p>c</p>"))
}
