package pipeline

import (
	"html"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"
)

// cleaner turns adapter field values into translatable text.
type cleaner struct {
	strict *bluemonday.Policy
	md     *converter.Converter
}

func newCleaner() *cleaner {
	return &cleaner{
		strict: bluemonday.StrictPolicy(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}
}

// text strips every tag and collapses whitespace.
func (c *cleaner) text(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	return strings.Join(strings.Fields(html.UnescapeString(c.strict.Sanitize(s))), " ")
}

// markdown converts an HTML fragment to Markdown, falling back to plain
// text when the conversion fails or is empty.
func (c *cleaner) markdown(s, pageURL string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	out, err := c.md.ConvertString(s, converter.WithDomain(pageURL))
	if err != nil || strings.TrimSpace(out) == "" {
		return c.text(s)
	}
	return strings.TrimSpace(out)
}

// fields cleans an adapter field map. Fields listed in htmlFields are
// converted to Markdown, the rest to plain text. Titles are always plain
// text.
func (c *cleaner) fields(in map[string]string, htmlFields []string, pageURL string) map[string]string {
	isHTML := make(map[string]bool, len(htmlFields))
	for _, f := range htmlFields {
		isHTML[f] = true
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		if isHTML[k] && k != "title" {
			v = c.markdown(v, pageURL)
		} else {
			v = c.text(v)
		}
		if v != "" {
			out[k] = v
		}
	}
	return out
}
