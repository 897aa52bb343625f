package webfetch

import (
	"html"
	"regexp"
	"strings"
)

// Elements whose entire subtree is boilerplate, not article text.
var strippedElements = []string{"script", "style", "noscript", "nav", "header", "footer", "aside", "svg", "form"}

var (
	tagRe        = regexp.MustCompile(`(?s)<[^>]*>`)
	titleRe      = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
	blockEndRe   = regexp.MustCompile(`(?i)</(p|div|li|h[1-6]|tr|blockquote|section|article)>`)
	brRe         = regexp.MustCompile(`(?i)<br\s*/?>`)
)

// ExtractReadable reduces an HTML document to its readable text: boilerplate
// subtrees removed, remaining tags stripped, entities decoded, whitespace
// collapsed.
func ExtractReadable(doc string) string {
	for _, el := range strippedElements {
		doc = stripElement(doc, el)
	}
	doc = stripComments(doc)
	// Preserve block boundaries as spaces before tags are dropped wholesale,
	// so "…end.</p><p>Next…" does not fuse into one word.
	doc = blockEndRe.ReplaceAllString(doc, " ")
	doc = brRe.ReplaceAllString(doc, " ")
	doc = tagRe.ReplaceAllString(doc, " ")
	doc = html.UnescapeString(doc)
	return CollapseWhitespace(doc)
}

// ExtractTitle returns the document's <title> text, or "".
func ExtractTitle(doc string) string {
	m := titleRe.FindStringSubmatch(doc)
	if m == nil {
		return ""
	}
	return CollapseWhitespace(html.UnescapeString(m[1]))
}

// CollapseWhitespace folds runs of whitespace into single spaces and trims.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// stripElement removes every <name ...>...</name> subtree. A case-insensitive
// scan rather than a full parse: malformed markup degrades to tag-stripping.
func stripElement(doc, name string) string {
	re := regexp.MustCompile(`(?is)<` + name + `\b[^>]*>.*?</` + name + `>`)
	return re.ReplaceAllString(doc, " ")
}

var commentRe = regexp.MustCompile(`(?s)<!--.*?-->`)

func stripComments(doc string) string {
	return commentRe.ReplaceAllString(doc, " ")
}
