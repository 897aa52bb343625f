package webfetch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractReadableStripsBoilerplate(t *testing.T) {
	doc := `<html><head>
		<title>G20 Summit Coverage</title>
		<style>body { color: red; }</style>
		<script>var tracker = "x";</script>
	</head><body>
		<nav><a href="/">Home</a><a href="/news">News</a></nav>
		<header>Site header</header>
		<article><p>The G20 summit was held in New Delhi.</p>
		<p>Leaders discussed climate &amp; trade.</p></article>
		<footer>Copyright 2024</footer>
	</body></html>`

	text := ExtractReadable(doc)
	assert.Contains(t, text, "The G20 summit was held in New Delhi.")
	assert.Contains(t, text, "climate & trade")
	assert.NotContains(t, text, "color: red")
	assert.NotContains(t, text, "tracker")
	assert.NotContains(t, text, "Home")
	assert.NotContains(t, text, "Site header")
	assert.NotContains(t, text, "Copyright")
}

func TestExtractReadableKeepsBlockBoundaries(t *testing.T) {
	text := ExtractReadable(`<p>First sentence.</p><p>Second sentence.</p>`)
	assert.Equal(t, "First sentence. Second sentence.", text)
}

func TestExtractReadableDropsComments(t *testing.T) {
	text := ExtractReadable(`<p>visible</p><!-- hidden editorial note -->`)
	assert.Equal(t, "visible", text)
}

func TestExtractTitle(t *testing.T) {
	assert.Equal(t, "A & B", ExtractTitle(`<html><head><title>
		A &amp; B
	</title></head></html>`))
	assert.Equal(t, "", ExtractTitle(`<html><body>no title</body></html>`))
}

func TestCollapseWhitespace(t *testing.T) {
	assert.Equal(t, "a b c", CollapseWhitespace("  a\n\tb   c  "))
	assert.Equal(t, "", CollapseWhitespace(" \n "))
}
