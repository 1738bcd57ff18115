package websearch

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resultBlock(n int) string {
	return fmt.Sprintf(
		`<div><a href="/url?q=https://example.com/%d&amp;sa=U"><h3>Result %d</h3></a><span>Snippet for result %d</span></div>`,
		n, n, n)
}

func resultsPage(n int) string {
	var sb strings.Builder
	sb.WriteString("<html><body>")
	for i := 1; i <= n; i++ {
		sb.WriteString(resultBlock(i))
	}
	sb.WriteString("</body></html>")
	return sb.String()
}

func Test_parsePage_DocumentOrder(t *testing.T) {
	t.Parallel()

	results, blocked := parsePage(strings.NewReader(resultsPage(5)), 3)
	require.False(t, blocked)
	require.Len(t, results, 3)
	for i, res := range results {
		assert.Equal(t, fmt.Sprintf("Result %d", i+1), res.Title)
		assert.Equal(t, fmt.Sprintf("https://example.com/%d", i+1), res.URL)
		assert.Equal(t, fmt.Sprintf("Snippet for result %d", i+1), res.Snippet)
	}
}

func Test_parsePage_SkipsMalformed(t *testing.T) {
	t.Parallel()

	page := `<html><body>
<div><a href="/search?q=related"><h3>Internal navigation</h3></a></div>
<div><a href="https://example.com/a">no heading</a></div>
<div><a href="ftp://example.com/c"><h3>Wrong scheme</h3></a></div>
<div><a href="/url?q=https%3A%2F%2Fexample.com%2Fb&amp;sa=U"><h3>Encoded</h3></a><span>Something useful</span></div>
<div><a href="https://example.com/b"><h3>Duplicate target</h3></a></div>
</body></html>`

	results, blocked := parsePage(strings.NewReader(page), 10)
	require.False(t, blocked)
	require.Len(t, results, 1)
	assert.Equal(t, "Encoded", results[0].Title)
	assert.Equal(t, "https://example.com/b", results[0].URL)
	assert.Equal(t, "Something useful", results[0].Snippet)
}

func Test_parsePage_SnippetFallback(t *testing.T) {
	t.Parallel()

	page := `<html><body><div><a href="https://example.com/x"><h3>Bare</h3></a></div></body></html>`
	results, blocked := parsePage(strings.NewReader(page), 10)
	require.False(t, blocked)
	require.Len(t, results, 1)
	assert.Equal(t, noDescription, results[0].Snippet)
}

func Test_parsePage_SnippetTruncated(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("lorem ipsum ", 50)
	page := fmt.Sprintf(
		`<html><body><div><a href="https://example.com/x"><h3>Long</h3></a><span>%s</span></div></body></html>`,
		long)
	results, _ := parsePage(strings.NewReader(page), 10)
	require.Len(t, results, 1)
	assert.Len(t, results[0].Snippet, snippetMaxLen+3)
	assert.True(t, strings.HasSuffix(results[0].Snippet, "..."))
}

func Test_parsePage_BlockPage(t *testing.T) {
	t.Parallel()

	page := `<html><body><p>Our systems have detected unusual traffic from your computer network.</p></body></html>`
	results, blocked := parsePage(strings.NewReader(page), 10)
	assert.True(t, blocked)
	assert.Empty(t, results)
}

func Test_parsePage_NoResults(t *testing.T) {
	t.Parallel()

	results, blocked := parsePage(strings.NewReader(`<html><body><p>Nothing relevant today.</p></body></html>`), 10)
	assert.False(t, blocked)
	assert.Empty(t, results)
}
