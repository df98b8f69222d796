// internal/browser/dom/xpath_test.go
package dom_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/replay-cli/internal/browser/dom"
)

const xpathHTML = `
	<html>
	<body>
		<div id="header">
			<h1>Welcome</h1>
		</div>
		<div class="content">
			<p>P1</p><p>P2</p>
			<ul>
				<!-- comment -->
				<li>Item 1</li>
				<li>Item 2</li>
				<li id="special">Item 3</li>
			</ul>
		</div>
		<div class="content"><p>P3</p></div>
		<span id="it's">quoted</span>
	</body>
	</html>
	`

func TestElementXPath(t *testing.T) {
	page, err := dom.ParseHTMLString(xpathHTML, dom.ParseOptions{})
	require.NoError(t, err)
	doc := page.Root

	tests := []struct {
		name     string
		target   string
		expected string
	}{
		{"Body", "//body", "/html[1]/body[1]"},
		{"Element with ID", "//div[@id='header']", `//*[@id='header']`},
		{"Child of ID element", "//h1", `//*[@id='header']/h1[1]`},
		{"Specific index", "(//p)[2]", "/html[1]/body[1]/div[2]/p[2]"},
		{"Same class", "(//div[@class='content'])[2]/p", "/html[1]/body[1]/div[3]/p[1]"},
		{"List item skipping comments", "//ul/li[2]", "/html[1]/body[1]/div[2]/ul[1]/li[2]"},
		{"List item with ID", "//li[@id='special']", `//*[@id='special']`},
		{"Unquotable ID", "//span", "/html[1]/body[1]/span[1]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, err := doc.Query(tt.target)
			require.NoError(t, err)
			require.NotNil(t, target, "fixture lookup %s", tt.target)

			xpath := target.XPath()
			assert.Equal(t, tt.expected, xpath)

			again, err := doc.Query(xpath)
			require.NoError(t, err)
			assert.Same(t, target, again, "the generated XPath selects the same element")
		})
	}
}

func TestDescribeCarriesLocator(t *testing.T) {
	page, err := dom.ParseHTMLString(xpathHTML, dom.ParseOptions{})
	require.NoError(t, err)
	el, err := page.Root.Query("//ul/li[1]")
	require.NoError(t, err)
	assert.Equal(t, "/html[1]/body[1]/div[2]/ul[1]/li[1]", el.Describe().Locator)
}
