package scrape

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	multiNewlinePattern = regexp.MustCompile(`\n{3,}`)
	multiSpacePattern   = regexp.MustCompile(`[ \t]{2,}`)
)

// HTMLToMarkdown converts HTML to a simplified markdown document whose
// headings survive as '#' lines for the chunk splitter.
func HTMLToMarkdown(htmlContent string) (string, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	extractText(doc, &sb, 0)
	return cleanMarkdown(sb.String()), nil
}

func extractText(n *html.Node, sb *strings.Builder, depth int) {
	if depth > 200 {
		return
	}

	switch n.Type {
	case html.TextNode:
		text := strings.TrimSpace(n.Data)
		if text != "" {
			sb.WriteString(text)
			sb.WriteString(" ")
		}
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "iframe", "svg", "nav", "footer":
			return
		case "title":
			sb.WriteString("# ")
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				extractText(c, sb, depth+1)
			}
			sb.WriteString("\n\n")
			return
		case "h1":
			sb.WriteString("\n\n# ")
		case "h2":
			sb.WriteString("\n\n## ")
		case "h3":
			sb.WriteString("\n\n### ")
		case "h4":
			sb.WriteString("\n\n#### ")
		case "h5":
			sb.WriteString("\n\n##### ")
		case "h6":
			sb.WriteString("\n\n###### ")
		case "p", "div", "section", "article", "table":
			sb.WriteString("\n\n")
		case "tr":
			sb.WriteString("\n| ")
		case "br":
			sb.WriteString("\n")
		case "li":
			sb.WriteString("\n- ")
		case "pre":
			sb.WriteString("\n\n```\n")
		case "strong", "b":
			sb.WriteString("**")
		case "em", "i":
			sb.WriteString("*")
		case "img":
			if src := getAttr(n, "src"); src != "" {
				sb.WriteString(fmt.Sprintf("![%s](%s) ", getAttr(n, "alt"), src))
			}
			return
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractText(c, sb, depth+1)
	}

	if n.Type == html.ElementNode {
		switch n.Data {
		case "h1", "h2", "h3", "h4", "h5", "h6":
			sb.WriteString("\n\n")
		case "td", "th":
			sb.WriteString("| ")
		case "pre":
			sb.WriteString("\n```\n\n")
		case "strong", "b":
			sb.WriteString("**")
		case "em", "i":
			sb.WriteString("*")
		}
	}
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func cleanMarkdown(s string) string {
	s = multiSpacePattern.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")
	s = multiNewlinePattern.ReplaceAllString(s, "\n\n")

	return strings.TrimSpace(s)
}
