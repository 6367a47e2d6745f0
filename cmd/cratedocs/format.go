package main

import (
	"encoding/json"
	"strings"
)

// renderOutput post-processes tool output for the test subcommand. Markdown
// passes through untouched, text strips common markdown markers, and json
// wraps the content in a stable envelope.
func renderOutput(format, content string) string {
	switch format {
	case "json":
		b, err := json.MarshalIndent(map[string]string{"content": content}, "", "  ")
		if err != nil {
			return content
		}
		return string(b)
	case "text":
		return stripMarkdown(content)
	default:
		return content
	}
}

var markdownReplacer = strings.NewReplacer(
	"###### ", "",
	"##### ", "",
	"#### ", "",
	"### ", "",
	"## ", "",
	"# ", "",
	"**", "",
	"*", "",
	"`", "",
)

func stripMarkdown(s string) string {
	return markdownReplacer.Replace(s)
}
