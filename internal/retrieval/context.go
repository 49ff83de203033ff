package retrieval

import "strings"

// BuildContext renders docs in order as "[fileName]\n<content>\n\n".
func BuildContext(docs []Document) string {
	var b strings.Builder
	for _, d := range docs {
		b.WriteString("[")
		b.WriteString(d.FileName)
		b.WriteString("]\n")
		b.WriteString(d.Content)
		b.WriteString("\n\n")
	}
	return b.String()
}
