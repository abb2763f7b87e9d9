package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// shortcodes used by the summary, rendered as unicode for viewers without emoji support.
var shortcodes = strings.NewReplacer(
	":shipit:", "\U0001F43F️",
	":hammer:", "\U0001F528",
	":white_check_mark:", "✅",
	":warning:", "⚠️",
	":x:", "❌",
	":new:", "\U0001F195",
	":repeat:", "\U0001F501",
	":repeat_one:", "\U0001F502",
	":put_litter_in_its_place:", "\U0001F6AE",
)

const htmlHead = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Extensions state</title>
</head>
<body>
`

const htmlTail = `</body>
</html>
`

// HTML renders the markdown summary as a standalone HTML page.
func HTML(md []byte) ([]byte, error) {
	conv := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithHardWraps()),
	)
	var body bytes.Buffer
	if err := conv.Convert([]byte(shortcodes.Replace(string(md))), &body); err != nil {
		return nil, fmt.Errorf("failed to render html summary: %w", err)
	}

	var out bytes.Buffer
	out.WriteString(htmlHead)
	out.Write(body.Bytes())
	out.WriteString(htmlTail)
	return out.Bytes(), nil
}
