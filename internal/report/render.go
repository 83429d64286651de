// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"

	"github.com/meshintel/deepresearch/pkg/types"
)

// Format selects the rendered representation of a report.
type Format string

const (
	// FormatMarkdown is the structured-text rendering.
	FormatMarkdown Format = "markdown"

	// FormatJSON is the structured-data rendering.
	FormatJSON Format = "json"

	// FormatHTML is the hypertext rendering.
	FormatHTML Format = "html"
)

// ParseFormat maps a caller-supplied format string to a Format. The
// empty string defaults to Markdown.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "markdown", "md", "text":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	case "html":
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("unknown report format %q", s)
	}
}

// Render serializes the report in the requested format and returns the
// body plus its content type.
func Render(rep *types.ResearchReport, f Format) ([]byte, string, error) {
	switch f {
	case FormatMarkdown:
		return []byte(Markdown(rep)), "text/markdown; charset=utf-8", nil
	case FormatJSON:
		data, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			return nil, "", fmt.Errorf("marshaling report: %w", err)
		}
		return data, "application/json", nil
	case FormatHTML:
		data, err := renderHTML(rep)
		if err != nil {
			return nil, "", err
		}
		return data, "text/html; charset=utf-8", nil
	default:
		return nil, "", fmt.Errorf("unknown report format %q", f)
	}
}

// Markdown renders the report as a Markdown document with a numbered
// bibliography.
func Markdown(rep *types.ResearchReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", rep.Title)

	for _, sec := range rep.Sections {
		fmt.Fprintf(&b, "\n## %s\n\n%s\n", sec.Name, sec.Body)
	}

	if len(rep.Citations) > 0 {
		b.WriteString("\n## References\n\n")
		for _, c := range rep.Citations {
			fmt.Fprintf(&b, "[%d] %s — %s\n", c.Number, c.Title, c.SourceURL)
		}
	}

	fmt.Fprintf(&b, "\nOverall confidence: %.2f\n", rep.OverallConfidence)
	return b.String()
}

// htmlTmpl renders the hypertext form. Section bodies are plain text
// with citation markers; html/template handles escaping.
var htmlTmpl = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
{{range .Sections}}<h2>{{.Name}}</h2>
<div>{{.Body}}</div>
{{end}}{{if .Citations}}<h2>References</h2>
<ol>
{{range .Citations}}<li><a href="{{.SourceURL}}">{{.Title}}</a></li>
{{end}}</ol>
{{end}}<p>Overall confidence: {{printf "%.2f" .OverallConfidence}}</p>
</body>
</html>
`))

func renderHTML(rep *types.ResearchReport) ([]byte, error) {
	var buf bytes.Buffer
	if err := htmlTmpl.Execute(&buf, rep); err != nil {
		return nil, fmt.Errorf("rendering HTML report: %w", err)
	}
	return buf.Bytes(), nil
}
