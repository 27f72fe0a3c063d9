package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"net/mail"
	"strings"
	"unicode"

	pdf "github.com/ledongthuc/pdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// minVisibleChars is the threshold below which an extraction result is
// treated as empty. Attachments that decode to nothing useful are common
// and must not abort a batch ingestion.
const minVisibleChars = 10

// Extract converts raw content bytes into normalized UTF-8 text.
// The declared content type is a hint; magic bytes win when they disagree.
// Returns ok=false when the content type is unsupported or extraction
// yields a suspiciously empty result. This is a soft-fail signal, not an
// error: the caller skips the content and moves on.
func Extract(raw []byte, contentType string) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}

	ct := baseContentType(contentType)

	// Sniff by magic bytes first (most reliable)
	if isPDF(raw) {
		return finish(extractPDF(raw))
	}
	if isZip(raw) {
		return finish(extractDOCX(raw))
	}

	switch ct {
	case "message/rfc822":
		return finish(extractEmail(raw))
	case "text/markdown":
		return finish(renderMarkdown(raw))
	case "text/plain", "":
		if !isProbablyText(raw) {
			return "", false
		}
		return finish(Normalize(string(raw)))
	case "application/pdf":
		// Claimed PDF without %PDF header: corrupted, skip.
		return "", false
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		// DOCX is a zip container; if we got here it is not a valid zip.
		return "", false
	default:
		return "", false
	}
}

// finish applies the minimum-content check shared by all extractors.
func finish(text string) (string, bool) {
	if visibleChars(text) < minVisibleChars {
		return "", false
	}
	return text, true
}

func baseContentType(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return ct
}

func isPDF(b []byte) bool {
	return len(b) >= 5 && string(b[:5]) == "%PDF-"
}

func isZip(b []byte) bool {
	return len(b) >= 4 && b[0] == 'P' && b[1] == 'K' && b[2] == 3 && b[3] == 4
}

// isProbablyText reports whether the bytes look like plain text: mostly
// printable or whitespace, no NUL bytes.
func isProbablyText(b []byte) bool {
	sample := b
	if len(sample) > 4096 {
		sample = sample[:4096]
	}
	good := 0
	for _, c := range sample {
		if c == 0x00 {
			return false
		}
		if c == '\n' || c == '\r' || c == '\t' || (c >= 0x20 && c <= 0x7E) || c >= 0x80 {
			good++
		}
	}
	return float64(good)/float64(len(sample)) > 0.9
}

func visibleChars(s string) int {
	count := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			count++
		}
	}
	return count
}

// extractPDF concatenates the plain text of all pages.
func extractPDF(data []byte) string {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return ""
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return ""
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return ""
	}
	return Normalize(string(b))
}

// extractDOCX pulls the <w:t> text runs out of word/document.xml,
// inserting paragraph breaks at <w:p> boundaries.
func extractDOCX(data []byte) string {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return ""
	}
	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return ""
	}
	rc, err := doc.Open()
	if err != nil {
		return ""
	}
	xmlBytes, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		return ""
	}

	dec := xml.NewDecoder(bytes.NewReader(xmlBytes))
	var out strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				var v string
				_ = dec.DecodeElement(&v, &t)
				out.WriteString(v)
			}
		case xml.EndElement:
			if t.Name.Local == "p" {
				out.WriteString("\n")
			}
		}
	}
	return Normalize(out.String())
}

// extractEmail linearizes an RFC 822 message into one searchable blob:
// subject, from, to and date headers followed by the body, so keyword
// search matches on headers and body uniformly.
func extractEmail(data []byte) string {
	msg, err := mail.ReadMessage(bytes.NewReader(data))
	if err != nil {
		return ""
	}

	var out strings.Builder
	writeHeader := func(label, value string) {
		if value != "" {
			out.WriteString(label)
			out.WriteString(": ")
			out.WriteString(value)
			out.WriteString("\n")
		}
	}
	writeHeader("Subject", msg.Header.Get("Subject"))
	writeHeader("From", msg.Header.Get("From"))
	writeHeader("To", msg.Header.Get("To"))
	writeHeader("Date", msg.Header.Get("Date"))

	body, err := io.ReadAll(msg.Body)
	if err == nil && len(body) > 0 {
		out.WriteString("\n")
		out.Write(body)
	}
	return Normalize(out.String())
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.Table))

// renderMarkdown walks the goldmark AST and emits plain text so that
// downstream chunking sees prose, not markup syntax.
func renderMarkdown(content []byte) string {
	reader := text.NewReader(content)
	doc := markdown.Parser().Parse(reader)

	var out strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading, *ast.Paragraph, *ast.ListItem:
			if out.Len() > 0 && !strings.HasSuffix(out.String(), "\n") {
				out.WriteString("\n")
			}
		case *ast.Text:
			out.Write(node.Segment.Value(content))
			if node.HardLineBreak() || node.SoftLineBreak() {
				out.WriteString(" ")
			}
		case *ast.String:
			out.Write(node.Value)
		case *ast.CodeBlock:
			writeCodeLines(&out, node, content)
		case *ast.FencedCodeBlock:
			writeCodeLines(&out, node, content)
		}
		return ast.WalkContinue, nil
	})
	return Normalize(out.String())
}

func writeCodeLines(out *strings.Builder, n ast.Node, content []byte) {
	if out.Len() > 0 && !strings.HasSuffix(out.String(), "\n") {
		out.WriteString("\n")
	}
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		out.Write(line.Value(content))
	}
}

// Normalize canonicalizes extracted text: NBSP to space, CRLF to LF,
// horizontal whitespace runs collapsed, at most one blank line between
// paragraphs. The content hash used for deduplication is computed over
// this form, so it must stay deterministic.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	var out []string
	blanks := 0
	for _, line := range lines {
		collapsed := strings.Join(strings.Fields(line), " ")
		if collapsed == "" {
			blanks++
			if blanks > 1 {
				continue
			}
			if len(out) == 0 {
				continue // drop leading blank lines
			}
			out = append(out, "")
			continue
		}
		blanks = 0
		out = append(out, collapsed)
	}
	// Drop trailing blank line
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}
