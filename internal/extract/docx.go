package extract

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

const (
	docxDocumentXMLPath = "word/document.xml"
	contentTypesPath    = "[Content_Types].xml"
	docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

var (
	// wpTag matches one paragraph, <w:p> or <w:p w:rsidR="...">, but not <w:pPr>.
	wpTag = regexp.MustCompile(`(?s)<w:p(?:\s[^>]*)?>(.*?)</w:p>`)
	// wtTag matches <w:t>text</w:t> or <w:t xml:space="preserve">text</w:t>.
	wtTag = regexp.MustCompile(`<w:t(?:\s[^>]*)?>([^<]*)</w:t>`)
	// overrideTag matches an Override element; attribute order varies between producers.
	overrideTag  = regexp.MustCompile(`<Override\s[^>]*/?>`)
	partNameAttr = regexp.MustCompile(`PartName="([^"]+)"`)
)

// docxMainDocumentPath finds the main document part from [Content_Types].xml.
// Returns the path without leading slash, or the default path if not declared.
func docxMainDocumentPath(contentTypes []byte) string {
	for _, el := range overrideTag.FindAllString(string(contentTypes), -1) {
		if !strings.Contains(el, `ContentType="`+docxMainContentType+`"`) {
			continue
		}
		if m := partNameAttr.FindStringSubmatch(el); len(m) > 1 {
			return strings.TrimPrefix(m[1], "/")
		}
	}
	return docxDocumentXMLPath
}

// extractDOCX extracts text from .docx bytes, one line per paragraph so clause
// boundaries survive into chunking.
func extractDOCX(content []byte) (string, error) {
	zr, err := openZip(content)
	if err != nil {
		return "", fmt.Errorf("extract DOCX: not a zip: %w", err)
	}
	contentTypes, err := readZipEntry(zr, contentTypesPath)
	if err != nil {
		return "", fmt.Errorf("extract DOCX: %w", err)
	}
	docPath := docxMainDocumentPath(contentTypes)
	docXML, err := readZipEntry(zr, docPath)
	if err != nil {
		return "", fmt.Errorf("extract DOCX: %w", err)
	}
	if docXML == nil {
		return "", fmt.Errorf("extract DOCX: %s not found", docPath)
	}

	var lines []string
	for _, para := range wpTag.FindAllStringSubmatch(string(docXML), -1) {
		if line := joinRuns(wtTag.FindAllStringSubmatch(para[1], -1)); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// joinRuns concatenates regex text-run captures with XML entities decoded. Runs inside
// one paragraph are fragments of the same sentence, so they are joined without separators.
func joinRuns(runs [][]string) string {
	var b strings.Builder
	for _, r := range runs {
		b.WriteString(html.UnescapeString(r[1]))
	}
	return strings.TrimSpace(b.String())
}
