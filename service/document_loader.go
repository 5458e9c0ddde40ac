package service

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/daureny/rag-chatbot-be/types"
	"github.com/ledongthuc/pdf"
)

var supportedExtensions = map[string]bool{
	".pdf":  true,
	".docx": true,
	".txt":  true,
	".html": true,
}

// Lines containing these markers are treated as document titles.
var titleKeywords = []string{
	"ЗАКОН", "ПРАВИЛ", "ПОСТАНОВЛ", "МСФО", "КОДЕКС", "РЕГУЛИРОВАНИЕ",
	"ИНСТРУКЦ", "ПОЛОЖЕНИ", "ТРЕБОВАНИ",
}

// Terms collected into chunk metadata to sharpen retrieval.
var importantTerms = []string{
	"риск", "аппетит", "капитал", "ВПОДК", "норматив", "банк",
	"финансов", "отчетность", "требования", "положение",
	"правила", "МСФО", "IFRS", "IAS",
}

// DocumentLoader discovers supported files and extracts their text with
// per-file error isolation.
type DocumentLoader struct {
	maxFileSize int64
}

func NewDocumentLoader(maxFileSize int64) *DocumentLoader {
	return &DocumentLoader{maxFileSize: maxFileSize}
}

// Discover walks root and returns the paths of supported files in lexical
// order. Files larger than maxFileSize are skipped. maxDocs <= 0 means no
// limit.
func (l *DocumentLoader) Discover(root string, maxDocs int) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !supportedExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		if l.maxFileSize > 0 {
			info, err := d.Info()
			if err != nil {
				return err
			}
			if info.Size() > l.maxFileSize {
				log.Printf("Skipping %s: file size %d exceeds limit %d", path, info.Size(), l.maxFileSize)
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan documents directory: %w", err)
	}
	if maxDocs > 0 && len(files) > maxDocs {
		log.Printf("Limiting document count to %d", maxDocs)
		files = files[:maxDocs]
	}
	return files, nil
}

// LoadFile extracts the text of a single document and enriches every page
// with title, keyword and document-type metadata.
func (l *DocumentLoader) LoadFile(path string) ([]types.DocumentPage, error) {
	var texts []string
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		texts, err = loadPDF(path)
	case ".docx":
		texts, err = loadDOCX(path)
	case ".html":
		texts, err = loadHTML(path)
	case ".txt":
		texts, err = loadText(path)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	filename := filepath.Base(path)
	pages := make([]types.DocumentPage, 0, len(texts))
	for _, text := range texts {
		meta := types.DocumentMetadata{
			Source:       ExtractTitle(text, filename),
			Filename:     filename,
			Keywords:     extractKeywords(text, filename),
			DocumentType: classifyDocument(filename),
		}
		pages = append(pages, types.DocumentPage{Text: text, Metadata: meta})
	}
	return pages, nil
}

// ExtractTitle derives a citation title from the document text. It prefers a
// line with a regulatory keyword in the first ten lines, then the first
// substantial line, then the bare filename.
func ExtractTitle(text, filename string) string {
	lines := strings.Split(text, "\n")
	if len(lines) > 10 {
		lines = lines[:10]
	}

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if utf8.RuneCountInString(line) <= 10 {
			continue
		}
		upper := strings.ToUpper(line)
		for _, kw := range titleKeywords {
			if strings.Contains(upper, kw) {
				return fmt.Sprintf("%s (%s)", line, filename)
			}
		}
	}

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if utf8.RuneCountInString(line) > 20 {
			runes := []rune(line)
			if len(runes) > 100 {
				runes = runes[:100]
			}
			return fmt.Sprintf("%s... (%s)", string(runes), filename)
		}
	}

	return fmt.Sprintf("Документ: %s", filename)
}

// extractKeywords scans the first twenty lines and the filename for terms
// worth indexing.
func extractKeywords(text, filename string) string {
	lines := strings.Split(text, "\n")
	if len(lines) > 20 {
		lines = lines[:20]
	}
	haystack := strings.ToLower(strings.Join(lines, " "))
	lowerName := strings.ToLower(filename)

	var keywords []string
	for _, term := range importantTerms {
		lowerTerm := strings.ToLower(term)
		if strings.Contains(haystack, lowerTerm) || strings.Contains(lowerName, lowerTerm) {
			keywords = append(keywords, term)
		}
	}
	return strings.Join(keywords, ", ")
}

func classifyDocument(filename string) string {
	upper := strings.ToUpper(filename)
	for _, standard := range []string{"МСФО", "IAS", "IFRS"} {
		if strings.Contains(upper, standard) {
			return "стандарт"
		}
	}
	lower := strings.ToLower(filename)
	for _, law := range []string{"закон", "зн", "правил", "кодекс"} {
		if strings.Contains(lower, law) {
			return "нормативный акт"
		}
	}
	return ""
}

// loadPDF extracts one text per page. Pages that fail to parse are skipped so
// a single damaged page does not lose the whole document.
func loadPDF(path string) ([]string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	var texts []string
	for pageIndex := 1; pageIndex <= r.NumPage(); pageIndex++ {
		page := r.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			log.Printf("Skipping page %d of %s: %v", pageIndex, path, err)
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		texts = append(texts, text)
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("no extractable text in %s", path)
	}
	return texts, nil
}

// loadDOCX pulls paragraph text out of word/document.xml.
func loadDOCX(path string) ([]string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open docx: %w", err)
	}
	defer zr.Close()

	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return nil, fmt.Errorf("invalid docx: word/document.xml not found")
	}

	rc, err := doc.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to read docx content: %w", err)
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)
	var sb strings.Builder
	inText := false
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse docx xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			if t.Name.Local == "t" {
				inText = false
			}
			if t.Name.Local == "p" {
				sb.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}

	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("no extractable text in %s", path)
	}
	return []string{text}, nil
}

var (
	scriptRe = regexp.MustCompile(`(?is)<script.*?</script>`)
	styleRe  = regexp.MustCompile(`(?is)<style.*?</style>`)
	tagRe    = regexp.MustCompile(`<[^>]*>`)
	blankRe  = regexp.MustCompile(`[ \t]+`)
)

// loadHTML strips markup and returns the readable text.
func loadHTML(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read html: %w", err)
	}
	text := scriptRe.ReplaceAllString(string(data), " ")
	text = styleRe.ReplaceAllString(text, " ")
	text = tagRe.ReplaceAllString(text, " ")
	text = html.UnescapeString(text)
	text = blankRe.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	cleaned := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			cleaned = append(cleaned, line)
		}
	}
	text = strings.Join(cleaned, "\n")
	if text == "" {
		return nil, fmt.Errorf("no extractable text in %s", path)
	}
	return []string{text}, nil
}

func loadText(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read text file: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, fmt.Errorf("no extractable text in %s", path)
	}
	return []string{string(data)}, nil
}
