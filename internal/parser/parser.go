package parser

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"digital-dean/internal/models"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
)

const defaultPageNumber = 1

// Loader loads syllabus documents from disk. It implements models.DocumentLoader.
type Loader struct{}

func NewLoader() *Loader {
	return &Loader{}
}

// SupportedExtensions lists the file extensions Load understands
var SupportedExtensions = []string{".pdf", ".docx", ".pptx", ".xlsx", ".xlsm", ".xltx", ".xltm", ".md", ".markdown", ".html", ".htm", ".txt"}

// Supported reports whether the file extension of path can be loaded
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range SupportedExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// Load reads the file at filePath into a Document. Any failure is reported
// as models.ErrUnreadableDocument.
func (l *Loader) Load(filePath string) (*models.Document, error) {
	pages, err := loadPages(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", models.ErrUnreadableDocument, filepath.Base(filePath), err)
	}
	log.Debug().Str("file", filePath).Int("pages", len(pages)).Msg("Loaded document")
	return &models.Document{Source: filepath.Base(filePath), Pages: pages}, nil
}

func loadPages(filePath string) ([]models.Page, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".pdf":
		return parsePDF(filePath)
	case ".docx":
		return parseDOCX(filePath)
	case ".pptx":
		return parsePPTX(filePath)
	case ".xlsx":
		return parseXLSX(filePath)
	case ".xlsm", ".xltx", ".xltm":
		return parseWorkbook(filePath)
	case ".md", ".markdown":
		return parseMarkdown(filePath)
	case ".html", ".htm":
		return parseHTML(filePath)
	case ".txt":
		return parseText(filePath)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", ext)
	}
}

func parsePDF(filePath string) ([]models.Page, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, err
	}

	var pages []models.Page
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = appendPage(pages, i, text)
	}
	return pages, nil
}

func parseDOCX(filePath string) ([]models.Page, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	// DOCX has no page numbers
	content := extractTextFromXML(r.Editable().GetContent(), "w:t", "w:p")
	return appendPage(nil, defaultPageNumber, content), nil
}

func parsePPTX(filePath string) ([]models.Page, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	type slide struct {
		num  int
		text string
	}
	var slides []slide
	for _, file := range f.File {
		name := file.Name
		if !strings.HasPrefix(name, "ppt/slides/slide") || !strings.HasSuffix(name, ".xml") {
			continue
		}
		num, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "ppt/slides/slide"), ".xml"))
		if err != nil {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		slides = append(slides, slide{num: num, text: extractTextFromXML(string(data), "a:t", "a:p")})
	}
	// zip order is not slide order
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	var pages []models.Page
	for _, s := range slides {
		pages = appendPage(pages, s.num, s.text)
	}
	return pages, nil
}

func parseXLSX(filePath string) ([]models.Page, error) {
	f, err := xlsx.OpenFile(filePath)
	if err != nil {
		return nil, err
	}

	var pages []models.Page
	for sheetNum, sheet := range f.Sheets {
		var rows [][]string
		for _, row := range sheet.Rows {
			var cells []string
			for _, cell := range row.Cells {
				cells = append(cells, cell.String())
			}
			rows = append(rows, cells)
		}
		pages = appendPage(pages, sheetNum+1, sheetText(sheet.Name, rows))
	}
	return pages, nil
}

func parseWorkbook(filePath string) ([]models.Page, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pages []models.Page
	for sheetNum, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %w", sheetName, err)
		}
		pages = appendPage(pages, sheetNum+1, sheetText(sheetName, rows))
	}
	return pages, nil
}

func parseText(filePath string) ([]models.Page, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return appendPage(nil, defaultPageNumber, string(data)), nil
}

func sheetText(name string, rows [][]string) string {
	var text strings.Builder
	text.WriteString("## Sheet: " + name + "\n")
	for _, row := range rows {
		text.WriteString(strings.Join(row, "\t"))
		text.WriteString("\n")
	}
	return text.String()
}

// appendPage drops pages without any visible text
func appendPage(pages []models.Page, number int, text string) []models.Page {
	text = strings.TrimSpace(text)
	if text == "" {
		return pages
	}
	return append(pages, models.Page{Number: number, Text: text})
}

// extractTextFromXML collects the contents of textTag elements, breaking lines at paraTag ends
func extractTextFromXML(xmlContent, textTag, paraTag string) string {
	textRe := regexp.MustCompile(`<` + textTag + `(?:\s[^>]*)?>([^<]*)</` + textTag + `>`)
	var text strings.Builder
	for _, para := range strings.Split(xmlContent, "</"+paraTag+">") {
		var line strings.Builder
		for _, m := range textRe.FindAllStringSubmatch(para, -1) {
			line.WriteString(m[1])
		}
		if s := strings.TrimSpace(line.String()); s != "" {
			text.WriteString(unescapeXML(s))
			text.WriteString("\n")
		}
	}
	return text.String()
}

var xmlEntities = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'", "&amp;", "&")

func unescapeXML(s string) string {
	return xmlEntities.Replace(s)
}
