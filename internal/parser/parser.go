package parser

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"study-assistant/internal/models"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

type parseFunc func(data []byte) (string, error)

var parsers = map[string]parseFunc{
	models.FileTypePDF:  parsePDF,
	models.FileTypeDOCX: parseDOCX,
	models.FileTypeXLSX: parseXLSX,
	models.FileTypeXLSM: parseWorkbook,
	models.FileTypePPTX: parsePPTX,
	models.FileTypeODS:  parseODS,
	models.FileTypeMD:   parseMarkdown,
	models.FileTypeTXT:  parseText,
}

var extensions = map[string]string{
	".pdf":      models.FileTypePDF,
	".docx":     models.FileTypeDOCX,
	".xlsx":     models.FileTypeXLSX,
	".xlsm":     models.FileTypeXLSM,
	".xltx":     models.FileTypeXLSM,
	".xltm":     models.FileTypeXLSM,
	".pptx":     models.FileTypePPTX,
	".ods":      models.FileTypeODS,
	".md":       models.FileTypeMD,
	".markdown": models.FileTypeMD,
	".txt":      models.FileTypeTXT,
}

// Extractor turns raw uploads into plain text for the file types it allows
type Extractor struct {
	allowed map[string]bool
}

// NewExtractor gates extraction to allowedTypes, an empty list allows pdf only
func NewExtractor(allowedTypes []string) *Extractor {
	if len(allowedTypes) == 0 {
		allowedTypes = []string{models.FileTypePDF}
	}
	allowed := make(map[string]bool, len(allowedTypes))
	for _, t := range allowedTypes {
		t = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(t), "."))
		if _, ok := parsers[t]; ok {
			allowed[t] = true
		} else {
			log.Warn().Str("file_type", t).Msg("Ignoring unknown file type")
		}
	}
	return &Extractor{allowed: allowed}
}

// DetectFileType maps filename to an allowed file type
func (e *Extractor) DetectFileType(filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	fileType, ok := extensions[ext]
	if !ok || !e.allowed[fileType] {
		return "", fmt.Errorf("%w: %q", models.ErrUnsupportedFormat, filename)
	}
	return fileType, nil
}

// ExtractText returns the plain text of data. Unparseable input yields
// ErrExtraction, parseable input without text yields ErrEmptyContent.
func (e *Extractor) ExtractText(filename string, data []byte) (string, error) {
	fileType, err := e.DetectFileType(filename)
	if err != nil {
		return "", err
	}

	content, err := safeParse(parsers[fileType], data)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", models.ErrExtraction, filename, err)
	}
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%w: %s", models.ErrEmptyContent, filename)
	}
	return content, nil
}

// the pdf reader panics on some malformed input
func safeParse(fn parseFunc, data []byte) (content string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed document: %v", r)
		}
	}()
	return fn(data)
}

func parsePDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var content strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		content.WriteString(pageText)
		content.WriteString("\n")
	}
	return content.String(), nil
}

func parseDOCX(data []byte) (string, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	defer r.Close()

	// GetContent returns the raw document.xml
	return extractTextFromXML(r.Editable().GetContent(), "t", "", "p")
}

// slides are read in slide number order, one line per paragraph
func parsePPTX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	type slide struct {
		num  int
		file *zip.File
	}
	var slides []slide
	for _, f := range zr.File {
		name := strings.TrimPrefix(f.Name, "ppt/slides/slide")
		if name == f.Name || !strings.HasSuffix(name, ".xml") {
			continue
		}
		num, err := strconv.Atoi(strings.TrimSuffix(name, ".xml"))
		if err != nil {
			continue
		}
		slides = append(slides, slide{num: num, file: f})
	}
	if len(slides) == 0 {
		return "", fmt.Errorf("no slides found")
	}
	slices.SortFunc(slides, func(a, b slide) int { return a.num - b.num })

	var content strings.Builder
	for _, s := range slides {
		xmlContent, err := readZipFile(s.file)
		if err != nil {
			return "", fmt.Errorf("slide %d: %w", s.num, err)
		}
		slideText, err := extractTextFromXML(xmlContent, "t", "", "p")
		if err != nil {
			return "", fmt.Errorf("slide %d: %w", s.num, err)
		}
		content.WriteString(fmt.Sprintf("## Slide %d\n", s.num))
		content.WriteString(slideText)
		content.WriteString("\n")
	}
	return content.String(), nil
}

// excelize only reads OOXML, OpenDocument sheets are walked from content.xml
func parseODS(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	f, err := zr.Open("content.xml")
	if err != nil {
		return "", fmt.Errorf("missing content.xml: %w", err)
	}
	defer f.Close()
	xmlContent, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	return extractTextFromXML(string(xmlContent), "p", "table-cell", "table-row")
}

func readZipFile(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func parseXLSX(data []byte) (string, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return "", err
	}

	var content strings.Builder
	for _, sheet := range f.Sheets {
		content.WriteString(fmt.Sprintf("## Sheet: %s\n", sheet.Name))
		for _, row := range sheet.Rows {
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				cells = append(cells, cell.String())
			}
			content.WriteString(strings.Join(cells, "\t"))
			content.WriteString("\n")
		}
		content.WriteString("\n")
	}
	return content.String(), nil
}

// macro enabled workbooks and templates go through excelize
func parseWorkbook(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	defer f.Close()

	var content strings.Builder
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return "", fmt.Errorf("sheet %s: %w", sheetName, err)
		}
		content.WriteString(fmt.Sprintf("## Sheet: %s\n", sheetName))
		for _, row := range rows {
			content.WriteString(strings.Join(row, "\t"))
			content.WriteString("\n")
		}
		content.WriteString("\n")
	}
	return content.String(), nil
}

func parseMarkdown(data []byte) (string, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	doc := md.Parser().Parse(text.NewReader(data))

	var content strings.Builder
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock {
				content.WriteString("\n")
			}
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			content.Write(node.Segment.Value(data))
			if node.SoftLineBreak() || node.HardLineBreak() {
				content.WriteString("\n")
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				line := lines.At(i)
				content.Write(line.Value(data))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", err
	}
	return content.String(), nil
}

func parseText(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("text is not valid utf-8")
	}
	return string(data), nil
}

// extractTextFromXML collects the character data of textTag elements, writes
// a tab after every closing cellTag and ends a line at every closing blockTag.
// An empty cellTag disables the separator.
func extractTextFromXML(xmlContent, textTag, cellTag, blockTag string) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(xmlContent))
	var content strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == textTag {
				inText = true
			}
		case xml.EndElement:
			if t.Name.Local == textTag {
				inText = false
			}
			if cellTag != "" && t.Name.Local == cellTag {
				content.WriteString("\t")
			}
			if t.Name.Local == blockTag {
				content.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				content.Write(t)
			}
		}
	}
	return content.String(), nil
}
