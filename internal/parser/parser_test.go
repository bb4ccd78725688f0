package parser

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"study-assistant/internal/models"
	"study-assistant/internal/testutil"
)

func TestExtractText_PDFPagesJoinedByNewline(t *testing.T) {
	e := NewExtractor(nil)
	data := testutil.BuildPDF("Photosynthesis converts light.", "Mitochondria make ATP.", "Ribosomes build proteins.")

	content, err := e.ExtractText("biology.pdf", data)
	require.NoError(t, err)

	first := strings.Index(content, "Photosynthesis converts light.")
	second := strings.Index(content, "Mitochondria make ATP.")
	third := strings.Index(content, "Ribosomes build proteins.")
	require.GreaterOrEqual(t, first, 0)
	require.Greater(t, second, first)
	require.Greater(t, third, second)
	assert.Contains(t, content[first:second], "\n")
	assert.True(t, strings.HasSuffix(content, "\n"))
}

func TestExtractText_CorruptPDF(t *testing.T) {
	e := NewExtractor(nil)

	_, err := e.ExtractText("broken.pdf", []byte("%PDF-1.4 this is not really a pdf"))
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrExtraction)
	assert.NotErrorIs(t, err, models.ErrEmptyContent)
}

func TestExtractText_TruncatedPDF(t *testing.T) {
	e := NewExtractor(nil)
	data := testutil.BuildPDF("some text on a page")

	_, err := e.ExtractText("cut.pdf", data[:len(data)/2])
	assert.ErrorIs(t, err, models.ErrExtraction)
}

func TestExtractText_EmptyPDF(t *testing.T) {
	e := NewExtractor(nil)

	_, err := e.ExtractText("blank.pdf", testutil.BuildPDF("   ", ""))
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrEmptyContent)
	assert.NotErrorIs(t, err, models.ErrExtraction)
}

func TestExtractor_FormatGate(t *testing.T) {
	e := NewExtractor([]string{"pdf"})

	_, err := e.ExtractText("notes.txt", []byte("hello"))
	assert.ErrorIs(t, err, models.ErrUnsupportedFormat)

	_, err = e.DetectFileType("archive.zip")
	assert.ErrorIs(t, err, models.ErrUnsupportedFormat)

	fileType, err := e.DetectFileType("Lecture.PDF")
	require.NoError(t, err)
	assert.Equal(t, models.FileTypePDF, fileType)
}

func TestExtractor_UnknownAllowedTypeIgnored(t *testing.T) {
	e := NewExtractor([]string{".TXT", "exe"})

	fileType, err := e.DetectFileType("a.txt")
	require.NoError(t, err)
	assert.Equal(t, models.FileTypeTXT, fileType)

	_, err = e.DetectFileType("a.pdf")
	assert.ErrorIs(t, err, models.ErrUnsupportedFormat)
}

func TestExtractText_PlainText(t *testing.T) {
	e := NewExtractor([]string{"txt"})

	content, err := e.ExtractText("a.txt", []byte("line one\nline two"))
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", content)

	_, err = e.ExtractText("b.txt", []byte{0xff, 0xfe, 0x00})
	assert.ErrorIs(t, err, models.ErrExtraction)

	_, err = e.ExtractText("c.txt", []byte(" \n\t "))
	assert.ErrorIs(t, err, models.ErrEmptyContent)
}

func TestExtractText_Markdown(t *testing.T) {
	e := NewExtractor([]string{"md"})
	src := "# Cell Biology\n\nThe **cell** is the basic unit of life.\n\n- nucleus\n- membrane\n\n```\ncode sample\n```\n"

	content, err := e.ExtractText("notes.md", []byte(src))
	require.NoError(t, err)

	assert.Contains(t, content, "Cell Biology")
	assert.Contains(t, content, "The cell is the basic unit of life.")
	assert.Contains(t, content, "nucleus")
	assert.Contains(t, content, "code sample")
	assert.NotContains(t, content, "**")
	assert.NotContains(t, content, "#")
}

func TestExtractTextFromXML(t *testing.T) {
	xmlDoc := `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		`<w:p><w:r><w:t>Hello</w:t></w:r><w:r><w:t xml:space="preserve"> world</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>Second &amp; last</w:t></w:r></w:p>` +
		`</w:body></w:document>`

	content, err := extractTextFromXML(xmlDoc, "t", "", "p")
	require.NoError(t, err)
	assert.Equal(t, "Hello world\nSecond & last\n", content)

	_, err = extractTextFromXML("<w:p><w:t>open", "t", "", "p")
	assert.Error(t, err)
}

func TestExtractText_CorruptOfficeFiles(t *testing.T) {
	e := NewExtractor([]string{"docx", "xlsx", "xlsm", "pptx", "ods"})

	for _, name := range []string{"a.docx", "b.xlsx", "c.xlsm", "d.pptx", "e.ods"} {
		_, err := e.ExtractText(name, []byte(strings.Repeat("garbage", 10)))
		assert.ErrorIs(t, err, models.ErrExtraction, name)
	}
}

func zipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func slideXML(paragraphs ...string) string {
	var b strings.Builder
	b.WriteString(`<p:sld xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main" ` +
		`xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"><p:cSld><p:spTree><p:sp><p:txBody>`)
	for _, para := range paragraphs {
		b.WriteString("<a:p><a:r><a:t>" + para + "</a:t></a:r></a:p>")
	}
	b.WriteString("</p:txBody></p:sp></p:spTree></p:cSld></p:sld>")
	return b.String()
}

func TestExtractText_PPTXSlidesInOrder(t *testing.T) {
	data := zipArchive(t, map[string]string{
		"ppt/slides/slide10.xml":           slideXML("Summary"),
		"ppt/slides/slide2.xml":            slideXML("Mitosis", "Meiosis"),
		"ppt/slides/slide1.xml":            slideXML("Cell division"),
		"ppt/slides/_rels/slide1.xml.rels": "<Relationships/>",
	})

	content, err := NewExtractor([]string{"pptx"}).ExtractText("lecture.pptx", data)
	require.NoError(t, err)
	assert.Equal(t, "## Slide 1\nCell division\n\n## Slide 2\nMitosis\nMeiosis\n\n## Slide 10\nSummary\n\n", content)
}

func TestExtractText_PPTXWithoutSlides(t *testing.T) {
	data := zipArchive(t, map[string]string{"ppt/presentation.xml": "<p:presentation/>"})
	_, err := NewExtractor([]string{"pptx"}).ExtractText("empty.pptx", data)
	assert.ErrorIs(t, err, models.ErrExtraction)
}

func TestExtractText_ODSRowsAndCells(t *testing.T) {
	content := `<office:document-content xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0" ` +
		`xmlns:table="urn:oasis:names:tc:opendocument:xmlns:table:1.0" ` +
		`xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0"><office:body><office:spreadsheet>` +
		`<table:table table:name="Grades"><table:table-row>` +
		`<table:table-cell><text:p>Term</text:p></table:table-cell><table:table-cell><text:p>Grade</text:p></table:table-cell>` +
		`</table:table-row><table:table-row>` +
		`<table:table-cell><text:p>Autumn</text:p></table:table-cell><table:table-cell><text:p>A</text:p></table:table-cell>` +
		`</table:table-row></table:table></office:spreadsheet></office:body></office:document-content>`
	data := zipArchive(t, map[string]string{"mimetype": "application/vnd.oasis.opendocument.spreadsheet", "content.xml": content})

	text, err := NewExtractor([]string{"ods"}).ExtractText("grades.ods", data)
	require.NoError(t, err)
	assert.Equal(t, "Term\tGrade\t\nAutumn\tA\t\n", text)
}
