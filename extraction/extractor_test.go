package extraction

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakePageSource struct {
	pages map[int]string
	fail  map[int]error
	total int
}

func (s *fakePageSource) pageCount() int { return s.total }

func (s *fakePageSource) pageText(n int) (string, error) {
	if err, bad := s.fail[n]; bad {
		return "", err
	}
	return s.pages[n], nil
}

func TestExtractPagesSkipsFailingPage(t *testing.T) {
	e := NewExtractor(testLogger())
	src := &fakePageSource{
		total: 3,
		pages: map[int]string{1: "first page", 3: "third page"},
		fail:  map[int]error{2: errors.New("corrupt content stream")},
	}

	text, pageCount := e.extractPages(src)

	if !strings.Contains(text, "first page") || !strings.Contains(text, "third page") {
		t.Errorf("expected text from surviving pages, got %q", text)
	}
	if strings.Contains(text, "--- Page 2 ---") {
		t.Errorf("expected failing page to be skipped, got %q", text)
	}
	if !strings.Contains(text, "--- Page 1 ---") || !strings.Contains(text, "--- Page 3 ---") {
		t.Errorf("expected page headers, got %q", text)
	}
	// Skipped pages still count toward the document total.
	if pageCount != 3 {
		t.Errorf("expected page count 3, got %d", pageCount)
	}
}

func TestExtractPagesSkipsEmptyPages(t *testing.T) {
	e := NewExtractor(testLogger())
	src := &fakePageSource{
		total: 2,
		pages: map[int]string{1: "", 2: "content"},
	}

	text, pageCount := e.extractPages(src)

	if strings.Contains(text, "--- Page 1 ---") {
		t.Errorf("expected empty page to be omitted, got %q", text)
	}
	if !strings.Contains(text, "content") {
		t.Errorf("expected page 2 content, got %q", text)
	}
	if pageCount != 2 {
		t.Errorf("expected page count 2, got %d", pageCount)
	}
}

func TestExtractUnsupportedType(t *testing.T) {
	e := NewExtractor(testLogger())

	_, err := e.Extract([]byte("data"), "application/zip")

	var unsupported *UnsupportedTypeError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedTypeError, got %v", err)
	}
	if unsupported.MimeType != "application/zip" {
		t.Errorf("expected mime type in error, got %s", unsupported.MimeType)
	}
}

func TestExtractSpreadsheet(t *testing.T) {
	f := excelize.NewFile()
	f.SetCellValue("Sheet1", "A1", "Name")
	f.SetCellValue("Sheet1", "B1", "Amount")
	f.SetCellValue("Sheet1", "A2", "Widget")
	f.SetCellValue("Sheet1", "B2", 42)
	f.NewSheet("Totals")
	f.SetCellValue("Totals", "A1", "Grand Total")

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("failed to build test workbook: %v", err)
	}

	e := NewExtractor(testLogger())
	res, err := e.Extract(buf.Bytes(),
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Method != "xlsx" {
		t.Errorf("expected method xlsx, got %s", res.Method)
	}
	if !strings.Contains(res.Text, "--- Sheet: Sheet1 ---") {
		t.Errorf("expected sheet header, got %q", res.Text)
	}
	if !strings.Contains(res.Text, "Widget\t42") {
		t.Errorf("expected tab-joined row, got %q", res.Text)
	}
	if !strings.Contains(res.Text, "--- Sheet: Totals ---") || !strings.Contains(res.Text, "Grand Total") {
		t.Errorf("expected second sheet content, got %q", res.Text)
	}
}

func TestExtractHTML(t *testing.T) {
	html := `<html><head><title>t</title><style>body { color: red }</style></head>
<body><script>alert("x")</script><h1>Quarterly   Report</h1><p>Revenue grew.</p></body></html>`

	e := NewExtractor(testLogger())
	res, err := e.Extract([]byte(html), "text/html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Method != "html" {
		t.Errorf("expected method html, got %s", res.Method)
	}
	if !strings.Contains(res.Text, "Quarterly Report") || !strings.Contains(res.Text, "Revenue grew.") {
		t.Errorf("expected visible text, got %q", res.Text)
	}
	if strings.Contains(res.Text, "alert") || strings.Contains(res.Text, "color: red") {
		t.Errorf("expected script and style content to be stripped, got %q", res.Text)
	}
}

func TestExtractMimeTypeCaseInsensitive(t *testing.T) {
	e := NewExtractor(testLogger())

	res, err := e.Extract([]byte("<p>hello</p>"), "TEXT/HTML")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "hello" {
		t.Errorf("expected hello, got %q", res.Text)
	}
}
