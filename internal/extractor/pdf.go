package extractor

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"
)

// ErrNoText is returned when no readable text could be recovered.
var ErrNoText = errors.New("no readable text in document")

// columnGap is the horizontal distance, in points, treated as a column break.
const columnGap = 15

// Extractor recovers per-page text from statement files.
type Extractor struct {
	// Pdftotext enables the poppler pdftotext fallback when it is on PATH.
	Pdftotext bool
	log       zerolog.Logger
}

// New returns an Extractor with the pdftotext fallback enabled.
func New(log zerolog.Logger) *Extractor {
	return &Extractor{Pdftotext: true, log: log.With().Str("component", "extractor").Logger()}
}

// ExtractFile returns the text of each page of the file at path. Plain text
// files are split into pages on form feeds.
func (e *Extractor) ExtractFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if !IsPDF(data) {
		return SplitPages(string(data)), nil
	}

	pages, err := e.ExtractPDF(data)
	if err == nil {
		return pages, nil
	}
	if e.Pdftotext {
		if alt, altErr := pdftotext(path); altErr == nil && IsReadable(alt) {
			e.log.Debug().Str("file", filepath.Base(path)).Msg("used pdftotext fallback")
			return alt, nil
		}
	}
	return nil, err
}

// ExtractPDF returns the text of each page of an in-memory PDF.
func (e *Extractor) ExtractPDF(data []byte) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader panicked: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	if r.NumPage() == 0 {
		return nil, fmt.Errorf("%w: pdf has no pages", ErrNoText)
	}

	pages = byRow(r)
	if IsReadable(pages) {
		return pages, nil
	}
	e.log.Debug().Int("pages", r.NumPage()).Msg("row extraction unreadable, trying positioned text")

	pages = byPosition(r)
	if IsReadable(pages) {
		return pages, nil
	}
	return nil, ErrNoText
}

// IsPDF reports whether data starts with the PDF header.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), []byte("%PDF-"))
}

// SplitPages splits text on form feeds, dropping blank pages.
func SplitPages(text string) []string {
	pages := []string{}
	for _, p := range strings.Split(text, "\f") {
		if strings.TrimSpace(p) != "" {
			pages = append(pages, p)
		}
	}
	return pages
}

func byRow(r *pdf.Reader) []string {
	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			continue
		}
		var lines []string
		for _, row := range rows {
			words := make([]string, 0, len(row.Content))
			for _, w := range row.Content {
				words = append(words, w.S)
			}
			if line := strings.TrimSpace(strings.Join(words, " ")); line != "" {
				lines = append(lines, line)
			}
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}
	return pages
}

type positioned struct {
	x float64
	s string
}

// byPosition rebuilds lines from glyph positions, grouping by rounded Y
// (top of page first) and ordering each line by X.
func byPosition(r *pdf.Reader) []string {
	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content := page.Content()
		rows := make(map[int][]positioned)
		for _, t := range content.Text {
			if strings.TrimSpace(t.S) == "" {
				continue
			}
			y := int(math.Round(t.Y))
			rows[y] = append(rows[y], positioned{x: t.X, s: t.S})
		}

		ys := make([]int, 0, len(rows))
		for y := range rows {
			ys = append(ys, y)
		}
		sort.Sort(sort.Reverse(sort.IntSlice(ys)))

		var lines []string
		for _, y := range ys {
			if line := joinRow(rows[y]); line != "" {
				lines = append(lines, line)
			}
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}
	return pages
}

func joinRow(items []positioned) string {
	sort.Slice(items, func(a, b int) bool { return items[a].x < items[b].x })
	var sb strings.Builder
	for j, it := range items {
		if j > 0 && it.x-items[j-1].x > columnGap {
			sb.WriteByte(' ')
		}
		sb.WriteString(it.s)
	}
	return strings.TrimSpace(sb.String())
}

// pdftotext shells out to poppler's pdftotext in layout mode.
func pdftotext(path string) ([]string, error) {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return nil, err
	}
	out, err := exec.Command("pdftotext", "-layout", path, "-").Output()
	if err != nil {
		return nil, fmt.Errorf("pdftotext: %w", err)
	}
	pages := SplitPages(string(out))
	if len(pages) == 0 {
		return nil, ErrNoText
	}
	return pages, nil
}

var statementWords = []string{
	"account", "balance", "statement", "transaction", "period",
	"debit", "credit", "opening", "closing", "date",
}

// IsReadable reports whether pages look like decoded statement text rather
// than glyph-id garbage: enough characters, mostly printable ASCII, and at
// least one word every statement carries.
func IsReadable(pages []string) bool {
	total, printable := 0, 0
	for _, p := range pages {
		for _, r := range p {
			total++
			if r < unicode.MaxASCII && (unicode.IsPrint(r) || unicode.IsSpace(r)) {
				printable++
			}
		}
	}
	if total <= 50 || float64(printable)/float64(total) <= 0.6 {
		return false
	}
	lower := strings.ToLower(strings.Join(pages, " "))
	for _, w := range statementWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}
