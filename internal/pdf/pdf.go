// Package pdf renders one clinical document as a signed A4 page set.
package pdf

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/medicalscribe/scribe/internal/models"
)

const (
	pageWidth    = 210.0
	pageHeight   = 297.0
	margin       = 20.0
	lineHeight   = 7.0
	logoSize     = 30.0
	logoTextX    = 60.0
	headerTop    = 25.0
	signatureGap = 30.0
	// signatureRoom is the space the block needs below the body, gap included.
	signatureRoom = 70.0
	footerOffset  = 10.0
	newPageTop    = 30.0

	signatureRule = "________________________________________________"

	DefaultGenerator = "Medical Scribe"
)

type Options struct {
	OutputDir string
	Generator string
	Compress  bool
}

// Layout reports where things landed, for callers that check pagination.
type Layout struct {
	Pages           int
	BodyLines       int
	SignaturePage   int
	SignatureTop    float64
	SignatureBottom float64
	Logo            bool
}

type Exporter struct {
	opts Options
}

func New(opts Options) *Exporter {
	if opts.Generator == "" {
		opts.Generator = DefaultGenerator
	}
	return &Exporter{opts: opts}
}

// Title is the document heading for kind.
func Title(kind models.DocumentKind) string {
	return string(kind)
}

var whitespace = regexp.MustCompile(`\s+`)

// Filename is <title in snake case>_<epoch ms>.pdf.
func Filename(kind models.DocumentKind, now time.Time) string {
	base := whitespace.ReplaceAllString(strings.ToLower(strings.TrimSpace(Title(kind))), "_")
	return fmt.Sprintf("%s_%d.pdf", base, now.UnixMilli())
}

// Export writes the document into the output directory and returns its path.
func (e *Exporter) Export(profile models.PhysicianProfile, kind models.DocumentKind, content string, now time.Time) (string, error) {
	dir := e.opts.OutputDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	path := filepath.Join(dir, Filename(kind, now))
	var buf bytes.Buffer
	if _, err := e.Render(&buf, profile, Title(kind), content, now); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write pdf: %w", err)
	}
	log.Printf("PDF: exported %s (%d bytes)", path, buf.Len())
	return path, nil
}

// Render lays out the document and writes the PDF to w. The output depends
// only on the arguments.
func (e *Exporter) Render(w io.Writer, profile models.PhysicianProfile, title, content string, now time.Time) (Layout, error) {
	var layout Layout

	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetMargins(margin, margin, margin)
	doc.SetAutoPageBreak(false, 0)
	doc.SetCompression(e.opts.Compress)
	doc.SetCreationDate(now)
	doc.SetModificationDate(now)
	doc.SetCreator(e.opts.Generator, true)
	doc.SetTitle(strings.ToUpper(title), true)
	doc.SetAuthor(profile.DisplayName(), true)

	tr := doc.UnicodeTranslatorFromDescriptor("")
	footer := tr(fmt.Sprintf("Gerado em %s por %s", now.Format("02/01/2006, 15:04"), e.opts.Generator))
	doc.SetFooterFunc(func() {
		doc.SetFont("Helvetica", "", 8)
		doc.SetTextColor(150, 150, 150)
		centered(doc, footer, pageHeight-footerOffset)
	})

	doc.AddPage()

	// header
	textX := margin
	y := headerTop
	if logo, kind := loadLogo(profile.LogoURL); logo != nil {
		doc.RegisterImageOptionsReader("logo", fpdf.ImageOptions{ImageType: kind}, bytes.NewReader(logo))
		if doc.Ok() {
			doc.ImageOptions("logo", margin, margin, logoSize, logoSize, false, fpdf.ImageOptions{ImageType: kind}, 0, "")
			textX = logoTextX
			layout.Logo = true
		} else {
			log.Printf("PDF: error adding logo: %v", doc.Error())
			doc.ClearError()
		}
	}

	doc.SetFont("Helvetica", "B", 16)
	doc.SetTextColor(0, 0, 0)
	doc.Text(textX, y, tr(profile.DisplayName()))

	doc.SetFont("Helvetica", "", 10)
	doc.SetTextColor(100, 100, 100)
	sub := y + 5
	if profile.Especialidade != "" {
		doc.Text(textX, sub, tr(profile.Especialidade))
		sub += 5
	}
	if reg := profile.Registration(); reg != "" {
		doc.Text(textX, sub, tr(reg))
	}

	y = margin + 25
	if layout.Logo {
		y = margin + logoSize + 5
	}

	doc.SetDrawColor(200, 200, 200)
	doc.Line(margin, y, pageWidth-margin, y)
	y += 10

	doc.SetFont("Helvetica", "", 10)
	doc.SetTextColor(100, 100, 100)
	stamp := "Data: " + now.Format("02/01/2006")
	doc.Text(pageWidth-margin-doc.GetStringWidth(stamp), y, stamp)
	y += 10

	doc.SetFont("Helvetica", "B", 14)
	doc.SetTextColor(0, 0, 0)
	centered(doc, tr(strings.ToUpper(title)), y)
	y += 15

	// body
	doc.SetFont("Helvetica", "", 11)
	doc.SetTextColor(50, 50, 50)
	for _, line := range wrap(doc, tr(content), pageWidth-2*margin) {
		if y > pageHeight-margin {
			doc.AddPage()
			doc.SetFont("Helvetica", "", 11)
			doc.SetTextColor(50, 50, 50)
			y = newPageTop
		}
		if line != "" {
			doc.Text(margin, y, line)
		}
		y += lineHeight
		layout.BodyLines++
	}

	// signature, kept whole on one page
	if pageHeight-y < signatureRoom {
		doc.AddPage()
		y = newPageTop
	} else {
		y += signatureGap
	}
	layout.SignaturePage = doc.PageNo()
	layout.SignatureTop = y - 4

	doc.SetFont("Helvetica", "", 11)
	doc.SetTextColor(0, 0, 0)
	centered(doc, signatureRule, y)
	y += 7

	doc.SetFont("Helvetica", "B", 11)
	centered(doc, tr(profile.DisplayName()), y)
	y += 5

	if reg := profile.Registration(); reg != "" {
		doc.SetFont("Helvetica", "", 10)
		centered(doc, tr(reg), y)
		y += 5
	}

	doc.SetFont("Helvetica", "I", 9)
	doc.SetTextColor(100, 100, 100)
	centered(doc, "(Assinatura e Carimbo)", y)
	layout.SignatureBottom = y

	layout.Pages = doc.PageNo()
	if err := doc.Output(w); err != nil {
		return layout, fmt.Errorf("render pdf: %w", err)
	}
	return layout, nil
}

func centered(doc *fpdf.Fpdf, s string, y float64) {
	doc.Text(pageWidth/2-doc.GetStringWidth(s)/2, y, s)
}

// wrap splits text into lines no wider than width, keeping explicit line
// breaks and blank lines.
func wrap(doc *fpdf.Fpdf, text string, width float64) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	for _, para := range strings.Split(text, "\n") {
		if strings.TrimSpace(para) == "" {
			out = append(out, "")
			continue
		}
		for _, line := range doc.SplitLines([]byte(para), width) {
			out = append(out, string(line))
		}
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}

// loadLogo resolves a data: URL, an http(s) URL or a local path to image
// bytes and their fpdf type. Failures are logged and yield no logo.
func loadLogo(ref string) ([]byte, string) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, ""
	}

	var data []byte
	var err error
	switch {
	case strings.HasPrefix(ref, "data:"):
		data, err = decodeDataURL(ref)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		data, err = fetch(ref)
	default:
		data, err = os.ReadFile(ref)
	}
	if err != nil {
		log.Printf("PDF: error loading logo: %v", err)
		return nil, ""
	}

	switch http.DetectContentType(data) {
	case "image/png":
		return data, "PNG"
	case "image/jpeg":
		return data, "JPG"
	}
	log.Printf("PDF: unsupported logo format %s", http.DetectContentType(data))
	return nil, ""
}

func decodeDataURL(ref string) ([]byte, error) {
	comma := strings.IndexByte(ref, ',')
	if comma < 0 {
		return nil, fmt.Errorf("malformed data URL")
	}
	meta, payload := ref[len("data:"):comma], ref[comma+1:]
	if !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("data URL is not base64")
	}
	return base64.StdEncoding.DecodeString(payload)
}

func fetch(url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("logo fetch status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 5<<20))
}
