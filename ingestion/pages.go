package ingestion

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

const (
	DefaultMaxPages = 3

	// 72 dpi keeps one page image at the PDF's native point size.
	renderDPI = 72
)

// PageImage is one rendered PDF page.
type PageImage struct {
	Page int
	PNG  []byte
}

// Base64 returns the PNG encoded without a data URL prefix.
func (p PageImage) Base64() string {
	return base64.StdEncoding.EncodeToString(p.PNG)
}

// pdftoppm names its output <prefix>-<page>.png, zero padding the page.
var renderedPagePattern = regexp.MustCompile(`-(\d+)\.png$`)

// PageRenderer rasterizes PDF pages with poppler's pdftoppm.
type PageRenderer struct {
	Bin     string
	TempDir string
}

func NewPageRenderer(bin, tempDir string) *PageRenderer {
	if bin == "" {
		bin = "pdftoppm"
	}
	return &PageRenderer{Bin: bin, TempDir: tempDir}
}

// Render returns PNG images of the first maxPages pages of a PDF, in page
// order. Intermediate files live under TempDir and are removed before
// returning.
func (r *PageRenderer) Render(ctx context.Context, data []byte, maxPages int) (_ []PageImage, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("pdf page rendering panicked: %v", rec)
		}
	}()
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	if DetectFormat("", data) != FormatPDF {
		return nil, fmt.Errorf("payload is not a PDF document")
	}

	workDir, err := os.MkdirTemp(r.TempDir, "pages-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	inFile := filepath.Join(workDir, "input.pdf")
	if err := os.WriteFile(inFile, data, 0o600); err != nil {
		return nil, fmt.Errorf("write temp pdf: %w", err)
	}

	pdfCtx, err := api.ReadContextFile(inFile)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	if pdfCtx.PageCount == 0 {
		return []PageImage{}, nil
	}
	last := min(maxPages, pdfCtx.PageCount)

	outDir := filepath.Join(workDir, "pages")
	if err := os.Mkdir(outDir, 0o700); err != nil {
		return nil, fmt.Errorf("create page dir: %w", err)
	}
	if err := r.run(ctx, inFile, filepath.Join(outDir, "page"), last); err != nil {
		return nil, err
	}
	return readRenderedPages(outDir)
}

func (r *PageRenderer) run(ctx context.Context, inFile, prefix string, last int) error {
	cmd := exec.CommandContext(ctx, r.Bin,
		"-png",
		"-r", strconv.Itoa(renderDPI),
		"-f", "1",
		"-l", strconv.Itoa(last),
		inFile,
		prefix,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("pdftoppm: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func readRenderedPages(dir string) ([]PageImage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list rendered pages: %w", err)
	}
	pages := make([]PageImage, 0, len(entries))
	for _, entry := range entries {
		page := renderedPage(entry.Name())
		if entry.IsDir() || page == 0 {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read rendered page %s: %w", entry.Name(), err)
		}
		if !mimetype.Detect(raw).Is("image/png") {
			return nil, fmt.Errorf("rendered page %s is not a PNG image", entry.Name())
		}
		pages = append(pages, PageImage{Page: page, PNG: raw})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Page < pages[j].Page })
	return pages, nil
}

func renderedPage(name string) int {
	match := renderedPagePattern.FindStringSubmatch(name)
	if match == nil {
		return 0
	}
	page, err := strconv.Atoi(match[1])
	if err != nil {
		return 0
	}
	return page
}
