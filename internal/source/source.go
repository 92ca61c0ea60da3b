package source

import (
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// Source yields the scan to classify and explain.
type Source interface {
	Name() string
	Image() (image.Image, error)
	Close() error
}

// Open picks a source implementation by file extension. PDF reports are
// rasterized at the given 1-based page and DPI, everything else is decoded
// as a plain raster image.
func Open(path string, page, dpi int) (Source, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return NewFitzPDFSource(path, page, dpi)
	case ".jpg", ".jpeg", ".png", ".webp":
		return NewFileSource(path), nil
	default:
		return nil, fmt.Errorf("unsupported input type: %s", path)
	}
}

// FitzPDFSource rasterizes one page of a PDF report, radiology scans often
// arrive embedded in referral documents.
type FitzPDFSource struct {
	doc  *fitz.Document
	path string
	page int
	dpi  int
}

func NewFitzPDFSource(path string, page, dpi int) (*FitzPDFSource, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	if page < 1 || page > doc.NumPage() {
		doc.Close()
		return nil, fmt.Errorf("page %d outside document with %d pages", page, doc.NumPage())
	}
	return &FitzPDFSource{doc: doc, path: path, page: page, dpi: dpi}, nil
}

func (f *FitzPDFSource) Name() string {
	return fmt.Sprintf("%s#page%d", filepath.Base(f.path), f.page)
}

func (f *FitzPDFSource) Image() (image.Image, error) {
	return f.doc.ImageDPI(f.page-1, float64(f.dpi))
}

func (f *FitzPDFSource) Close() error {
	return f.doc.Close()
}
