package receipt

import (
	"bytes"
	"fmt"

	wkhtmltopdf "github.com/SebastiaanKlippert/go-wkhtmltopdf"
)

// WKHTMLEngine renders HTML to PDF through the wkhtmltopdf binary, which
// must be on PATH.
type WKHTMLEngine struct{}

// NewWKHTMLEngine returns the production PDF engine.
func NewWKHTMLEngine() *WKHTMLEngine {
	return &WKHTMLEngine{}
}

// Render implements PDFEngine.
func (e *WKHTMLEngine) Render(html []byte, opts Options) ([]byte, error) {
	gen, err := wkhtmltopdf.NewPDFGenerator()
	if err != nil {
		return nil, fmt.Errorf("receipt: wkhtmltopdf unavailable: %w", err)
	}

	gen.PageSize.Set(opts.PageSize)
	gen.Orientation.Set(opts.Orientation)

	page := wkhtmltopdf.NewPageReader(bytes.NewReader(html))
	page.DisableExternalLinks.Set(true)
	gen.AddPage(page)

	if err := gen.Create(); err != nil {
		return nil, fmt.Errorf("receipt: wkhtmltopdf: %w", err)
	}
	return gen.Bytes(), nil
}
