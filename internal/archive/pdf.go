package archive

import (
	"bytes"
	"context"
	"io"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFPacker writes one page per image, in input order, using pdfcpu.
type PDFPacker struct{}

// Format implements Packer.
func (PDFPacker) Format() Format { return FormatPDF }

// Pack implements Packer.
func (PDFPacker) Pack(ctx context.Context, pages []Page, dest string) (Artifact, error) {
	if err := validatePages(pages); err != nil {
		return Artifact{}, err
	}
	if err := ctx.Err(); err != nil {
		return Artifact{}, &PackError{Op: "write", Index: -1, Path: dest, Err: err}
	}

	readers := make([]io.Reader, len(pages))
	for i, page := range pages {
		readers[i] = bytes.NewReader(page.Data)
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	imp := pdfcpu.DefaultImportConfig()

	size, err := writeAtomic(dest, func(f *os.File) error {
		if err := api.ImportImages(nil, f, readers, imp, conf); err != nil {
			return &PackError{Op: "write", Index: -1, Path: dest, Err: err}
		}
		return nil
	})
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{Path: dest, Format: FormatPDF, Entries: len(pages), Size: size}, nil
}
