package archive

import (
	"archive/zip"
	"context"
	"os"
	"time"
)

// entryTime is stamped on every entry so repacking identical pages yields
// identical bytes.
var entryTime = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// CBZPacker writes a ZIP of stored (uncompressed) page images named by
// zero-padded index.
type CBZPacker struct{}

// Format implements Packer.
func (CBZPacker) Format() Format { return FormatArchive }

// Pack implements Packer.
func (CBZPacker) Pack(ctx context.Context, pages []Page, dest string) (Artifact, error) {
	if err := validatePages(pages); err != nil {
		return Artifact{}, err
	}
	size, err := writeAtomic(dest, func(f *os.File) error {
		zw := zip.NewWriter(f)
		for i, page := range pages {
			if err := ctx.Err(); err != nil {
				return &PackError{Op: "write", Index: i, Err: err}
			}
			w, err := zw.CreateHeader(&zip.FileHeader{
				Name:     EntryName(i, len(pages), page.Ext),
				Method:   zip.Store,
				Modified: entryTime,
			})
			if err != nil {
				return &PackError{Op: "write", Index: i, Err: err}
			}
			if _, err := w.Write(page.Data); err != nil {
				return &PackError{Op: "write", Index: i, Err: err}
			}
		}
		if err := zw.Close(); err != nil {
			return &PackError{Op: "finalize", Index: -1, Path: dest, Err: err}
		}
		return nil
	})
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{Path: dest, Format: FormatArchive, Entries: len(pages), Size: size}, nil
}
