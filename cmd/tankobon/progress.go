package main

import (
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// pageProgress renders fetch progress on a terminal and stays silent
// otherwise.
type pageProgress struct {
	bar *progressbar.ProgressBar
}

func newPageProgress(w io.Writer, total int, description string) *pageProgress {
	if !isTerminal(w) || total <= 0 {
		return &pageProgress{}
	}
	return &pageProgress{bar: progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)}
}

// Update matches fetch.ProgressFunc.
func (p *pageProgress) Update(done, total int) {
	if p.bar == nil {
		return
	}
	_ = p.bar.Set(done)
}

func (p *pageProgress) Finish() {
	if p.bar == nil {
		return
	}
	_ = p.bar.Finish()
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
