package bot

import (
	"fmt"
	"strconv"
	"strings"

	"tankobon/internal/archive"
	"tankobon/internal/session"
	"tankobon/internal/telegram"
)

// Callback data prefixes. Keys come from the session cache.
const (
	callbackSource    = "s:"
	callbackManga     = "m:"
	callbackChapter   = "c:"
	callbackPage      = "p:"
	callbackWholePage = "a:"
	callbackFormat    = "f:"
	callbackNoop      = "x"
)

// pairs lays buttons out two per row.
func pairs(buttons []telegram.InlineKeyboardButton) [][]telegram.InlineKeyboardButton {
	rows := make([][]telegram.InlineKeyboardButton, 0, (len(buttons)+1)/2)
	for i := 0; i < len(buttons); i += 2 {
		rows = append(rows, buttons[i:min(i+2, len(buttons))])
	}
	return rows
}

func optionsKeyboard(selected archive.FormatSet) *telegram.InlineKeyboardMarkup {
	rows := make([][]telegram.InlineKeyboardButton, 0, 2)
	for _, f := range []archive.Format{archive.FormatArchive, archive.FormatPDF} {
		mark := "❌"
		if selected.Has(f) {
			mark = "✅"
		}
		rows = append(rows, []telegram.InlineKeyboardButton{
			telegram.Button(mark+" "+f.Label(), callbackFormat+string(f)),
		})
	}
	return telegram.Keyboard(rows...)
}

func chapterListText(title string, page session.Page) string {
	if page.Total <= 1 {
		return fmt.Sprintf("%s\nChoose a chapter:", title)
	}
	return fmt.Sprintf("%s\nChoose a chapter (page %d/%d):", title, page.Number+1, page.Total)
}

// pageData encodes a paging callback for the list stored under key.
func pageData(prefix, key string, n int) string {
	return prefix + key + ":" + strconv.Itoa(n)
}

// parsePageData splits "key:n" as produced by pageData.
func parsePageData(payload string) (string, int, bool) {
	key, raw, ok := strings.Cut(payload, ":")
	if !ok || key == "" {
		return "", 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return "", 0, false
	}
	return key, n, true
}
