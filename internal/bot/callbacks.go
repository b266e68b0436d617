package bot

import (
	"context"
	"fmt"
	"strings"

	"tankobon/internal/archive"
	"tankobon/internal/logging"
	"tankobon/internal/services"
	"tankobon/internal/session"
	"tankobon/internal/sources"
	"tankobon/internal/telegram"
)

const (
	expiredText   = "This menu has expired. Send the manga name again."
	noResultsText = "No manga found for that search."
	noChapterText = "No chapters found."
	searchingText = "Searching %s..."
	resultsText   = "Search results:"
)

func (b *Bot) handleCallback(ctx context.Context, chatID int64, cb *telegram.CallbackQuery) {
	data := cb.Data
	switch {
	case data == callbackNoop:
		b.answer(ctx, cb.ID, "")
	case strings.HasPrefix(data, callbackFormat):
		b.toggleFormat(ctx, chatID, cb, strings.TrimPrefix(data, callbackFormat))
	case strings.HasPrefix(data, callbackChapter):
		b.pickChapter(ctx, chatID, cb, strings.TrimPrefix(data, callbackChapter))
	case strings.HasPrefix(data, callbackWholePage):
		b.pickWholePage(ctx, chatID, cb, strings.TrimPrefix(data, callbackWholePage))
	default:
		// Browsing steps scrape the source; one flow per requester at a time.
		release, err := b.searchLocks.Acquire(ctx, chatID)
		if err != nil {
			return
		}
		defer release()
		switch {
		case strings.HasPrefix(data, callbackSource):
			b.pickSource(ctx, chatID, cb, strings.TrimPrefix(data, callbackSource))
		case strings.HasPrefix(data, callbackManga):
			b.pickManga(ctx, chatID, cb, strings.TrimPrefix(data, callbackManga))
		case strings.HasPrefix(data, callbackPage):
			b.turnPage(ctx, chatID, cb, strings.TrimPrefix(data, callbackPage))
		default:
			b.answer(ctx, cb.ID, expiredText)
		}
	}
}

// lookup resolves key to an entry of the wanted kind owned by chatID.
func (b *Bot) lookup(key string, kind session.Kind, chatID int64) (session.Entry, bool) {
	entry, ok := b.sessions.Get(key)
	if !ok || entry.Kind != kind || entry.RequesterID != chatID {
		return session.Entry{}, false
	}
	return entry, true
}

func (b *Bot) pickSource(ctx context.Context, chatID int64, cb *telegram.CallbackQuery, key string) {
	entry, ok := b.lookup(key, session.KindSearch, chatID)
	if !ok {
		b.answer(ctx, cb.ID, expiredText)
		return
	}
	src, err := b.sources.Get(entry.SourceID)
	if err != nil {
		b.answer(ctx, cb.ID, expiredText)
		return
	}
	b.answer(ctx, cb.ID, "")
	b.edit(ctx, chatID, cb.Message, fmt.Sprintf(searchingText, src.Name()), nil)

	results, err := src.Search(ctx, entry.Query)
	if err != nil {
		b.sourceFailed(ctx, chatID, cb.Message, "search", err)
		return
	}
	if len(results) == 0 {
		b.edit(ctx, chatID, cb.Message, noResultsText, nil)
		return
	}
	rows := make([][]telegram.InlineKeyboardButton, 0, len(results))
	for _, manga := range results {
		key := b.sessions.Put(session.Entry{
			Kind:        session.KindManga,
			RequesterID: chatID,
			SourceID:    src.ID(),
			ID:          manga.ID,
			Title:       manga.Title,
		})
		rows = append(rows, []telegram.InlineKeyboardButton{telegram.Button(manga.Title, callbackManga+key)})
	}
	b.edit(ctx, chatID, cb.Message, resultsText, telegram.Keyboard(rows...))
}

func (b *Bot) pickManga(ctx context.Context, chatID int64, cb *telegram.CallbackQuery, key string) {
	entry, ok := b.lookup(key, session.KindManga, chatID)
	if !ok {
		b.answer(ctx, cb.ID, expiredText)
		return
	}
	src, err := b.sources.Get(entry.SourceID)
	if err != nil {
		b.answer(ctx, cb.ID, expiredText)
		return
	}
	chapters, err := src.ListChapters(ctx, entry.ID)
	if err != nil {
		b.answer(ctx, cb.ID, "")
		b.sourceFailed(ctx, chatID, cb.Message, "list chapters", err)
		return
	}
	if len(chapters) == 0 {
		b.answer(ctx, cb.ID, noChapterText)
		return
	}
	b.answer(ctx, cb.ID, "")
	list := session.Entry{
		Kind:        session.KindList,
		RequesterID: chatID,
		SourceID:    entry.SourceID,
		ID:          entry.ID,
		Title:       entry.Title,
		Chapters:    chapters,
	}
	b.showChapters(ctx, chatID, cb.Message, b.sessions.Put(list), list, 0)
}

func (b *Bot) turnPage(ctx context.Context, chatID int64, cb *telegram.CallbackQuery, payload string) {
	key, n, ok := parsePageData(payload)
	var list session.Entry
	if ok {
		list, ok = b.lookup(key, session.KindList, chatID)
	}
	if !ok {
		b.answer(ctx, cb.ID, expiredText)
		return
	}
	b.answer(ctx, cb.ID, "")
	b.showChapters(ctx, chatID, cb.Message, key, list, n)
}

// showChapters renders page n of a stored chapter list: one button per
// chapter, a navigation row, and a button that queues the whole page.
func (b *Bot) showChapters(ctx context.Context, chatID int64, msg *telegram.Message, listKey string, list session.Entry, n int) {
	page := session.Paginate(list.Chapters, n, b.sessions.PageSize())
	rows := make([][]telegram.InlineKeyboardButton, 0, len(page.Chapters)+2)
	for _, ch := range page.Chapters {
		key := b.sessions.Put(session.Entry{
			Kind:        session.KindChapter,
			RequesterID: chatID,
			SourceID:    list.SourceID,
			ID:          ch.ID,
			Title:       jobTitle(list.Title, ch),
		})
		rows = append(rows, []telegram.InlineKeyboardButton{telegram.Button(ch.Title, callbackChapter+key)})
	}

	var nav []telegram.InlineKeyboardButton
	if page.HasPrev() {
		nav = append(nav, telegram.Button("◀️ Prev", pageData(callbackPage, listKey, page.Number-1)))
	}
	if page.Total > 1 {
		nav = append(nav, telegram.Button(fmt.Sprintf("%d/%d", page.Number+1, page.Total), callbackNoop))
	}
	if page.HasNext() {
		nav = append(nav, telegram.Button("Next ▶️", pageData(callbackPage, listKey, page.Number+1)))
	}
	rows = append(rows, nav)
	rows = append(rows, []telegram.InlineKeyboardButton{
		telegram.Button("⬇️ Whole page", pageData(callbackWholePage, listKey, page.Number)),
	})
	b.edit(ctx, chatID, msg, chapterListText(list.Title, page), telegram.Keyboard(rows...))
}

func (b *Bot) pickChapter(ctx context.Context, chatID int64, cb *telegram.CallbackQuery, key string) {
	entry, ok := b.lookup(key, session.KindChapter, chatID)
	if !ok {
		b.answer(ctx, cb.ID, expiredText)
		return
	}
	b.answer(ctx, cb.ID, "Queued: "+entry.Title)
	b.submitBatch(ctx, chatID, []session.Entry{entry})
}

func (b *Bot) pickWholePage(ctx context.Context, chatID int64, cb *telegram.CallbackQuery, payload string) {
	key, n, ok := parsePageData(payload)
	var list session.Entry
	if ok {
		list, ok = b.lookup(key, session.KindList, chatID)
	}
	if !ok {
		b.answer(ctx, cb.ID, expiredText)
		return
	}
	page := session.Paginate(list.Chapters, n, b.sessions.PageSize())
	entries := make([]session.Entry, 0, len(page.Chapters))
	for _, ch := range page.Chapters {
		entries = append(entries, session.Entry{
			Kind:        session.KindChapter,
			RequesterID: chatID,
			SourceID:    list.SourceID,
			ID:          ch.ID,
			Title:       jobTitle(list.Title, ch),
		})
	}
	b.answer(ctx, cb.ID, fmt.Sprintf("Queued %d chapters", len(entries)))
	b.submitBatch(ctx, chatID, entries)
}

func (b *Bot) toggleFormat(ctx context.Context, chatID int64, cb *telegram.CallbackQuery, name string) {
	f, err := archive.ParseFormat(name)
	if err != nil {
		b.answer(ctx, cb.ID, expiredText)
		return
	}
	set, ok := b.sessions.ToggleFormat(chatID, f)
	if !ok {
		b.answer(ctx, cb.ID, "At least one format must stay selected.")
		return
	}
	b.answer(ctx, cb.ID, "")
	b.edit(ctx, chatID, cb.Message, optionsText, optionsKeyboard(set))
}

func (b *Bot) sourceFailed(ctx context.Context, chatID int64, msg *telegram.Message, op string, err error) {
	if ctx.Err() != nil {
		return
	}
	details := services.Details(err)
	logging.WarnWithContext(logging.WithContext(ctx, b.logger), "source request failed", "source_failed",
		logging.String("operation", op),
		logging.String(logging.FieldErrorKind, string(details.Kind)),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, details.Hint),
		logging.String(logging.FieldImpact, "requester sees an error instead of results"),
	)
	b.edit(ctx, chatID, msg, "❌ "+details.Message, nil)
}

func jobTitle(manga string, ch sources.Chapter) string {
	if manga == "" || strings.Contains(ch.Title, manga) {
		return ch.Title
	}
	return manga + " - " + ch.Title
}
