package activity

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/gorilla/feeds"
)

// excerptLength はエントリタイトルに使う本文の最大文字数。
const excerptLength = 80

// BuildAtom はジョブの活動履歴（メッセージと添付）を新しい順のAtomフィードにする。
// portalURLはポータル画面のURLで、トークンを含めてはならない。
func BuildAtom(sum *Summary, portalURL string) ([]byte, error) {
	var items []*feeds.Item

	for _, m := range sum.Messages {
		items = append(items, &feeds.Item{
			Id:     "urn:uuid:" + m.ID,
			Title:  fmt.Sprintf("[%s] %s", m.SenderType, excerpt(m.Body)),
			Link:   &feeds.Link{Href: portalURL},
			Author: &feeds.Author{Name: string(m.SenderType)},
			// 本文はプレーンテキストのため、html型のcontentに入れる前にエスケープする
			Content: html.EscapeString(m.Body),
			Created: m.CreatedAt.UTC(),
		})
	}
	for _, a := range sum.Attachments {
		link := &feeds.Link{Href: portalURL}
		if a.URL != "" {
			link = &feeds.Link{Href: a.URL, Type: a.MimeType}
		}
		items = append(items, &feeds.Item{
			Id:      "urn:uuid:" + a.ID,
			Title:   "Attachment uploaded: " + a.MimeType,
			Link:    link,
			Created: a.CreatedAt.UTC(),
		})
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].Created.After(items[j].Created) })

	updated := sum.UpdatedAt
	if len(items) > 0 && items[0].Created.After(updated) {
		updated = items[0].Created
	}

	feed := &feeds.Feed{
		Title:   sum.Title + " - activity",
		Link:    &feeds.Link{Href: portalURL},
		Author:  &feeds.Author{Name: "jobdesk"},
		Updated: updated.UTC(),
		Items:   items,
	}

	out, err := feed.ToAtom()
	if err != nil {
		return nil, fmt.Errorf("failed to encode atom feed: %w", err)
	}
	return []byte(out), nil
}

// excerpt は改行を空白にまとめ、先頭excerptLength文字を返す。
func excerpt(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= excerptLength {
		return s
	}
	r := []rune(s)
	return string(r[:excerptLength]) + "…"
}
