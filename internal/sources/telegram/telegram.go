// Package telegram is C6's Telegram-web adapter: it fetches the public
// t.me/s/<channel> preview page (no bot token needed to read a public
// channel) and parses message blocks into candidates. Grounded on
// original_source's telegram_source.py/media_extractor.py for the block
// shape, using goquery (the teacher's HTML toolkit) instead of the
// original's parser.
package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/deusflow/newsagg/internal/htmlutil"
	"github.com/deusflow/newsagg/internal/httpfetch"
	"github.com/deusflow/newsagg/internal/model"
	"github.com/deusflow/newsagg/internal/sources"
)

// Adapter fetches a public channel's web preview.
type Adapter struct {
	fetcher *httpfetch.Fetcher
}

// New builds a Telegram-web adapter.
func New(fetcher *httpfetch.Fetcher) *Adapter {
	return &Adapter{fetcher: fetcher}
}

func (a *Adapter) Kind() model.SourceKind { return model.SourceTelegram }

func (a *Adapter) Fetch(ctx context.Context, source model.Source) ([]sources.CandidateArticle, error) {
	channel := source.Config["channel"]
	if channel == "" {
		channel = strings.TrimPrefix(source.URL, "https://t.me/")
	}
	previewURL := fmt.Sprintf("https://t.me/s/%s", channel)

	resp, err := a.fetcher.Fetch(ctx, previewURL, httpfetch.Options{})
	if err != nil {
		return nil, err
	}
	doc, err := htmlutil.ParseDocument(string(resp.Body))
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var items []sources.CandidateArticle

	doc.Find(".tgme_widget_message_wrap").Each(func(i int, wrap *goquery.Selection) {
		bubble := wrap.Find(".tgme_widget_message")
		if bubble.Length() == 0 {
			return
		}

		postID, _ := bubble.Attr("data-post")
		msgURL := previewURL
		if postID != "" {
			msgURL = fmt.Sprintf("https://t.me/%s", postID)
		}

		textSel := bubble.Find(".tgme_widget_message_text")
		content := htmlutil.VisibleText(textSel)
		if strings.TrimSpace(content) == "" {
			return
		}

		title := firstLine(content)

		candidate := sources.CandidateArticle{
			SourceID:  source.ID,
			URL:       msgURL,
			Title:     title,
			Content:   content,
			FetchedAt: now,
		}

		if dt, ok := bubble.Find("time").Attr("datetime"); ok {
			if t, err := time.Parse(time.RFC3339, dt); err == nil {
				candidate.PublishedAt = t
			}
		}

		bubble.Find("a.tgme_widget_message_photo_wrap").Each(func(_ int, img *goquery.Selection) {
			if style, ok := img.Attr("style"); ok {
				if u := extractBackgroundImageURL(style); u != "" {
					candidate.MediaFiles = append(candidate.MediaFiles, u)
				}
			}
		})
		bubble.Find("video").Each(func(_ int, v *goquery.Selection) {
			if src, ok := v.Attr("src"); ok {
				candidate.MediaFiles = append(candidate.MediaFiles, src)
			}
		})

		if fwd := bubble.Find(".tgme_widget_message_forwarded_from_name"); fwd.Length() > 0 {
			candidate.ForwardedFrom = strings.TrimSpace(fwd.Text())
		}

		items = append(items, candidate)
	})

	return items, nil
}

func (a *Adapter) NeedsBodyExtraction(item sources.CandidateArticle) bool {
	return false
}

func firstLine(content string) string {
	lines := strings.SplitN(content, "\n", 2)
	title := strings.TrimSpace(lines[0])
	if r := []rune(title); len(r) > 120 {
		title = string(r[:120])
	}
	return title
}

// extractBackgroundImageURL pulls the URL out of a
// `background-image:url('...')` inline style, as used by the
// t.me/s/<channel> preview markup for photo messages.
func extractBackgroundImageURL(style string) string {
	start := strings.Index(style, "url(")
	if start < 0 {
		return ""
	}
	rest := style[start+4:]
	end := strings.Index(rest, ")")
	if end < 0 {
		return ""
	}
	u := strings.Trim(rest[:end], `'" `)
	return u
}
