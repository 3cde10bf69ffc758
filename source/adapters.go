package source

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hazyhaar/babelfeed/item"
	"github.com/hazyhaar/babelfeed/itemid"
)

// --- rss ---

// RSSAdapter handles RSS, Atom and JSON Feed entries.
type RSSAdapter struct{}

func (*RSSAdapter) Type() string     { return "rss" }
func (*RSSAdapter) Decoder() Decoder { return FeedDecoder{} }

func (*RSSAdapter) Normalize(record json.RawMessage, meta Meta) (*item.Normalized, error) {
	var it gofeed.Item
	if err := json.Unmarshal(record, &it); err != nil {
		return nil, fmt.Errorf("rss: decode: %w", err)
	}
	link := strings.TrimSpace(it.Link)
	guid := strings.TrimSpace(it.GUID)
	if guid == "" {
		guid = link
	}
	if guid == "" {
		return nil, fmt.Errorf("rss: entry has neither guid nor link")
	}
	title := strings.TrimSpace(it.Title)
	if title == "" {
		return nil, fmt.Errorf("rss: entry %s has no title", guid)
	}

	published := meta.FetchedAt
	switch {
	case it.PublishedParsed != nil:
		published = *it.PublishedParsed
	case it.UpdatedParsed != nil:
		published = *it.UpdatedParsed
	}

	n := &item.Normalized{
		ID:                hashID(guid),
		OriginalPublished: published.UTC(),
		URL:               link,
		Tags:              it.Categories,
		Fields:            map[string]string{"title": title},
		HTMLFields:        []string{"title"},
	}
	if summary := strings.TrimSpace(it.Description); summary != "" {
		n.Fields["summary"] = summary
		n.HTMLFields = append(n.HTMLFields, "summary")
	}
	for _, a := range it.Authors {
		if a != nil && a.Name != "" {
			n.Authors = append(n.Authors, item.Author{Name: a.Name})
		}
	}
	if it.Image != nil && it.Image.URL != "" {
		n.Image = it.Image.URL
	}
	for _, enc := range it.Enclosures {
		if enc == nil {
			continue
		}
		switch {
		case n.Image == "" && strings.HasPrefix(enc.Type, "image/"):
			n.Image = enc.URL
		case n.Video == nil && strings.HasPrefix(enc.Type, "video/"):
			n.Video = &item.Video{Sources: []item.VideoSource{{URL: enc.URL, Type: enc.Type}}}
		}
	}
	if n.URL == "" && strings.HasPrefix(guid, "http") {
		n.URL = guid
	}
	return n, nil
}

// --- hn ---

// HNAdapter handles hits of the Hacker News Algolia search API.
type HNAdapter struct{}

func (*HNAdapter) Type() string     { return "hn" }
func (*HNAdapter) Decoder() Decoder { return JSONDecoder{DefaultPath: "hits"} }

type hnHit struct {
	ObjectID    string   `json:"objectID"`
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	Author      string   `json:"author"`
	Points      int      `json:"points"`
	NumComments int      `json:"num_comments"`
	CreatedAtI  int64    `json:"created_at_i"`
	StoryText   string   `json:"story_text"`
	Tags        []string `json:"_tags"`
}

func (*HNAdapter) Normalize(record json.RawMessage, meta Meta) (*item.Normalized, error) {
	var h hnHit
	if err := json.Unmarshal(record, &h); err != nil {
		return nil, fmt.Errorf("hn: decode: %w", err)
	}
	if h.ObjectID == "" || strings.TrimSpace(h.Title) == "" {
		return nil, fmt.Errorf("hn: hit without id or title")
	}
	discussion := "https://news.ycombinator.com/item?id=" + url.QueryEscape(h.ObjectID)
	n := &item.Normalized{
		ID:                h.ObjectID,
		OriginalPublished: time.Unix(h.CreatedAtI, 0).UTC(),
		URL:               h.URL,
		ExternalURL:       discussion,
		Score:             h.Points,
		NumComments:       h.NumComments,
		Fields:            map[string]string{"title": strings.TrimSpace(h.Title)},
	}
	if h.CreatedAtI == 0 {
		n.OriginalPublished = meta.FetchedAt.UTC()
	}
	if n.URL == "" {
		n.URL = discussion
	}
	if h.Author != "" {
		n.Authors = []item.Author{{Name: h.Author, URL: "https://news.ycombinator.com/user?id=" + url.QueryEscape(h.Author)}}
	}
	for _, tag := range h.Tags {
		switch tag {
		case "show_hn":
			n.Tags = append(n.Tags, "Show HN")
		case "ask_hn":
			n.Tags = append(n.Tags, "Ask HN")
		}
	}
	name := "HN Link"
	if h.Points > 0 {
		name = "↑ " + strconv.Itoa(h.Points) + " HN Points"
	}
	n.Links = []item.Link{{URL: discussion, Name: name}}
	if host := hostOf(n.URL); host == "news.ycombinator.com" || host == "github.com" {
		n.NoImage = true
	}
	return n, nil
}

// --- reddit ---

// RedditAdapter handles listing children of the Reddit JSON API.
type RedditAdapter struct{}

func (*RedditAdapter) Type() string     { return "reddit" }
func (*RedditAdapter) Decoder() Decoder { return JSONDecoder{DefaultPath: "data.children"} }

type redditChild struct {
	Data struct {
		ID          string  `json:"id"`
		Title       string  `json:"title"`
		URL         string  `json:"url"`
		Permalink   string  `json:"permalink"`
		Author      string  `json:"author"`
		Score       int     `json:"score"`
		NumComments int     `json:"num_comments"`
		CreatedUTC  float64 `json:"created_utc"`
		Over18      bool    `json:"over_18"`
		Subreddit   string  `json:"subreddit"`
		IsSelf      bool    `json:"is_self"`
	} `json:"data"`
}

func (*RedditAdapter) Normalize(record json.RawMessage, meta Meta) (*item.Normalized, error) {
	var c redditChild
	if err := json.Unmarshal(record, &c); err != nil {
		return nil, fmt.Errorf("reddit: decode: %w", err)
	}
	d := c.Data
	if d.ID == "" || strings.TrimSpace(d.Title) == "" {
		return nil, fmt.Errorf("reddit: post without id or title")
	}
	permalink := "https://www.reddit.com" + d.Permalink
	n := &item.Normalized{
		ID:                d.ID,
		OriginalPublished: time.Unix(int64(d.CreatedUTC), 0).UTC(),
		URL:               d.URL,
		ExternalURL:       permalink,
		Score:             d.Score,
		NumComments:       d.NumComments,
		Sensitive:         d.Over18,
		Fields:            map[string]string{"title": strings.TrimSpace(d.Title)},
	}
	if d.CreatedUTC == 0 {
		n.OriginalPublished = meta.FetchedAt.UTC()
	}
	if d.IsSelf || n.URL == "" {
		n.URL = permalink
	}
	if d.Subreddit != "" {
		n.Tags = []string{d.Subreddit}
	}
	if d.Author != "" {
		n.Authors = []item.Author{{Name: d.Author, URL: "https://www.reddit.com/user/" + d.Author}}
	}
	name := "Reddit Link"
	if d.Score > 0 {
		name = "↑ " + strconv.Itoa(d.Score) + " Reddit Upvotes"
	}
	n.Links = []item.Link{{URL: permalink, Name: name}}
	return n, nil
}

// --- source ---

// PassthroughAdapter re-ingests items already formatted by another
// babelfeed instance (the "source" type), keeping their translations.
type PassthroughAdapter struct{}

func (*PassthroughAdapter) Type() string     { return "source" }
func (*PassthroughAdapter) Decoder() Decoder { return JSONDecoder{DefaultPath: "items"} }

func (*PassthroughAdapter) Normalize(record json.RawMessage, meta Meta) (*item.Normalized, error) {
	var f item.FormattedItem
	if err := json.Unmarshal(record, &f); err != nil {
		return nil, fmt.Errorf("source: decode formatted item: %w", err)
	}
	fields, err := itemid.Decode(f.ID)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	orig, ok := f.Original()
	if !ok {
		return nil, fmt.Errorf("source: item %s has no %s translations", f.ID, f.OriginalLanguage)
	}
	n := &item.Normalized{
		ID:                fields.ID,
		Type:              fields.Type,
		Language:          f.OriginalLanguage,
		OriginalPublished: f.OriginalPublished.UTC(),
		URL:               f.URL,
		ExternalURL:       f.ExternalURL,
		Image:             f.Image,
		NoImage:           f.Image == "",
		Video:             f.Video,
		Tags:              f.Tags,
		Authors:           f.Authors,
		Score:             f.Score,
		NumComments:       f.NumComments,
		Links:             f.Links,
		TitlePrefix:       f.TitlePrefix,
		TitleSuffix:       f.TitleSuffix,
		Sensitive:         f.Sensitive,
		Fields:            make(map[string]string, len(orig)),
		Translations:      f.Translations.Clone(),
	}
	for k, v := range orig {
		n.Fields[k] = v
	}
	if n.OriginalPublished.IsZero() {
		n.OriginalPublished = meta.FetchedAt.UTC()
	}
	return n, nil
}

func hashID(s string) string {
	h := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", h[:10])
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
