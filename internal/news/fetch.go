// Package news fetches market headlines for the operator: Alpaca news for
// the proxy ETF plus Google News RSS for broad market queries.
package news

import (
	"encoding/xml"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
)

// Article is a single headline from any source.
type Article struct {
	Time     time.Time `json:"time"`
	Source   string    `json:"source"`
	Headline string    `json:"headline"`
	Summary  string    `json:"summary,omitempty"`
}

var httpClient = &http.Client{Timeout: 10 * time.Second}

// FetchAlpacaNews fetches recent news for a symbol from the Alpaca
// marketdata API.
func FetchAlpacaNews(mdc *marketdata.Client, symbol string, start, end time.Time) ([]Article, error) {
	items, err := mdc.GetNews(marketdata.GetNewsRequest{
		Symbols:            []string{symbol},
		Start:              start,
		End:                end,
		TotalLimit:         50,
		ExcludeContentless: true,
		Sort:               marketdata.SortAsc,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching alpaca news for %s: %w", symbol, err)
	}

	articles := make([]Article, 0, len(items))
	for _, a := range items {
		articles = append(articles, Article{
			Time:     a.CreatedAt,
			Source:   "alpaca",
			Headline: a.Headline,
			Summary:  StripHTML(a.Summary),
		})
	}
	return articles, nil
}

type rssResponse struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title   string `xml:"title"`
	PubDate string `xml:"pubDate"`
	Desc    string `xml:"description"`
}

// FetchGoogleNews fetches headlines from Google News RSS for a free-form
// query such as "S&P 500".
func FetchGoogleNews(query string, start, end time.Time) ([]Article, error) {
	u := "https://news.google.com/rss/search?q=" + url.QueryEscape(query) + "&hl=en-US&gl=US&ceid=US:en"

	req, err := http.NewRequest("GET", u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching google news: %w", err)
	}
	defer resp.Body.Close()

	var rss rssResponse
	if err := xml.NewDecoder(resp.Body).Decode(&rss); err != nil {
		return nil, fmt.Errorf("decoding google news feed: %w", err)
	}

	var articles []Article
	for _, item := range rss.Channel.Items {
		t, err := time.Parse(time.RFC1123Z, item.PubDate)
		if err != nil {
			t, err = time.Parse(time.RFC1123, item.PubDate)
			if err != nil {
				continue
			}
		}
		if t.Before(start) || t.After(end) {
			continue
		}
		headline := item.Title
		// Google appends " - <publisher>" to titles.
		if idx := strings.LastIndex(headline, " - "); idx > 0 {
			headline = headline[:idx]
		}
		articles = append(articles, Article{
			Time:     t,
			Source:   "google",
			Headline: headline,
			Summary:  StripHTML(item.Desc),
		})
	}
	return articles, nil
}

// Headlines merges article lists, sorts newest first, and trims to limit.
// Intended for building compact prompt context.
func Headlines(limit int, lists ...[]Article) []string {
	var all []Article
	for _, list := range lists {
		all = append(all, list...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Time.After(all[j].Time) })

	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	out := make([]string, 0, len(all))
	for _, a := range all {
		out = append(out, fmt.Sprintf("[%s] %s", a.Time.Format("15:04"), a.Headline))
	}
	return out
}

var htmlTagRe = regexp.MustCompile(`<[^>]*>`)

// StripHTML removes HTML tags and normalizes whitespace.
func StripHTML(s string) string {
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}
