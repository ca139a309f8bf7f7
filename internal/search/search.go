// Package search gives the decision process access to recent news
// headlines. Results come from the Google News RSS feed and are folded into
// a plain numbered list; the core treats that text as opaque.
package search

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"llm-day-trader/internal/interfaces"
	"llm-day-trader/internal/logger"
	"llm-day-trader/internal/retry"
)

const feedURL = "https://news.google.com/rss/search?q=%s&hl=en-US&gl=US&ceid=US:en"

type Client struct {
	timeout time.Duration
}

var _ interfaces.Searcher = (*Client)(nil)

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{timeout: timeout}
}

type headline struct {
	title     string
	source    string
	published string
	summary   string
}

func (c *Client) Search(ctx context.Context, query string, maxResults int) (string, error) {
	if maxResults <= 0 {
		maxResults = 5
	}

	collector := colly.NewCollector(colly.MaxDepth(1))
	collector.SetRequestTimeout(c.timeout)

	// Set user agent to avoid being blocked
	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	})

	var items []headline
	collector.OnXML("//item", func(e *colly.XMLElement) {
		if len(items) >= maxResults {
			return
		}
		items = append(items, headline{
			title:     strings.TrimSpace(e.ChildText("title")),
			source:    strings.TrimSpace(e.ChildText("source")),
			published: strings.TrimSpace(e.ChildText("pubDate")),
			summary:   stripHTML(e.ChildText("description")),
		})
	})

	var visitErr error
	collector.OnError(func(r *colly.Response, err error) {
		visitErr = err
	})

	if err := collector.Visit(fmt.Sprintf(feedURL, url.QueryEscape(query))); err != nil {
		return "", retry.Transient(fmt.Errorf("news search %q: %w", query, err))
	}
	collector.Wait()
	if visitErr != nil {
		return "", retry.Transient(fmt.Errorf("news search %q: %w", query, visitErr))
	}

	logger.Debug(ctx, "News search completed", "query", query, "results", len(items))
	if len(items) == 0 {
		return fmt.Sprintf("No recent news found for %q.", query), nil
	}
	return render(items), nil
}

func render(items []headline) string {
	var sb strings.Builder
	for i, it := range items {
		fmt.Fprintf(&sb, "%d. %s", i+1, it.title)
		if it.source != "" {
			fmt.Fprintf(&sb, " (%s)", it.source)
		}
		if it.published != "" {
			fmt.Fprintf(&sb, " [%s]", it.published)
		}
		sb.WriteString("\n")
		if it.summary != "" && it.summary != it.title {
			fmt.Fprintf(&sb, "   %s\n", it.summary)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// stripHTML flattens the HTML fragments Google News puts in descriptions.
func stripHTML(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}
	return strings.TrimSpace(doc.Text())
}
