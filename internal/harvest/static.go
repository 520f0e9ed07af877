package harvest

import (
	"context"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"golang.org/x/net/html"

	"github.com/postpulse/postpulse/internal/engagement"
	"github.com/postpulse/postpulse/internal/httpx"
	"github.com/postpulse/postpulse/internal/observability"
)

// StaticHarvester reads server-rendered post pages (mbasic-style markup)
// without a browser. It walks the parsed document once, bucketing the same
// fragments the browser harvester collects from the live DOM; sprite-icon
// counters don't exist in static markup, so comments and shares are left to
// the resolver's free-text fallback.
type StaticHarvester struct {
	fetcher *httpx.CollyFetcher
}

func NewStaticHarvester(userAgent string) *StaticHarvester {
	f := httpx.NewCollyFetcher(userAgent)
	// Post hosts get a slower lane than the default crawl rate.
	f.SetHostLimit("facebook.com", 2*time.Second, 1)
	return &StaticHarvester{fetcher: f}
}

func (s *StaticHarvester) Harvest(ctx context.Context, postURL string) (engagement.RawPayload, error) {
	var payload engagement.RawPayload

	err := s.fetcher.Fetch(ctx, postURL, func(c *colly.Collector) {
		c.OnResponse(func(r *colly.Response) {
			doc, err := html.Parse(strings.NewReader(string(r.Body)))
			if err != nil {
				return
			}
			payload = bucketFragments(doc)
		})
	})
	if err != nil {
		return engagement.RawPayload{}, err
	}

	observability.IncPagesHarvested("harvest_static")
	return payload, nil
}

func bucketFragments(doc *html.Node) engagement.RawPayload {
	var p engagement.RawPayload

	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		if label := attr(n, "aria-label"); strings.Contains(label, " people") {
			p.ItemizedReactionLabels = append(p.ItemizedReactionLabels, label)
		}
		if strings.TrimSpace(nodeText(n)) == "All reactions:" && n.Parent != nil {
			for _, span := range findElements(n.Parent, "span") {
				txt := strings.TrimSpace(nodeText(span))
				if txt != "" && strings.ContainsAny(txt, "0123456789") {
					p.AggregateReactionCandidates = append(p.AggregateReactionCandidates, txt)
				}
			}
		}
	})

	if len(p.AggregateReactionCandidates) > 0 {
		p.AggregateReactionPrimary = p.AggregateReactionCandidates[len(p.AggregateReactionCandidates)-1]
	}
	p.FullText = strings.Join(strings.Fields(nodeText(doc)), " ")
	return p
}

func walk(n *html.Node, visit func(*html.Node)) {
	visit(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func findElements(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	walk(n, func(c *html.Node) {
		if c.Type == html.ElementNode && c.Data == tag {
			out = append(out, c)
		}
	})
	return out
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(nodeText(c))
	}
	return sb.String()
}
