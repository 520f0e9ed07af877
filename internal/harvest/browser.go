package harvest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/postpulse/postpulse/internal/engagement"
	"github.com/postpulse/postpulse/internal/httpx"
	"github.com/postpulse/postpulse/internal/observability"
)

// BrowserConfig controls the headless chromium used for harvesting.
type BrowserConfig struct {
	UserAgent string
	Headless  bool
	// Bin overrides the chromium binary; empty lets the launcher resolve one.
	Bin               string
	NavigationTimeout time.Duration
	// SettleDelay gives client-side rendering time to paint the reaction
	// counters after load before the page is read.
	SettleDelay time.Duration
}

func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
			"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0 Safari/537.36",
		Headless:          true,
		NavigationTimeout: 45 * time.Second,
		SettleDelay:       3 * time.Second,
	}
}

// BrowserHarvester renders post pages in headless chromium and reads the
// engagement fragments out of the live DOM in a single script evaluation.
// One shared browser serves all harvests; each harvest gets its own page.
type BrowserHarvester struct {
	cfg    BrowserConfig
	polite *httpx.PoliteClient

	mu      sync.Mutex
	launch  *launcher.Launcher
	browser *rod.Browser
}

func NewBrowserHarvester(cfg BrowserConfig, polite *httpx.PoliteClient) *BrowserHarvester {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = DefaultBrowserConfig().NavigationTimeout
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	return &BrowserHarvester{cfg: cfg, polite: polite}
}

// domPayload mirrors the object built by the harvest script. Keys are the
// script's contract, not a wire format anyone else sees.
type domPayload struct {
	AggregateCandidates []string `json:"aggregate_candidates"`
	AggregatePrimary    string   `json:"aggregate_primary"`
	ItemizedLabels      []string `json:"itemized_labels"`
	CommentTexts        []string `json:"comment_texts"`
	ShareTexts          []string `json:"share_texts"`
	FullText            string   `json:"full_text"`
}

// harvestScript buckets the fragments the resolver needs: per-category
// reaction aria-labels, the spans next to the "All reactions:" element,
// counts adjacent to the comment/share sprite icons, and the flattened body
// text for the free-text fallbacks.
const harvestScript = `
() => {
	const out = {
		aggregate_candidates: [],
		aggregate_primary: '',
		itemized_labels: [],
		comment_texts: [],
		share_texts: [],
		full_text: ''
	};

	const reactionWords = ['Like', 'Love', 'Care', 'Haha', 'Wow', 'Sad', 'Angry'];
	for (const node of document.querySelectorAll('[aria-label*=" people"]')) {
		const label = node.getAttribute('aria-label') || '';
		const m = label.match(/^([A-Za-z]+):\s*([0-9.,]+)\s*people/i);
		if (!m) continue;
		if (!reactionWords.includes(m[1])) continue;
		out.itemized_labels.push(label);
	}

	for (const div of document.querySelectorAll('div')) {
		const txt = (div.textContent || '').trim();
		if (txt !== 'All reactions:') continue;
		const parent = div.parentElement;
		if (!parent) continue;
		for (const s of parent.querySelectorAll('span')) {
			const numTxt = (s.textContent || '').trim();
			if (numTxt && /[0-9]/.test(numTxt)) {
				out.aggregate_candidates.push(numTxt);
			}
		}
	}
	if (out.aggregate_candidates.length > 0) {
		out.aggregate_primary = out.aggregate_candidates[out.aggregate_candidates.length - 1];
	}

	// The comment and share counters sit next to sprite icons identified
	// only by their background offset.
	for (const icon of document.querySelectorAll('i[data-visualcompletion="css-img"]')) {
		const style = icon.getAttribute('style') || '';
		let kind = null;
		if (style.includes('-1037px')) {
			kind = 'comment';
		} else if (style.includes('-1054px')) {
			kind = 'share';
		}
		if (!kind) continue;

		const wrapper = icon.closest('div');
		if (!wrapper || !wrapper.parentElement) continue;
		const span = wrapper.parentElement.querySelector('span');
		if (!span) continue;
		const raw = (span.textContent || '').trim();
		if (!raw) continue;

		if (kind === 'comment') {
			out.comment_texts.push(raw);
		} else {
			out.share_texts.push(raw);
		}
	}

	out.full_text = document.body ? (document.body.innerText || '') : '';
	return JSON.stringify(out);
}`

func (b *BrowserHarvester) Harvest(ctx context.Context, postURL string) (engagement.RawPayload, error) {
	var zero engagement.RawPayload

	if b.polite != nil {
		if err := b.polite.CheckAllowed(ctx, postURL); err != nil {
			return zero, err
		}
	}

	browser, err := b.ensureBrowser()
	if err != nil {
		return zero, fmt.Errorf("browser launch: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return zero, fmt.Errorf("browser page: %w", err)
	}
	defer page.Close()
	page = page.Context(ctx)

	if b.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      b.cfg.UserAgent,
			AcceptLanguage: "en-US",
		}); err != nil {
			return zero, fmt.Errorf("browser user agent: %w", err)
		}
	}

	nav := page.Timeout(b.cfg.NavigationTimeout)
	if err := nav.Navigate(postURL); err != nil {
		return zero, fmt.Errorf("navigate %s: %w", postURL, err)
	}
	if err := nav.WaitLoad(); err != nil {
		return zero, fmt.Errorf("wait load %s: %w", postURL, err)
	}
	if b.cfg.SettleDelay > 0 {
		select {
		case <-time.After(b.cfg.SettleDelay):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}

	res, err := page.Evaluate(&rod.EvalOptions{JS: harvestScript, ByValue: true})
	if err != nil {
		return zero, fmt.Errorf("harvest script: %w", err)
	}

	var dom domPayload
	if err := json.Unmarshal([]byte(res.Value.Str()), &dom); err != nil {
		return zero, fmt.Errorf("harvest payload decode failed: %w", err)
	}

	observability.IncPagesHarvested("harvest_browser")
	return engagement.RawPayload{
		AggregateReactionCandidates: dom.AggregateCandidates,
		AggregateReactionPrimary:    dom.AggregatePrimary,
		ItemizedReactionLabels:      dom.ItemizedLabels,
		CommentCountTexts:           dom.CommentTexts,
		ShareCountTexts:             dom.ShareTexts,
		FullText:                    dom.FullText,
	}, nil
}

func (b *BrowserHarvester) ensureBrowser() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser != nil {
		return b.browser, nil
	}

	launch := launcher.New().Headless(b.cfg.Headless)
	if b.cfg.Bin != "" {
		launch = launch.Bin(b.cfg.Bin)
	}
	controlURL, err := launch.Launch()
	if err != nil {
		return nil, err
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		launch.Cleanup()
		return nil, err
	}

	b.launch = launch
	b.browser = browser
	return browser, nil
}

// Close shuts the shared browser down. Safe to call without a prior harvest.
func (b *BrowserHarvester) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	if b.launch != nil {
		b.launch.Cleanup()
	}
	b.browser = nil
	b.launch = nil
	return err
}
