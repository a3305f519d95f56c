package wikipedia

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/sydlexius/linernotes/internal/provider"
	"github.com/sydlexius/linernotes/internal/version"
)

const defaultLanguage = "en"

// Adapter implements provider.Encyclopedia for Wikipedia via the MediaWiki action API.
type Adapter struct {
	transport *provider.Transport
	logger    *slog.Logger
	endpoint  string
}

// New creates a Wikipedia adapter for the given language edition ("en" when empty).
func New(limiter *provider.RateLimiterMap, logger *slog.Logger, language string) *Adapter {
	if language == "" {
		language = defaultLanguage
	}
	return NewWithEndpoint(limiter, logger, "https://"+language+".wikipedia.org/w/api.php")
}

// NewWithEndpoint creates a Wikipedia adapter with a custom api.php endpoint (for testing).
func NewWithEndpoint(limiter *provider.RateLimiterMap, logger *slog.Logger, endpoint string) *Adapter {
	logger = logger.With(slog.String("provider", "wikipedia"))
	return &Adapter{
		transport: provider.NewTransport(provider.NameWikipedia, limiter, logger, userAgent()),
		logger:    logger,
		endpoint:  endpoint,
	}
}

// SetRetryPolicy overrides the retry policy used for every call.
func (a *Adapter) SetRetryPolicy(p provider.RetryPolicy) { a.transport.Policy = p }

// Name returns the provider name.
func (a *Adapter) Name() provider.ProviderName { return provider.NameWikipedia }

// RequiresAuth returns whether this provider needs an API key.
func (a *Adapter) RequiresAuth() bool { return false }

// TestConnection verifies connectivity to the MediaWiki API.
func (a *Adapter) TestConnection(ctx context.Context) error {
	params := url.Values{
		"action":        {"query"},
		"meta":          {"siteinfo"},
		"format":        {"json"},
		"formatversion": {"2"},
	}
	_, err := a.transport.Get(ctx, a.endpoint+"?"+params.Encode(), "siteinfo")
	return err
}

// SearchPages runs a full-text search. Snippets are returned as plain text.
func (a *Adapter) SearchPages(ctx context.Context, query string, limit int) ([]provider.PageSearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	params := url.Values{
		"action":        {"query"},
		"list":          {"search"},
		"srsearch":      {query},
		"srlimit":       {strconv.Itoa(limit)},
		"srprop":        {"snippet"},
		"format":        {"json"},
		"formatversion": {"2"},
	}
	var resp SearchResponse
	if err := a.getJSON(ctx, params, query, &resp); err != nil {
		return nil, err
	}
	if err := a.apiError(resp.Error, query); err != nil {
		return nil, err
	}

	results := make([]provider.PageSearchResult, 0, len(resp.Query.Search))
	for _, hit := range resp.Query.Search {
		results = append(results, provider.PageSearchResult{
			PageID:  hit.PageID,
			Title:   hit.Title,
			Snippet: StripHTML(hit.Snippet),
		})
	}
	return results, nil
}

// FetchPage fetches the current wikitext of a page.
func (a *Adapter) FetchPage(ctx context.Context, pageID int) (*provider.Page, error) {
	id := strconv.Itoa(pageID)
	params := url.Values{
		"action":        {"query"},
		"prop":          {"revisions|info"},
		"pageids":       {id},
		"rvprop":        {"content"},
		"rvslots":       {"main"},
		"inprop":        {"url"},
		"format":        {"json"},
		"formatversion": {"2"},
	}
	var resp PageResponse
	if err := a.getJSON(ctx, params, id, &resp); err != nil {
		return nil, err
	}
	if err := a.apiError(resp.Error, id); err != nil {
		return nil, err
	}

	if len(resp.Query.Pages) == 0 {
		return nil, &provider.ErrNotFound{Provider: provider.NameWikipedia, ID: id}
	}
	p := resp.Query.Pages[0]
	if p.Missing || p.Invalid || len(p.Revisions) == 0 {
		return nil, &provider.ErrNotFound{Provider: provider.NameWikipedia, ID: id}
	}

	page := &provider.Page{
		PageID: p.PageID,
		Title:  p.Title,
		URL:    p.FullURL,
		Markup: p.Revisions[0].Slots.Main.Content,
	}
	if page.URL == "" {
		page.URL = a.pageURL(p.Title)
	}
	return page, nil
}

func (a *Adapter) getJSON(ctx context.Context, params url.Values, id string, v any) error {
	body, err := a.transport.Get(ctx, a.endpoint+"?"+params.Encode(), id)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &provider.ErrDecode{Provider: provider.NameWikipedia, Cause: err}
	}
	return nil
}

// apiError maps the in-band MediaWiki error object to the provider error set.
func (a *Adapter) apiError(e *APIError, id string) error {
	if e == nil {
		return nil
	}
	a.logger.Debug("api error", slog.String("code", e.Code), slog.String("info", e.Info))
	switch e.Code {
	case "ratelimited", "maxlag":
		return &provider.ErrRateLimited{Provider: provider.NameWikipedia}
	case "missingtitle", "nosuchpageid":
		return &provider.ErrNotFound{Provider: provider.NameWikipedia, ID: id}
	default:
		return &provider.ErrDecode{Provider: provider.NameWikipedia, Cause: fmt.Errorf("api error %s: %s", e.Code, e.Info)}
	}
}

// pageURL derives the canonical article URL from the endpoint host.
func (a *Adapter) pageURL(title string) string {
	u, err := url.Parse(a.endpoint)
	if err != nil {
		return ""
	}
	return u.Scheme + "://" + u.Host + "/wiki/" + url.PathEscape(strings.ReplaceAll(title, " ", "_"))
}

// StripHTML returns the text content of an HTML fragment with entities decoded.
// Search snippets wrap matches in <span class="searchmatch">.
func StripHTML(fragment string) string {
	z := html.NewTokenizer(strings.NewReader(fragment))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or malformed input: either way keep what was read.
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if string(name) == "br" {
				b.WriteByte(' ')
			}
		}
	}
}

func userAgent() string {
	return fmt.Sprintf("Linernotes/%s (https://github.com/sydlexius/linernotes)", version.Version)
}
