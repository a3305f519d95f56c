package wikipedia

// MediaWiki action API response types (formatversion=2).

// SearchResponse is the response of action=query&list=search.
type SearchResponse struct {
	Query struct {
		Search []SearchHit `json:"search"`
	} `json:"query"`
	Error *APIError `json:"error,omitempty"`
}

// SearchHit is a single full-text search hit. Snippet is HTML.
type SearchHit struct {
	PageID  int    `json:"pageid"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// PageResponse is the response of action=query&prop=revisions|info.
type PageResponse struct {
	Query struct {
		Pages []PageInfo `json:"pages"`
	} `json:"query"`
	Error *APIError `json:"error,omitempty"`
}

// PageInfo is one page with its latest revision.
type PageInfo struct {
	PageID    int        `json:"pageid"`
	Title     string     `json:"title"`
	FullURL   string     `json:"fullurl"`
	Missing   bool       `json:"missing"`
	Invalid   bool       `json:"invalid"`
	Revisions []Revision `json:"revisions"`
}

// Revision holds the main slot of a page revision.
type Revision struct {
	Slots struct {
		Main struct {
			Content string `json:"content"`
		} `json:"main"`
	} `json:"slots"`
}

// APIError is the error object MediaWiki returns with HTTP 200.
type APIError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}
