package research

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
)

const (
	defaultWikipediaEndpoint = "https://en.wikipedia.org/w/api.php"
	// Intro extracts can run long for well-covered figures; cap what we store.
	maxSummaryLen = 2000
)

// WikipediaSource researches a thinker name against the Wikipedia API: one
// search call to resolve the best page, one extract call for the intro text
// and thumbnail. A name with no page is a successful empty result, not an
// error.
type WikipediaSource struct {
	client    *http.Client
	endpoint  string
	userAgent string
}

// NewWikipediaSource creates a source. The user agent is required by the
// Wikimedia API etiquette; requests without one get throttled.
func NewWikipediaSource(userAgent string) *WikipediaSource {
	return &WikipediaSource{
		client:    &http.Client{Timeout: 15 * time.Second},
		endpoint:  defaultWikipediaEndpoint,
		userAgent: userAgent,
	}
}

// wikipediaKnowledge is the payload stored under the "wikipedia" key.
type wikipediaKnowledge struct {
	Title     string `json:"title"`
	Summary   string `json:"summary"`
	PageID    int64  `json:"page_id"`
	ImageURL  string `json:"image_url,omitempty"`
	FetchedAt string `json:"fetched_at"`
}

// Research implements Source.
func (s *WikipediaSource) Research(ctx context.Context, name string) (string, error) {
	pageID, title, err := s.search(ctx, name)
	if err != nil {
		return "", err
	}
	if pageID == 0 {
		// Nothing findable; complete with an empty payload so we do not
		// re-query every read.
		return "{}", nil
	}

	summary, imageURL, err := s.extract(ctx, pageID)
	if err != nil {
		return "", err
	}

	payload := map[string]wikipediaKnowledge{
		"wikipedia": {
			Title:     title,
			Summary:   summary,
			PageID:    pageID,
			ImageURL:  imageURL,
			FetchedAt: time.Now().UTC().Format(time.RFC3339),
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode research payload")
	}
	return string(raw), nil
}

func (s *WikipediaSource) search(ctx context.Context, name string) (int64, string, error) {
	params := url.Values{
		"action":   {"query"},
		"list":     {"search"},
		"srsearch": {name},
		"srlimit":  {"1"},
		"format":   {"json"},
	}
	var resp struct {
		Query struct {
			Search []struct {
				PageID int64  `json:"pageid"`
				Title  string `json:"title"`
			} `json:"search"`
		} `json:"query"`
	}
	if err := s.get(ctx, params, &resp); err != nil {
		return 0, "", errors.Wrapf(err, "wikipedia search failed for %q", name)
	}
	if len(resp.Query.Search) == 0 {
		return 0, "", nil
	}
	hit := resp.Query.Search[0]
	return hit.PageID, hit.Title, nil
}

func (s *WikipediaSource) extract(ctx context.Context, pageID int64) (string, string, error) {
	params := url.Values{
		"action":      {"query"},
		"pageids":     {fmt.Sprintf("%d", pageID)},
		"prop":        {"extracts|pageimages"},
		"exintro":     {"1"},
		"explaintext": {"1"},
		"piprop":      {"thumbnail"},
		"pithumbsize": {"300"},
		"format":      {"json"},
	}
	var resp struct {
		Query struct {
			Pages map[string]struct {
				Extract   string `json:"extract"`
				Thumbnail struct {
					Source string `json:"source"`
				} `json:"thumbnail"`
			} `json:"pages"`
		} `json:"query"`
	}
	if err := s.get(ctx, params, &resp); err != nil {
		return "", "", errors.Wrapf(err, "wikipedia extract failed for page %d", pageID)
	}
	for _, page := range resp.Query.Pages {
		return truncateAtRune(page.Extract, maxSummaryLen), page.Thumbnail.Source, nil
	}
	return "", "", nil
}

// truncateAtRune caps s at max bytes without splitting a UTF-8 sequence.
func truncateAtRune(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func (s *WikipediaSource) get(ctx context.Context, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
