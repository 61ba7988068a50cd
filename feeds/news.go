package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

type newsResponse struct {
	Results []struct {
		Title       string `json:"title"`
		PublishedAt string `json:"published_at"`
		Source      struct {
			Title string `json:"title"`
		} `json:"source"`
	} `json:"results"`
}

// fetchNews pulls recent headlines filtered to the active symbols. Without
// an API key the source is skipped.
func (f *Fetcher) fetchNews(ctx context.Context, symbols []string) (string, error) {
	if f.cryptoPanicKey == "" {
		return "", fmt.Errorf("no news API key configured")
	}

	q := url.Values{}
	q.Set("auth_token", f.cryptoPanicKey)
	q.Set("kind", "news")
	q.Set("public", "true")
	if len(symbols) > 0 {
		// The API caps the currencies filter at 50 entries.
		n := len(symbols)
		if n > 50 {
			n = 50
		}
		q.Set("currencies", strings.Join(symbols[:n], ","))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.newsURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("news status %d", resp.StatusCode)
	}

	var body newsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if len(body.Results) == 0 {
		return "No recent news.", nil
	}

	var sb strings.Builder
	sb.WriteString("Recent headlines:\n")
	for i, post := range body.Results {
		if i >= 10 {
			break
		}
		fmt.Fprintf(&sb, "- [%s] %s\n", post.Source.Title, post.Title)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}
