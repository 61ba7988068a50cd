package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// Sentiment is one Fear & Greed index reading.
type Sentiment struct {
	Value          int    `json:"value"`
	Classification string `json:"classification"`
}

type fngResponse struct {
	Data []struct {
		Value          string `json:"value"`
		Classification string `json:"value_classification"`
	} `json:"data"`
}

func (f *Fetcher) fetchSentiment(ctx context.Context) (string, *Sentiment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.sentimentURL, nil)
	if err != nil {
		return "", nil, err
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("sentiment status %d", resp.StatusCode)
	}

	var body fngResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", nil, err
	}
	if len(body.Data) == 0 {
		return "", nil, fmt.Errorf("empty sentiment response")
	}

	value, err := strconv.Atoi(body.Data[0].Value)
	if err != nil {
		return "", nil, fmt.Errorf("bad sentiment value %q", body.Data[0].Value)
	}

	s := &Sentiment{Value: value, Classification: body.Data[0].Classification}
	text := fmt.Sprintf("Fear & Greed index: %d (%s)", s.Value, s.Classification)
	return text, s, nil
}
