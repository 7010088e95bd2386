// Package retrieval fetches contextual snippets from the retrieval service
// and folds them into the prompt handed to the model gateway.
package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const retrieveTimeout = 10 * time.Second

// Snippet is one ranked piece of reference text from the retrieval service.
type Snippet struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Retriever fetches the k most relevant snippets for a query. Results are
// advisory context, never mandatory.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]Snippet, error)
}

// Client talks to the retrieval service over HTTP. The service itself
// (embeddings, vector store) is a black box behind this interface.
type Client struct {
	url    string
	client *http.Client
}

func NewClient(url string) *Client {
	return &Client{
		url:    url,
		client: &http.Client{Timeout: retrieveTimeout},
	}
}

type retrieveRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

type retrieveResponse struct {
	Results []Snippet `json:"results"`
}

// Retrieve posts the query and returns the service's ranked snippets.
func (c *Client) Retrieve(ctx context.Context, query string, k int) ([]Snippet, error) {
	jsonBody, err := json.Marshal(retrieveRequest{Query: query, K: k})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling retrieval service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("retrieval service returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed retrieveResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return parsed.Results, nil
}
