package publisher

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"sjsage522/productharvester/helpers"
	"sjsage522/productharvester/internal/crawler"
	"sjsage522/productharvester/logger"
	"sjsage522/productharvester/pkg/errors"
)

const provider = "content-api"

// urlKeys are tried in order on every catalog entry
var urlKeys = []string{"product_url", "product_link", "url"}

var (
	_ CatalogReader   = (*ContentAPI)(nil)
	_ RecordPublisher = (*ContentAPI)(nil)
)

// ContentAPI talks to the content site's product endpoints:
// GET <base>/list and POST <base>/add-item
type ContentAPI struct {
	base      string
	client    *http.Client
	userAgent string
	log       *logger.Logger
}

// NewContentAPI creates a client for the API rooted at base
func NewContentAPI(base string, client *http.Client, userAgent string) *ContentAPI {
	if client == nil {
		client = helpers.NewClient(helpers.DefaultTimeout)
	}
	base = strings.TrimRight(base, "/")
	return &ContentAPI{
		base:      base,
		client:    client,
		userAgent: userAgent,
		log:       logger.ForPublisher().WithField("api_base", base),
	}
}

// addItemRequest is the body of POST /add-item
type addItemRequest struct {
	Title       string `json:"title"`
	Price       int64  `json:"price"`
	ImageURL    string `json:"image_url"`
	ProductURL  string `json:"product_url"`
	ProductLink string `json:"product_link"`

	ImageContent string `json:"image_content,omitempty"`
	ImageName    string `json:"image_name,omitempty"`
}

// ListPublished returns the product URL of every catalog entry.
// The endpoint answers either a JSON array or an object with an "items" array;
// any other shape is an error so the caller knows the seed is unusable.
func (a *ContentAPI) ListPublished(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.base+"/list", nil)
	if err != nil {
		return nil, errors.NewPublisher(provider, "failed to create request", err)
	}
	req.Header.Set("User-Agent", a.userAgent)
	req.Header.Set("Accept", "application/json")

	payload, err := a.do(req)
	if err != nil {
		return nil, err
	}

	var entries []any
	switch v := payload.(type) {
	case []any:
		entries = v
	case map[string]any:
		items, ok := v["items"].([]any)
		if !ok {
			return nil, errors.NewPublisher(provider, "list response has no items array", nil)
		}
		entries = items
	default:
		return nil, errors.NewPublisher(provider, fmt.Sprintf("unrecognized list response: %T", payload), nil)
	}

	var urls []string
	for _, entry := range entries {
		fields, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		for _, key := range urlKeys {
			if s, ok := fields[key].(string); ok {
				urls = append(urls, s)
				break
			}
		}
	}

	a.log.Info().Int("count", len(urls)).Msg("Loaded published product URLs")
	return urls, nil
}

// Publish creates a remote record for rec and returns the created id.
// Transport errors, non-2xx answers, non-JSON bodies and a missing id all fail.
func (a *ContentAPI) Publish(ctx context.Context, rec crawler.ProductRecord) (string, error) {
	body := addItemRequest{
		Title:       rec.Title,
		Price:       rec.Price,
		ImageURL:    rec.ImageURL,
		ProductURL:  rec.ProductURL,
		ProductLink: rec.ProductURL,
		ImageName:   rec.ImageName,
	}
	if len(rec.ImageContent) > 0 {
		body.ImageContent = base64.StdEncoding.EncodeToString(rec.ImageContent)
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", errors.NewPublisher(provider, "failed to encode record", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.base+"/add-item", bytes.NewReader(data))
	if err != nil {
		return "", errors.NewPublisher(provider, "failed to create request", err)
	}
	req.Header.Set("User-Agent", a.userAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	payload, err := a.do(req)
	if err != nil {
		return "", err
	}

	fields, ok := payload.(map[string]any)
	if !ok {
		return "", errors.NewPublisher(provider, "response is not a JSON object", nil)
	}
	id := idString(fields["id"])
	if id == "" {
		return "", errors.NewPublisher(provider, "response has no id", nil)
	}
	return id, nil
}

// do sends req and decodes the JSON answer
func (a *ContentAPI) do(req *http.Request) (any, error) {
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, errors.NewNetwork(provider, req.Method+" "+req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewNetwork(provider, "failed to read response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.NewPublisher(provider,
			fmt.Sprintf("%s %s unexpected status code: %d (%s)", req.Method, req.URL.Path, resp.StatusCode, helpers.Truncate(string(raw), 200)), nil)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, errors.NewPublisher(provider, "response is not JSON: "+helpers.Truncate(string(raw), 200), err)
	}
	return payload, nil
}

// idString accepts numeric and non-empty string ids
func idString(v any) string {
	switch id := v.(type) {
	case json.Number:
		return id.String()
	case string:
		return strings.TrimSpace(id)
	default:
		return ""
	}
}
