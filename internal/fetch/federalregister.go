package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"lexserve/internal/documents"
	"lexserve/internal/observability"
)

// FederalRegisterFetcher retrieves presidential Executive Orders from the
// Federal Register's public, unauthenticated REST API. It is rate limited
// to one request per 1.1 seconds to stay under the published courtesy
// limit.
type FederalRegisterFetcher struct {
	baseURL string
	http    *http.Client
	limiter *rateLimiter
}

func NewFederalRegisterFetcher(baseURL string, httpClient *http.Client) *FederalRegisterFetcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &FederalRegisterFetcher{
		baseURL: baseURL,
		http:    httpClient,
		limiter: newRateLimiter(1100 * time.Millisecond),
	}
}

func (f *FederalRegisterFetcher) RateLimit() time.Duration { return 1100 * time.Millisecond }

type documentListResponse struct {
	Results []struct {
		DocumentNumber string `json:"document_number"`
	} `json:"results"`
	NextPageURL string `json:"next_page_url"`
}

// ListIDs pages through the Federal Register's documents endpoint
// filtered to presidential document type "executive_order", oldest first
// so resumption is deterministic.
func (f *FederalRegisterFetcher) ListIDs(ctx context.Context, start, end time.Time) ([]string, error) {
	url := f.baseURL + "/api/v1/documents.json?conditions[type][]=PRESDOCU&conditions[presidential_document_type][]=executive_order&order=oldest"
	if !start.IsZero() {
		url += "&conditions[publication_date][gte]=" + start.Format("2006-01-02")
	}
	if !end.IsZero() {
		url += "&conditions[publication_date][lte]=" + end.Format("2006-01-02")
	}

	var ids []string
	for url != "" {
		f.limiter.Wait()
		var page documentListResponse
		if err := f.getJSON(ctx, url, &page); err != nil {
			return nil, err
		}
		for _, r := range page.Results {
			ids = append(ids, r.DocumentNumber)
		}
		url = page.NextPageURL
	}
	return ids, nil
}

type documentDetail struct {
	DocumentNumber       string `json:"document_number"`
	Title                string `json:"title"`
	ExecutiveOrderNumber string `json:"executive_order_number"`
	SigningDate          string `json:"signing_date"`
	PublicationDate      string `json:"publication_date"`
	BodyHTMLURL          string `json:"body_html_url"`
	RawTextURL           string `json:"raw_text_url"`
	HTMLURL              string `json:"html_url"`
	President            struct {
		Name string `json:"name"`
	} `json:"president"`
	Agencies []struct {
		Name string `json:"name"`
	} `json:"agencies"`
}

// Fetch retrieves one executive order's metadata and raw text.
func (f *FederalRegisterFetcher) Fetch(ctx context.Context, id string) (documents.Document, error) {
	var detail documentDetail
	f.limiter.Wait()
	if err := f.getJSON(ctx, f.baseURL+"/api/v1/documents/"+id+".json", &detail); err != nil {
		return documents.Document{}, err
	}

	textURL := detail.RawTextURL
	if textURL == "" {
		textURL = detail.BodyHTMLURL
	}
	f.limiter.Wait()
	text, err := f.getText(ctx, textURL)
	if err != nil {
		return documents.Document{}, err
	}

	agencies := make([]string, 0, len(detail.Agencies))
	for _, a := range detail.Agencies {
		agencies = append(agencies, a.Name)
	}

	return documents.Document{
		ID:        id,
		Type:      documents.TypeOrder,
		Title:     detail.Title,
		Text:      text,
		SourceURL: detail.HTMLURL,
		FetchedAt: time.Now(),
		Metadata: documents.OrderMetadata{
			DocumentNumber:  detail.DocumentNumber,
			ExecutiveOrder:  detail.ExecutiveOrderNumber,
			Title:           detail.Title,
			President:       detail.President.Name,
			SigningDate:     detail.SigningDate,
			PublicationDate: detail.PublicationDate,
			Agencies:        agencies,
		},
	}, nil
}

func (f *FederalRegisterFetcher) getJSON(ctx context.Context, url string, out any) error {
	observability.LoggerWithTrace(ctx).Debug().Str("url", observability.RedactURL(url)).Msg("federal register request")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := doWithBackoff(ctx, func() (*http.Response, error) { return f.http.Do(req) })
	if err != nil {
		return fmt.Errorf("fetch: federal register: %w", err)
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

func (f *FederalRegisterFetcher) getText(ctx context.Context, url string) (string, error) {
	observability.LoggerWithTrace(ctx).Debug().Str("url", observability.RedactURL(url)).Msg("federal register text request")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := doWithBackoff(ctx, func() (*http.Response, error) { return f.http.Do(req) })
	if err != nil {
		return "", fmt.Errorf("fetch: federal register text: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("fetch: federal register text: read body: %w", err)
	}
	return string(body), nil
}
