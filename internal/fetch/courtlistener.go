package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"

	"lexserve/internal/citation"
	"lexserve/internal/documents"
	"lexserve/internal/observability"
)

// CourtListenerFetcher retrieves Supreme Court opinions from the
// CourtListener REST API. It is authenticated and rate-limited to one
// request per 100ms.
type CourtListenerFetcher struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rateLimiter
	conv    *md.Converter
}

func NewCourtListenerFetcher(baseURL, token string, httpClient *http.Client) *CourtListenerFetcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &CourtListenerFetcher{
		baseURL: baseURL,
		token:   token,
		http:    httpClient,
		limiter: newRateLimiter(100 * time.Millisecond),
		conv:    md.NewConverter("", true, nil),
	}
}

func (f *CourtListenerFetcher) RateLimit() time.Duration { return 100 * time.Millisecond }

type clusterListResponse struct {
	Results []struct {
		ID int `json:"id"`
	} `json:"results"`
	Next string `json:"next"`
}

// ListIDs pages through CourtListener's opinion-cluster endpoint,
// filtered to clusters decided inside [start, end] and ordered by filing
// date ascending so resumption is deterministic.
func (f *CourtListenerFetcher) ListIDs(ctx context.Context, start, end time.Time) ([]string, error) {
	url := f.baseURL + "/api/rest/v4/clusters/?order_by=date_filed"
	if !start.IsZero() {
		url += "&date_filed__gte=" + start.Format("2006-01-02")
	}
	if !end.IsZero() {
		url += "&date_filed__lte=" + end.Format("2006-01-02")
	}

	var ids []string
	for url != "" {
		f.limiter.Wait()
		var page clusterListResponse
		if err := f.getJSON(ctx, url, &page); err != nil {
			return nil, err
		}
		for _, r := range page.Results {
			ids = append(ids, fmt.Sprintf("%d", r.ID))
		}
		url = page.Next
	}
	return ids, nil
}

type clusterDetail struct {
	ID              int    `json:"id"`
	CaseName        string `json:"case_name"`
	DateFiled       string `json:"date_filed"`
	DocketNumber    string `json:"docket_number"`
	AbsoluteURL     string `json:"absolute_url"`
	SubOpinions     []string `json:"sub_opinions"`
	Citations       []struct {
		Volume   int    `json:"volume"`
		Reporter string `json:"reporter"`
		Page     string `json:"page"`
		Type     int    `json:"type"` // CourtListener type==1 marks the official U.S. Reports citation
	} `json:"citations"`
}

type opinionDetail struct {
	HTML      string `json:"html"`
	PlainText string `json:"plain_text"`
	Type      string `json:"type"`
}

// Fetch retrieves a cluster and joins the text of every sub-opinion it
// contains, in the order CourtListener returns them, so that syllabus,
// majority, and any concurring/dissenting opinions are concatenated into
// a single document for the chunker to split back apart structurally.
func (f *CourtListenerFetcher) Fetch(ctx context.Context, id string) (documents.Document, error) {
	var cluster clusterDetail
	f.limiter.Wait()
	if err := f.getJSON(ctx, f.baseURL+"/api/rest/v4/clusters/"+id+"/", &cluster); err != nil {
		return documents.Document{}, err
	}

	var combined string
	for _, opURL := range cluster.SubOpinions {
		f.limiter.Wait()
		var op opinionDetail
		if err := f.getJSON(ctx, opURL, &op); err != nil {
			return documents.Document{}, err
		}
		text := op.PlainText
		if text == "" && op.HTML != "" {
			plain, err := f.conv.ConvertString(op.HTML)
			if err != nil {
				return documents.Document{}, fmt.Errorf("fetch: convert opinion html: %w", err)
			}
			text = plain
		}
		if combined != "" {
			combined += "\n\n"
		}
		combined += text
	}

	citeRecords := make([]citation.Record, 0, len(cluster.Citations))
	for _, c := range cluster.Citations {
		citeRecords = append(citeRecords, citation.Record{
			Volume:   c.Volume,
			Reporter: c.Reporter,
			Page:     c.Page,
			Year:     cluster.DateFiled,
			Primary:  c.Type == 1,
		})
	}
	bluebook := citation.Format(citeRecords)

	return documents.Document{
		ID:        id,
		Type:      documents.TypeOpinion,
		Title:     cluster.CaseName,
		Text:      combined,
		SourceURL: f.baseURL + cluster.AbsoluteURL,
		FetchedAt: time.Now(),
		Metadata: documents.OpinionMetadata{
			CaseName:        cluster.CaseName,
			DocketNumber:    cluster.DocketNumber,
			CourtListenerID: id,
			DecisionDate:    cluster.DateFiled,
			Citation:        bluebook,
		},
	}, nil
}

func (f *CourtListenerFetcher) getJSON(ctx context.Context, url string, out any) error {
	observability.LoggerWithTrace(ctx).Debug().Str("url", observability.RedactURL(url)).Msg("courtlistener request")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if f.token != "" {
		req.Header.Set("Authorization", "Token "+f.token)
	}
	resp, err := doWithBackoff(ctx, func() (*http.Response, error) { return f.http.Do(req) })
	if err != nil {
		return fmt.Errorf("fetch: courtlistener: %w", err)
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}
