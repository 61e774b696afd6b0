package bgm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
)

// SubjectsPageSize is the largest page the indices endpoint serves.
const SubjectsPageSize = 50

type IndexDetail struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Desc      string `json:"desc"`
	Total     int    `json:"total"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// SubjectStub is one entry of an index's subject list.
type SubjectStub struct {
	ID      int64  `json:"id"`
	Type    int    `json:"type"`
	Name    string `json:"name"`
	Date    string `json:"date"`
	Comment string `json:"comment"`
	AddedAt string `json:"added_at"`
}

type subjectsPage struct {
	Data   []SubjectStub `json:"data"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// Catalog reads indices and subjects from the catalog JSON API.
type Catalog struct {
	httpClient *http.Client
	baseURL    string
	token      string
	userAgent  string
	retry      RetryPolicy
}

func NewCatalog(httpClient *http.Client, baseURL, token, userAgent string) *Catalog {
	return &Catalog{
		httpClient: httpClient,
		baseURL:    baseURL,
		token:      token,
		userAgent:  userAgent,
		retry:      DefaultRetryPolicy(),
	}
}

// WithRetryPolicy replaces the retry policy, mostly for tests.
func (c *Catalog) WithRetryPolicy(policy RetryPolicy) *Catalog {
	c.retry = policy
	return c
}

func (c *Catalog) header() http.Header {
	header := http.Header{}
	header.Set("User-Agent", c.userAgent)
	header.Set("Accept", "application/json")
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	return header
}

// getJSON fetches url and decodes it into target with retries. A body
// that does not decode counts as a transient failure.
func (c *Catalog) getJSON(ctx context.Context, what, url string, target func(data []byte) error) error {
	return c.retry.Do(ctx, what, func(ctx context.Context) error {
		data, err := get(ctx, c.httpClient, url, c.header())
		if err != nil {
			return err
		}
		if err := target(data); err != nil {
			return &FetchError{URL: url, Transient: true, Err: fmt.Errorf("malformed JSON: %w", err)}
		}
		return nil
	})
}

// IndexDetail returns nil without an error when the body is null or an
// empty object.
func (c *Catalog) IndexDetail(ctx context.Context, indexID string) (*IndexDetail, error) {
	endpoint := fmt.Sprintf("%s/v0/indices/%s", c.baseURL, url.PathEscape(indexID))
	slog.Debug("Fetching index detail", "index_id", indexID)

	var detail *IndexDetail
	err := c.getJSON(ctx, "index "+indexID, endpoint, func(data []byte) error {
		var object map[string]json.RawMessage
		if err := json.Unmarshal(data, &object); err != nil {
			return err
		}
		if len(object) == 0 {
			detail = nil
			return nil
		}
		detail = &IndexDetail{}
		return json.Unmarshal(data, detail)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch index %s: %w", indexID, err)
	}
	if detail == nil {
		slog.Warn("Index detail is empty", "index_id", indexID)
	}

	return detail, nil
}

// IndexSubjects pages through the subjects of an index. When a page cannot
// be fetched the stubs collected so far are returned together with the
// error.
func (c *Catalog) IndexSubjects(ctx context.Context, indexID string) ([]SubjectStub, error) {
	slog.Debug("Fetching index subjects", "index_id", indexID)

	var stubs []SubjectStub
	for offset := 0; ; offset += SubjectsPageSize {
		query := url.Values{}
		query.Set("offset", strconv.Itoa(offset))
		query.Set("limit", strconv.Itoa(SubjectsPageSize))
		endpoint := fmt.Sprintf("%s/v0/indices/%s/subjects?%s", c.baseURL, url.PathEscape(indexID), query.Encode())

		var page subjectsPage
		err := c.getJSON(ctx, fmt.Sprintf("index %s subjects@%d", indexID, offset), endpoint, func(data []byte) error {
			page = subjectsPage{}
			return json.Unmarshal(data, &page)
		})
		if err != nil {
			return stubs, fmt.Errorf("failed to fetch subjects of index %s at offset %d: %w", indexID, offset, err)
		}

		stubs = append(stubs, page.Data...)

		if len(page.Data) < SubjectsPageSize {
			return stubs, nil
		}
	}
}

// SubjectDetail returns the subject record exactly as served. The body
// must be a JSON object.
func (c *Catalog) SubjectDetail(ctx context.Context, subjectID int64) (json.RawMessage, error) {
	id := strconv.FormatInt(subjectID, 10)
	endpoint := fmt.Sprintf("%s/v0/subjects/%s", c.baseURL, id)
	slog.Debug("Fetching subject detail", "subject_id", subjectID)

	var subject json.RawMessage
	err := c.getJSON(ctx, "subject "+id, endpoint, func(data []byte) error {
		trimmed := bytes.TrimSpace(data)
		var object map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &object); err != nil {
			return err
		}
		if object == nil {
			return fmt.Errorf("subject body is null")
		}
		subject = json.RawMessage(trimmed)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch subject %d: %w", subjectID, err)
	}

	return subject, nil
}
