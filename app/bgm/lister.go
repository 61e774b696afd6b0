package bgm

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/width"

	"github.com/lysyi3m/season-rank/app/season"
)

const DefaultMaxPages = 200

// Matches "2024年1月番", "2024年1月", "2024年10月番（共42部）". Titles are
// width-folded first, so full-width digits and parentheses arrive as ASCII.
var seasonTitlePattern = regexp.MustCompile(`(\d{4})年(\d{1,2})月(?:番)?(?:[（(]共\d+部[）)])?`)

// Lister scrapes the paginated HTML listing of seasonal indices.
type Lister struct {
	httpClient *http.Client
	indexURL   string
	userAgent  string
	retry      RetryPolicy
	maxPages   int
}

func NewLister(httpClient *http.Client, indexURL, userAgent string) *Lister {
	return &Lister{
		httpClient: httpClient,
		indexURL:   indexURL,
		userAgent:  userAgent,
		retry:      DefaultRetryPolicy(),
		maxPages:   DefaultMaxPages,
	}
}

func (l *Lister) WithRetryPolicy(policy RetryPolicy) *Lister {
	l.retry = policy
	return l
}

func (l *Lister) header() http.Header {
	header := http.Header{}
	header.Set("User-Agent", l.userAgent)
	header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	header.Set("Accept-Language", "zh-CN,zh;q=0.8,en;q=0.6")
	return header
}

func (l *Lister) pageURL(page int) (string, error) {
	u, err := url.Parse(l.indexURL)
	if err != nil {
		return "", fmt.Errorf("invalid index URL %q: %w", l.indexURL, err)
	}
	query := u.Query()
	query.Set("page", strconv.Itoa(page))
	u.RawQuery = query.Encode()
	return u.String(), nil
}

// ListSeasons walks the listing from page 1 until no later page is linked.
// If a page keeps failing, pagination stops and the indices collected so
// far are returned along with the *FetchError.
func (l *Lister) ListSeasons(ctx context.Context) ([]season.Index, error) {
	slog.Info("Listing seasonal indices", "url", l.indexURL)

	var indices []season.Index
	for page := 1; page <= l.maxPages; page++ {
		pageURL, err := l.pageURL(page)
		if err != nil {
			return indices, err
		}

		var body []byte
		err = l.retry.Do(ctx, fmt.Sprintf("listing page %d", page), func(ctx context.Context) error {
			data, err := get(ctx, l.httpClient, pageURL, l.header())
			if err != nil {
				return err
			}
			body = data
			return nil
		})
		if err != nil {
			slog.Error("Listing page unavailable, stopping pagination", "page", page, "collected", len(indices), "error", err)
			return indices, err
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			slog.Error("Listing page unparseable, stopping pagination", "page", page, "error", err)
			return indices, fmt.Errorf("failed to parse listing page %d: %w", page, err)
		}

		pageIndices := ParseListingPage(doc)
		slog.Info("Listing page parsed", "page", page, "seasons", len(pageIndices))
		indices = append(indices, pageIndices...)

		if !HasNextPage(doc) {
			slog.Debug("Reached last listing page", "page", page)
			break
		}
	}

	slog.Info("Listing complete", "seasons", len(indices))
	return indices, nil
}

// ParseListingPage extracts season indices from one listing page. Entries
// whose title is not a season title are skipped.
func ParseListingPage(doc *goquery.Document) []season.Index {
	var indices []season.Index

	doc.Find(".line_list li").Each(func(_ int, item *goquery.Selection) {
		link := item.Find("a").First()
		if link.Length() == 0 {
			return
		}

		href, ok := link.Attr("href")
		if !ok || !strings.Contains(href, "/index/") {
			return
		}

		title := strings.TrimSpace(link.Text())
		if title == "" {
			return
		}

		idx, ok := ParseSeasonTitle(title)
		if !ok {
			slog.Debug("Skipping non-season entry", "title", title)
			return
		}

		idx.ID = path.Base(strings.TrimRight(strings.SplitN(href, "?", 2)[0], "/"))
		if idx.ID == "" || idx.ID == "." || idx.ID == "/" {
			return
		}

		indices = append(indices, idx)
	})

	return indices
}

// ParseSeasonTitle reads year and month from a listing title. The returned
// Index has no ID.
func ParseSeasonTitle(title string) (season.Index, bool) {
	match := seasonTitlePattern.FindStringSubmatch(width.Fold.String(title))
	if match == nil {
		return season.Index{}, false
	}

	year, err := strconv.Atoi(match[1])
	if err != nil {
		return season.Index{}, false
	}
	month, err := strconv.Atoi(match[2])
	if err != nil || month < 1 || month > 12 {
		return season.Index{}, false
	}

	return season.Index{Year: year, Month: month, Title: title}, true
}

// HasNextPage reports whether the pagination block links a page numbered
// higher than the current one.
func HasNextPage(doc *goquery.Document) bool {
	pagination := doc.Find("div.page_inner").First()
	if pagination.Length() == 0 {
		return false
	}

	current, err := strconv.Atoi(strings.TrimSpace(pagination.Find("strong.p_cur").First().Text()))
	if err != nil {
		return false
	}

	found := false
	pagination.Find("a.p").EachWithBreak(func(_ int, link *goquery.Selection) bool {
		number, err := strconv.Atoi(strings.TrimSpace(link.Text()))
		if err == nil && number > current {
			found = true
			return false
		}
		return true
	})

	return found
}
