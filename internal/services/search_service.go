package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/justsurfingit/jobseekr/internal/models"
	"github.com/justsurfingit/jobseekr/internal/utils"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	// The search API caps results per call well below our batch size, so one
	// logical page is assembled from several parallel sub-calls.
	searchAPIPageSize = 10

	// How many pages past the starting one we will try while hunting for
	// enough new (non-duplicate) items.
	maxExtraPages = 5
)

// SearchBatch is the outcome of one duplicate-suppressed batch collection.
type SearchBatch struct {
	Items        []utils.SearchItem
	TotalResults int
	// FinalPage is the last logical page fetched, persisted by the caller as
	// the session's resumable cursor.
	FinalPage int
}

// SearchService queries the Google Custom Search API for job postings, with
// per-user duplicate suppression against already-processed URLs.
type SearchService struct {
	apiKey     string
	engineID   string
	baseURL    string
	httpClient *http.Client
	db         *gorm.DB
}

func NewSearchService(db *gorm.DB, apiKey, engineID, baseURL string) *SearchService {
	return &SearchService{
		apiKey:     apiKey,
		engineID:   engineID,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 20 * time.Second},
		db:         db,
	}
}

// FetchNewJobsWithDuplicateHandling collects up to targetBatchSize items the
// user has not seen before, walking logical pages from startPage. It stops on
// reaching the target, a short page (end of results), or the extra-page cap.
func (s *SearchService) FetchNewJobsWithDuplicateHandling(ctx context.Context, query, userID string, startPage, targetBatchSize int) (*SearchBatch, error) {
	if startPage < 1 {
		startPage = 1
	}
	if targetBatchSize < 1 {
		targetBatchSize = 1
	}

	seen, err := s.seenURLs(userID)
	if err != nil {
		return nil, fmt.Errorf("loading processed URLs: %w", err)
	}

	var collected []utils.SearchItem
	totalResults := 0
	page := startPage
	finalPage := startPage

	for pagesTried := 0; ; pagesTried++ {
		items, total, err := s.fetchLogicalPage(ctx, query, page, targetBatchSize)
		if err != nil {
			return nil, err
		}
		if total > 0 {
			totalResults = total
		}
		finalPage = page
		shortPage := len(items) < targetBatchSize

		for _, item := range items {
			if item.Link == "" || seen[item.Link] {
				continue
			}
			seen[item.Link] = true // also dedupes within the batch
			collected = append(collected, item)
			if len(collected) >= targetBatchSize {
				break
			}
		}

		if len(collected) >= targetBatchSize || shortPage || pagesTried >= maxExtraPages {
			break
		}
		page++
	}

	log.Printf("Search for %q: %d new items (target %d), stopped at page %d of ~%d results",
		query, len(collected), targetBatchSize, finalPage, totalResults)

	return &SearchBatch{Items: collected, TotalResults: totalResults, FinalPage: finalPage}, nil
}

// fetchLogicalPage assembles one page of pageSize results from the parallel
// sub-calls the API's per-call cap forces on us, preserving rank order.
func (s *SearchService) fetchLogicalPage(ctx context.Context, query string, page, pageSize int) ([]utils.SearchItem, int, error) {
	subCalls := (pageSize + searchAPIPageSize - 1) / searchAPIPageSize
	results := make([][]utils.SearchItem, subCalls)
	totals := make([]int, subCalls)

	g, gctx := errgroup.WithContext(ctx)
	for i := range subCalls {
		start := (page-1)*pageSize + i*searchAPIPageSize + 1
		g.Go(func() error {
			items, total, err := s.searchCall(gctx, query, start)
			if err != nil {
				return err
			}
			results[i] = items
			totals[i] = total
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	var merged []utils.SearchItem
	total := 0
	for i, items := range results {
		merged = append(merged, items...)
		if totals[i] > 0 {
			total = totals[i]
		}
	}
	return merged, total, nil
}

func (s *SearchService) searchCall(ctx context.Context, query string, start int) ([]utils.SearchItem, int, error) {
	params := url.Values{}
	params.Set("key", s.apiKey)
	params.Set("cx", s.engineID)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(searchAPIPageSize))
	params.Set("start", strconv.Itoa(start))
	params.Set("dateRestrict", "d3")
	params.Set("sort", "date")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, 0, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("search API error: %d %s", resp.StatusCode, resp.Status)
	}

	var payload struct {
		Items             []utils.SearchItem `json:"items"`
		SearchInformation struct {
			TotalResults string `json:"totalResults"`
		} `json:"searchInformation"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, 0, err
	}

	total, _ := strconv.Atoi(payload.SearchInformation.TotalResults)
	return payload.Items, total, nil
}

func (s *SearchService) seenURLs(userID string) (map[string]bool, error) {
	var urls []string
	if err := s.db.Model(&models.ProcessedJob{}).
		Where("user_id = ?", userID).
		Pluck("url", &urls).Error; err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(urls))
	for _, u := range urls {
		seen[u] = true
	}
	return seen, nil
}
