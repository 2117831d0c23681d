package services

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// HNItem is one item from the HackerNews Firebase API.
type HNItem struct {
	ID      int64   `json:"id"`
	Type    string  `json:"type"`
	By      string  `json:"by"`
	Time    int64   `json:"time"`
	Text    string  `json:"text,omitempty"`
	Kids    []int64 `json:"kids,omitempty"`
	Parent  int64   `json:"parent,omitempty"`
	Title   string  `json:"title,omitempty"`
	URL     string  `json:"url,omitempty"`
	Deleted bool    `json:"deleted,omitempty"`
	Dead    bool    `json:"dead,omitempty"`
}

// HNComment is a top-level reply we consider a candidate job posting.
type HNComment struct {
	ID     int64  `json:"id"`
	Author string `json:"author"`
	Text   string `json:"text"`
	Time   int64  `json:"time"`
}

// HNThread is the story item heading a thread.
type HNThread struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	Author       string `json:"author"`
	Time         int64  `json:"time"`
	URL          string `json:"url,omitempty"`
	CommentCount int    `json:"comment_count"`
}

// HiringThread is one thread from the whoishiring account, categorized by
// its title.
type HiringThread struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	CreatedAt   string `json:"created_at"`
	Points      int    `json:"points"`
	NumComments int    `json:"num_comments"`
	Type        string `json:"type"` // hiring, freelance, seeking, other
}

const commentFetchParallelism = 10

// HackerNewsService talks to the HackerNews Firebase API and the Algolia
// search API. Stateless; persistence lives in ThreadService.
type HackerNewsService struct {
	baseURL        string
	algoliaBaseURL string
	httpClient     *http.Client
}

func NewHackerNewsService(baseURL, algoliaBaseURL string) *HackerNewsService {
	return &HackerNewsService{
		baseURL:        strings.TrimRight(baseURL, "/"),
		algoliaBaseURL: strings.TrimRight(algoliaBaseURL, "/"),
		httpClient:     &http.Client{Timeout: 20 * time.Second},
	}
}

func (s *HackerNewsService) FetchItem(ctx context.Context, id int64) (*HNItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/item/%d.json", s.baseURL, id), nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("hackernews API error: %d", resp.StatusCode)
	}

	var item HNItem
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return nil, err
	}
	if item.ID == 0 {
		// The API returns literal null for unknown ids.
		return nil, nil
	}
	return &item, nil
}

// FetchThread pulls a story and its top-level comments, fetching comments in
// parallel but preserving the API's kid order. Deleted, dead and non-comment
// kids are dropped.
func (s *HackerNewsService) FetchThread(ctx context.Context, threadID int64) (*HNThread, []HNComment, error) {
	item, err := s.FetchItem(ctx, threadID)
	if err != nil {
		return nil, nil, err
	}
	if item == nil {
		return nil, nil, fmt.Errorf("thread %d not found", threadID)
	}

	comments, err := s.fetchTopLevelComments(ctx, item.Kids)
	if err != nil {
		return nil, nil, err
	}

	thread := &HNThread{
		ID:           item.ID,
		Title:        orDefault(item.Title, "No title"),
		Author:       orDefault(item.By, "unknown"),
		Time:         item.Time,
		URL:          item.URL,
		CommentCount: len(comments),
	}
	return thread, comments, nil
}

func (s *HackerNewsService) fetchTopLevelComments(ctx context.Context, ids []int64) ([]HNComment, error) {
	if len(ids) == 0 {
		return []HNComment{}, nil
	}

	items := make([]*HNItem, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(commentFetchParallelism)

	for i, id := range ids {
		g.Go(func() error {
			item, err := s.FetchItem(gctx, id)
			if err != nil {
				return err
			}
			items[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	comments := make([]HNComment, 0, len(items))
	for _, item := range items {
		if item == nil || item.Type != "comment" || item.Text == "" || item.Deleted || item.Dead {
			continue
		}
		comments = append(comments, HNComment{
			ID:     item.ID,
			Author: orDefault(item.By, "unknown"),
			Text:   html.UnescapeString(item.Text),
			Time:   item.Time,
		})
	}
	return comments, nil
}

// GetHiringThreads lists recent threads by the whoishiring account via the
// Algolia search API, newest first.
func (s *HackerNewsService) GetHiringThreads(ctx context.Context) ([]HiringThread, error) {
	params := url.Values{}
	params.Set("query", "")
	params.Set("tags", "story,author_whoishiring")
	params.Set("hitsPerPage", "20")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.algoliaBaseURL+"/search_by_date?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("algolia API request failed: %d", resp.StatusCode)
	}

	var payload struct {
		Hits []struct {
			ObjectID    string `json:"objectID"`
			Title       string `json:"title"`
			URL         string `json:"url"`
			CreatedAt   string `json:"created_at"`
			Points      int    `json:"points"`
			NumComments int    `json:"num_comments"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	threads := make([]HiringThread, 0, len(payload.Hits))
	for _, hit := range payload.Hits {
		threadURL := hit.URL
		if threadURL == "" {
			threadURL = "https://news.ycombinator.com/item?id=" + hit.ObjectID
		}
		threads = append(threads, HiringThread{
			ID:          hit.ObjectID,
			Title:       hit.Title,
			URL:         threadURL,
			CreatedAt:   hit.CreatedAt,
			Points:      hit.Points,
			NumComments: hit.NumComments,
			Type:        categorizeThreadTitle(hit.Title),
		})
	}
	return threads, nil
}

func categorizeThreadTitle(title string) string {
	lower := strings.ToLower(title)
	switch {
	case strings.Contains(lower, "who is hiring") || strings.Contains(lower, "who's hiring"):
		return "hiring"
	case strings.Contains(lower, "freelancer") || strings.Contains(lower, "seeking freelance"):
		return "freelance"
	case strings.Contains(lower, "wants to be hired") || strings.Contains(lower, "seeking work"):
		return "seeking"
	default:
		return "other"
	}
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
