package catalog

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"swipe-match-backend/internal/models"
)

func sampleCandidates() []models.Candidate {
	return []models.Candidate{
		{ID: "pizza", PriceTier: 1, Categories: []models.Category{{Alias: "pizza", Title: "Pizza"}}, Fulfillment: []string{"pickup", "delivery"}},
		{ID: "sushi", PriceTier: 3, Categories: []models.Category{{Alias: "sushi", Title: "Sushi Bars"}}, Fulfillment: []string{"pickup"}},
		{ID: "tacos", PriceTier: 2, Categories: []models.Category{{Alias: "tacos", Title: "Mexican"}}, Fulfillment: []string{"delivery"}},
		{ID: "unknown", Categories: []models.Category{{Alias: "cafe", Title: "Cafe"}}},
	}
}

func ids(cs []models.Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name    string
		filters models.Filters
		want    []string
	}{
		{"no filters", models.Filters{}, []string{"pizza", "sushi", "tacos", "unknown"}},
		{"cuisine by alias", models.Filters{Cuisines: []string{"sushi"}}, []string{"sushi"}},
		{"cuisine by title", models.Filters{Cuisines: []string{"mexican"}}, []string{"tacos"}},
		{"cuisine case insensitive", models.Filters{Cuisines: []string{"PIZZA"}}, []string{"pizza"}},
		{"price excludes unknown tier", models.Filters{PriceRange: []int{1, 2}}, []string{"pizza", "tacos"}},
		{"delivery", models.Filters{FulfillmentType: models.FulfillmentDelivery}, []string{"pizza", "tacos"}},
		{"pickup", models.Filters{FulfillmentType: models.FulfillmentPickup}, []string{"pizza", "sushi"}},
		{"any fulfillment", models.Filters{FulfillmentType: models.FulfillmentAny}, []string{"pizza", "sushi", "tacos", "unknown"}},
		{"combined", models.Filters{Cuisines: []string{"pizza", "sushi"}, PriceRange: []int{3}}, []string{"sushi"}},
		{"nothing matches", models.Filters{Cuisines: []string{"ethiopian"}}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(Filter(sampleCandidates(), tt.filters))
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("Filter() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultFallback(t *testing.T) {
	pool := DefaultFallback()
	if len(pool) != 15 {
		t.Fatalf("got %d fallback candidates, want 15", len(pool))
	}
	seen := make(map[string]bool)
	for _, c := range pool {
		if seen[c.ID] {
			t.Errorf("duplicate fallback id %q", c.ID)
		}
		seen[c.ID] = true
		if c.DisplayName == "" || len(c.Categories) == 0 {
			t.Errorf("fallback candidate %q is incomplete: %+v", c.ID, c)
		}
		if c.PriceTier < 1 || c.PriceTier > 4 {
			t.Errorf("fallback candidate %q has price tier %d", c.ID, c.PriceTier)
		}
	}
}

func TestCacheTTL(t *testing.T) {
	c := NewCache(time.Minute, 10)
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Put("k", sampleCandidates())
	if got, ok := c.Get("k"); !ok || len(got) != 4 {
		t.Fatalf("Get() = %v, %v; want 4 candidates", got, ok)
	}

	now = now.Add(59 * time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Error("expected entry to be fresh before TTL")
	}

	now = now.Add(time.Second)
	if _, ok := c.Get("k"); ok {
		t.Error("expected entry to expire at TTL")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want expired entry evicted", c.Len())
	}
}

func TestCacheBounded(t *testing.T) {
	c := NewCache(time.Hour, 2)
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Put("a", nil)
	now = now.Add(time.Second)
	c.Put("b", nil)
	now = now.Add(time.Second)
	c.Put("c", nil)

	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
	if _, ok := c.Get("a"); ok {
		t.Error("expected oldest entry to be evicted")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("expected newest entry to be present")
	}
}

func TestCacheKeyCanonical(t *testing.T) {
	a := CacheKey(models.Filters{Cuisines: []string{"Sushi", "pizza"}, PriceRange: []int{2, 1}})
	b := CacheKey(models.Filters{Cuisines: []string{"pizza", "sushi"}, PriceRange: []int{1, 2}, FulfillmentType: models.FulfillmentAny})
	if a != b {
		t.Errorf("equivalent filters produced different keys: %s vs %s", a, b)
	}
	c := CacheKey(models.Filters{Cuisines: []string{"pizza"}})
	if a == c {
		t.Error("different filters produced the same key")
	}
}

type stubProvider struct {
	results []models.Candidate
	err     error
	calls   int
}

func (p *stubProvider) Search(ctx context.Context, f models.Filters) ([]models.Candidate, error) {
	p.calls++
	return p.results, p.err
}

func TestFetchCandidatesUsesProviderAndCache(t *testing.T) {
	provider := &stubProvider{results: sampleCandidates()}
	svc := NewService(provider, NewCache(time.Minute, 10), DefaultFallback(), rand.New(rand.NewSource(1)))

	for i := 0; i < 2; i++ {
		got, err := svc.FetchCandidates(context.Background(), models.Filters{})
		if err != nil {
			t.Fatalf("FetchCandidates() error = %v", err)
		}
		if len(got) != 4 {
			t.Fatalf("got %d candidates, want 4", len(got))
		}
	}
	if provider.calls != 1 {
		t.Errorf("provider called %d times, want 1", provider.calls)
	}
}

func TestFetchCandidatesFallback(t *testing.T) {
	tests := []struct {
		name     string
		provider Provider
		filters  models.Filters
		check    func(t *testing.T, got []models.Candidate)
	}{
		{
			name:     "provider error uses filtered fallback",
			provider: &stubProvider{err: errors.New("boom")},
			filters:  models.Filters{Cuisines: []string{"sushi"}},
			check: func(t *testing.T, got []models.Candidate) {
				for _, c := range got {
					if len(Filter([]models.Candidate{c}, models.Filters{Cuisines: []string{"sushi"}})) != 1 {
						t.Errorf("candidate %q does not match filter", c.ID)
					}
				}
			},
		},
		{
			name:     "empty results with unmatched filter uses full pool",
			provider: &stubProvider{},
			filters:  models.Filters{Cuisines: []string{"ethiopian"}},
			check: func(t *testing.T, got []models.Candidate) {
				if len(got) != 15 {
					t.Errorf("got %d candidates, want full pool of 15", len(got))
				}
			},
		},
		{
			name:    "no provider",
			filters: models.Filters{},
			check: func(t *testing.T, got []models.Candidate) {
				if len(got) != 15 {
					t.Errorf("got %d candidates, want 15", len(got))
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.provider, nil, DefaultFallback(), rand.New(rand.NewSource(7)))
			got, err := svc.FetchCandidates(context.Background(), tt.filters)
			if err != nil {
				t.Fatalf("FetchCandidates() error = %v", err)
			}
			if len(got) == 0 {
				t.Fatal("expected a non-empty candidate set")
			}
			tt.check(t, got)
		})
	}
}

func TestFetchCandidatesEmptyPool(t *testing.T) {
	svc := NewService(&stubProvider{err: errors.New("down")}, nil, nil, nil)
	if _, err := svc.FetchCandidates(context.Background(), models.Filters{}); !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("error = %v, want ErrNoCandidates", err)
	}
}

func TestFoursquareSearch(t *testing.T) {
	var gotQuery, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/places/search" {
			t.Errorf("path = %s, want /places/search", r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"results":[
			{"fsq_id":"f1","name":"Open Pizza","categories":[{"name":"Pizza Place","short_name":"Pizza"}],
			 "distance":120,"location":{"formatted_address":"1 Main St"},
			 "photos":[{"prefix":"https://img/","suffix":"/p.jpg"}],"rating":8.6,"price":2,
			 "hours":{"open_now":true},"stats":{"total_ratings":40}},
			{"fsq_id":"f2","name":"Closed Diner","categories":[{"name":"Diner","short_name":"Diner"}],
			 "hours":{"open_now":false}},
			{"fsq_id":"f3","name":"Fast Wok","categories":[{"name":"Fast Food Restaurant","short_name":"Fast Food"}],
			 "website":"https://wok.example"}
		]}`)
	}))
	defer srv.Close()

	p := NewFoursquareProvider("key-123", srv.URL, 500000)
	got, err := p.Search(context.Background(), models.Filters{Cuisines: []string{"pizza"}, PriceRange: []int{3, 1}})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if gotAuth != "key-123" {
		t.Errorf("Authorization = %q, want key-123", gotAuth)
	}
	for _, want := range []string{"categories=13064", "radius=100000", "min_price=1", "max_price=3", "sort=RATING", "limit=50"} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("query %q missing %q", gotQuery, want)
		}
	}

	if len(got) != 2 {
		t.Fatalf("got %d candidates, want closed place dropped: %+v", len(got), got)
	}
	pizza := got[0]
	if pizza.ImageURL != "https://img/500x500/p.jpg" {
		t.Errorf("image_url = %q", pizza.ImageURL)
	}
	if pizza.Rating != 4.3 {
		t.Errorf("rating = %v, want 4.3", pizza.Rating)
	}
	if pizza.ReviewCount != 40 || pizza.PriceTier != 2 {
		t.Errorf("review_count/price = %d/%d", pizza.ReviewCount, pizza.PriceTier)
	}
	if pizza.ExternalURL != "https://foursquare.com/v/f1" {
		t.Errorf("external_url = %q", pizza.ExternalURL)
	}
	if pizza.Categories[0].Alias != "pizza" {
		t.Errorf("alias = %q", pizza.Categories[0].Alias)
	}

	wok := got[1]
	if wok.ExternalURL != "https://wok.example" {
		t.Errorf("external_url = %q", wok.ExternalURL)
	}
	if wok.Categories[0].Alias != "fast_food" {
		t.Errorf("alias = %q, want fast_food", wok.Categories[0].Alias)
	}
	if len(wok.Fulfillment) != 2 {
		t.Errorf("fulfillment = %v, want delivery and pickup", wok.Fulfillment)
	}
}

func TestFoursquareSearchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewFoursquareProvider("key", srv.URL, 0)
	if _, err := p.Search(context.Background(), models.Filters{}); err == nil {
		t.Fatal("expected error on non-200 status")
	}
}

func TestFoursquareCuisineCaseShareQuery(t *testing.T) {
	var queried []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queried = append(queried, r.URL.Query().Get("categories"))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"results":[{"fsq_id":"f1","name":"Trattoria","categories":[{"name":"Italian Restaurant","short_name":"Italian"}]}]}`)
	}))
	defer srv.Close()

	provider := NewFoursquareProvider("key", srv.URL, 0)
	svc := NewService(provider, NewCache(time.Minute, 10), DefaultFallback(), rand.New(rand.NewSource(1)))

	for _, cuisine := range []string{"Italian", "italian", " ITALIAN "} {
		got, err := svc.FetchCandidates(context.Background(), models.Filters{Cuisines: []string{cuisine}})
		if err != nil {
			t.Fatalf("FetchCandidates(%q) error = %v", cuisine, err)
		}
		if len(got) != 1 || got[0].ID != "f1" {
			t.Errorf("FetchCandidates(%q) = %v, want [f1]", cuisine, ids(got))
		}
	}

	if len(queried) != 1 || queried[0] != "13236" {
		t.Errorf("upstream categories = %v, want one query for 13236", queried)
	}
}

type stubObjectGetter struct {
	body string
	err  error
}

func (g stubObjectGetter) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(g.body))}, nil
}

func TestFallbackFromS3(t *testing.T) {
	ctx := context.Background()

	pool, err := FallbackFromS3(ctx, stubObjectGetter{body: `[{"id":"x","display_name":"X"}]`}, "bucket", "pool.json")
	if err != nil {
		t.Fatalf("FallbackFromS3() error = %v", err)
	}
	if len(pool) != 1 || pool[0].ID != "x" {
		t.Errorf("pool = %+v", pool)
	}

	if _, err := FallbackFromS3(ctx, stubObjectGetter{body: `[]`}, "bucket", "pool.json"); err == nil {
		t.Error("expected error for empty pool")
	}
	if _, err := FallbackFromS3(ctx, stubObjectGetter{body: `[{"display_name":"no id"}]`}, "bucket", "pool.json"); err == nil {
		t.Error("expected error for candidate without id")
	}
	if _, err := FallbackFromS3(ctx, stubObjectGetter{err: errors.New("denied")}, "bucket", "pool.json"); err == nil {
		t.Error("expected error from GetObject")
	}
}
