package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"swipe-match-backend/internal/models"
)

const (
	DefaultFoursquareURL = "https://api.foursquare.com/v3"
	DefaultLatitude      = 40.7439 // Hoboken, NJ
	DefaultLongitude     = -74.0323
	DefaultRadiusMeters  = 1609
	maxRadiusMeters      = 100000

	foodCategory = "13000"
	searchFields = "fsq_id,name,categories,distance,geocodes,location,photos,rating,price,tel,website,hours,stats"
)

// cuisineCategories maps filter cuisine aliases to Foursquare category ids
var cuisineCategories = map[string]string{
	"italian":          "13236",
	"mexican":          "13303",
	"chinese":          "13099",
	"japanese":         "13263",
	"indian":           "13199",
	"thai":             "13352",
	"american":         "13068",
	"pizza":            "13064",
	"burgers":          "13031",
	"seafood":          "13338",
	"sushi":            "13350",
	"mediterranean":    "13302",
	"korean":           "13272",
	"vietnamese":       "13367",
	"breakfast_brunch": "13028",
	"sandwiches":       "13334",
	"salad":            "13332",
	"vegetarian":       "13377",
}

// FoursquareProvider searches the Foursquare Places API
type FoursquareProvider struct {
	apiKey  string
	baseURL string
	radius  int
	client  *http.Client
}

// NewFoursquareProvider creates a provider. An empty baseURL uses the public API.
func NewFoursquareProvider(apiKey, baseURL string, radius int) *FoursquareProvider {
	if baseURL == "" {
		baseURL = DefaultFoursquareURL
	}
	if radius <= 0 {
		radius = DefaultRadiusMeters
	}
	return &FoursquareProvider{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		radius:  min(radius, maxRadiusMeters),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type fsqPlace struct {
	ID         string `json:"fsq_id"`
	Name       string `json:"name"`
	Categories []struct {
		Name      string `json:"name"`
		ShortName string `json:"short_name"`
	} `json:"categories"`
	Distance float64 `json:"distance"`
	Location struct {
		FormattedAddress string `json:"formatted_address"`
	} `json:"location"`
	Photos []struct {
		Prefix string `json:"prefix"`
		Suffix string `json:"suffix"`
	} `json:"photos"`
	Rating  float64 `json:"rating"`
	Price   int     `json:"price"`
	Tel     string  `json:"tel"`
	Website string  `json:"website"`
	Hours   *struct {
		OpenNow *bool `json:"open_now"`
	} `json:"hours"`
	Stats *struct {
		TotalRatings int `json:"total_ratings"`
	} `json:"stats"`
}

type fsqSearchResponse struct {
	Results []fsqPlace `json:"results"`
}

// Search returns the open places matching the filters
func (p *FoursquareProvider) Search(ctx context.Context, f models.Filters) ([]models.Candidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.searchURL(f), nil)
	if err != nil {
		return nil, fmt.Errorf("foursquare request: %w", err)
	}
	req.Header.Set("Authorization", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("foursquare request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("foursquare API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var data fsqSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode foursquare response: %w", err)
	}

	candidates := make([]models.Candidate, 0, len(data.Results))
	for _, place := range data.Results {
		c := convertPlace(place)
		if c.IsOpen {
			candidates = append(candidates, c)
		}
	}
	return candidates, nil
}

func (p *FoursquareProvider) searchURL(f models.Filters) string {
	lat, lng := DefaultLatitude, DefaultLongitude
	if f.Location != nil {
		lat, lng = f.Location.Latitude, f.Location.Longitude
	}

	categories := foodCategory
	var ids []string
	for _, cuisine := range f.Cuisines {
		if id, ok := cuisineCategories[strings.ToLower(strings.TrimSpace(cuisine))]; ok {
			ids = append(ids, id)
		}
	}
	if len(ids) > 0 {
		categories = strings.Join(ids, ",")
	}

	q := url.Values{}
	q.Set("ll", strconv.FormatFloat(lat, 'f', -1, 64)+","+strconv.FormatFloat(lng, 'f', -1, 64))
	q.Set("radius", strconv.Itoa(p.radius))
	q.Set("categories", categories)
	q.Set("limit", "50")
	q.Set("sort", "RATING")
	q.Set("fields", searchFields)
	if len(f.PriceRange) > 0 {
		lo, hi := f.PriceRange[0], f.PriceRange[0]
		for _, v := range f.PriceRange {
			lo, hi = min(lo, v), max(hi, v)
		}
		q.Set("min_price", strconv.Itoa(lo))
		q.Set("max_price", strconv.Itoa(hi))
	}

	return p.baseURL + "/places/search?" + q.Encode()
}

func convertPlace(place fsqPlace) models.Candidate {
	c := models.Candidate{
		ID:          place.ID,
		DisplayName: place.Name,
		Rating:      math.Round(place.Rating/2*10) / 10, // 0-10 scale to 0-5
		PriceTier:   place.Price,
		Address:     place.Location.FormattedAddress,
		Phone:       place.Tel,
		Distance:    place.Distance,
		IsOpen:      place.Hours == nil || place.Hours.OpenNow == nil || *place.Hours.OpenNow,
		ExternalURL: place.Website,
		Categories:  make([]models.Category, 0, len(place.Categories)),
		Fulfillment: []string{},
	}
	if c.ExternalURL == "" {
		c.ExternalURL = "https://foursquare.com/v/" + place.ID
	}
	if len(place.Photos) > 0 {
		c.ImageURL = place.Photos[0].Prefix + "500x500" + place.Photos[0].Suffix
	}
	if place.Stats != nil {
		c.ReviewCount = place.Stats.TotalRatings
	}

	takeout := false
	for _, cat := range place.Categories {
		c.Categories = append(c.Categories, models.Category{
			Alias: strings.Join(strings.Fields(strings.ToLower(cat.ShortName)), "_"),
			Title: cat.Name,
		})
		name := strings.ToLower(cat.Name)
		if strings.Contains(name, "delivery") || strings.Contains(name, "takeout") || strings.Contains(name, "fast") {
			takeout = true
		}
	}
	if takeout {
		c.Fulfillment = []string{models.FulfillmentDelivery, models.FulfillmentPickup}
	}
	return c
}
