package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/atinyakov/GophFood/internal/models"
)

const searchLimit = 5

// NominatimConfig configures a NominatimGeocoder.
type NominatimConfig struct {
	// BaseURL is the root of a Nominatim compatible API.
	BaseURL string
	// UserAgent identifies the application, as the public instance requires.
	UserAgent string
	// RatePerSec caps the request rate; zero or negative disables the cap.
	RatePerSec float64
	// CacheTTL is the lifetime of cached lookups.
	CacheTTL time.Duration
	// HTTPClient defaults to a client with a 10s timeout.
	HTTPClient *http.Client
}

// NominatimGeocoder is a Geocoder backed by an OpenStreetMap Nominatim API.
// Lookups are rate limited and cached, so search-as-you-type stays within
// provider limits.
type NominatimGeocoder struct {
	base      *url.URL
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
	cache     *cache.Cache
	log       *zap.Logger
}

type nominatimAddress struct {
	HouseNumber  string `json:"house_number"`
	Road         string `json:"road"`
	CityDistrict string `json:"city_district"`
	Suburb       string `json:"suburb"`
	County       string `json:"county"`
	City         string `json:"city"`
	Town         string `json:"town"`
	Village      string `json:"village"`
	State        string `json:"state"`
	Country      string `json:"country"`
	Postcode     string `json:"postcode"`
}

type nominatimResult struct {
	Lat         string            `json:"lat"`
	Lon         string            `json:"lon"`
	DisplayName string            `json:"display_name"`
	Address     *nominatimAddress `json:"address"`
	Error       string            `json:"error"`
}

// NewNominatimGeocoder returns a geocoder for cfg.
func NewNominatimGeocoder(cfg NominatimConfig, log *zap.Logger) (*NominatimGeocoder, error) {
	base := cfg.BaseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse geocoder url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("geocoder url %q must be absolute", cfg.BaseURL)
	}

	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &NominatimGeocoder{
		base:      u,
		userAgent: cfg.UserAgent,
		http:      hc,
		limiter:   rate.NewLimiter(limit, 1),
		cache:     cache.New(ttl, 2*ttl),
		log:       log,
	}, nil
}

// Reverse implements Geocoder. An unresolvable coordinate yields no places
// and no error.
func (g *NominatimGeocoder) Reverse(ctx context.Context, c models.Coordinates) ([]Place, error) {
	key := "reverse:" + FormatCoordinates(c)
	if v, ok := g.cache.Get(key); ok {
		return v.([]Place), nil
	}

	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(c.Lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(c.Lng, 'f', 6, 64))
	q.Set("addressdetails", "1")

	var res nominatimResult
	if err := g.get(ctx, "reverse", q, &res); err != nil {
		return nil, err
	}

	var places []Place
	if res.Error == "" && res.Address != nil {
		places = []Place{res.Address.place()}
	}
	g.cache.Set(key, places, cache.DefaultExpiration)
	return places, nil
}

// Forward implements Geocoder. A blank query yields no candidates without a
// request.
func (g *NominatimGeocoder) Forward(ctx context.Context, query string) ([]Candidate, error) {
	norm := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	if norm == "" {
		return nil, nil
	}
	key := "search:" + norm
	if v, ok := g.cache.Get(key); ok {
		return v.([]Candidate), nil
	}

	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("q", strings.TrimSpace(query))
	q.Set("limit", strconv.Itoa(searchLimit))

	var hits []nominatimResult
	if err := g.get(ctx, "search", q, &hits); err != nil {
		return nil, err
	}

	out := make([]Candidate, 0, len(hits))
	for _, h := range hits {
		lat, errLat := strconv.ParseFloat(h.Lat, 64)
		lng, errLng := strconv.ParseFloat(h.Lon, 64)
		if errLat != nil || errLng != nil {
			g.log.Debug("skip unparsable search hit", zap.String("lat", h.Lat), zap.String("lon", h.Lon))
			continue
		}
		coords := models.Coordinates{Lat: lat, Lng: lng}
		title := h.DisplayName
		if title == "" {
			title = strings.TrimSpace(query)
		}
		out = append(out, Candidate{
			ID:          len(out),
			Title:       title,
			Subtitle:    FormatCoordinates(coords),
			Coordinates: coords,
		})
	}
	g.cache.Set(key, out, cache.DefaultExpiration)
	return out, nil
}

func (g *NominatimGeocoder) get(ctx context.Context, path string, q url.Values, out any) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("geocoder rate limit: %w", err)
	}

	target := g.base.ResolveReference(&url.URL{Path: path, RawQuery: q.Encode()})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return fmt.Errorf("create geocoder request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return fmt.Errorf("geocoder request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("geocoder %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode geocoder %s response: %w", path, err)
	}
	return nil
}

func (a nominatimAddress) place() Place {
	p := Place{
		StreetNumber: a.HouseNumber,
		Street:       a.Road,
		District:     a.CityDistrict,
		Subregion:    a.County,
		City:         a.City,
		Region:       a.State,
		Country:      a.Country,
		PostalCode:   a.Postcode,
	}
	if p.District == "" {
		p.District = a.Suburb
	}
	if p.City == "" {
		p.City = a.Town
	}
	if p.City == "" {
		p.City = a.Village
	}
	return p
}
