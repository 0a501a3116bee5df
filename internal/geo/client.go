// Package geo resolves free-text places and driving routes for ride postings.
package geo

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"thumbsup/internal/config"
	"thumbsup/internal/domain"
	"thumbsup/internal/models"

	"github.com/rs/zerolog"
)

// Client talks to a Photon geocoder and an OSRM router.
type Client struct {
	photonURL  string
	routerURL  string
	userAgent  string
	httpClient *http.Client

	cache    domain.CacheRepository
	cacheTTL time.Duration
	logger   *zerolog.Logger
}

func NewClient(cfg config.GeoConfig, logger *zerolog.Logger) *Client {
	l := logger.With().Str("component", "geo").Logger()
	return &Client{
		photonURL:  strings.TrimRight(cfg.PhotonURL, "/"),
		routerURL:  strings.TrimRight(cfg.RouterURL, "/"),
		userAgent:  cfg.UserAgent,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cacheTTL:   cfg.CacheTTL,
		logger:     &l,
	}
}

// UseCache enables caching of lookups.
func (c *Client) UseCache(cache domain.CacheRepository) {
	c.cache = cache
}

type photonResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
		Properties photonProperties `json:"properties"`
	} `json:"features"`
}

type photonProperties struct {
	Name        string `json:"name"`
	HouseNumber string `json:"housenumber"`
	Street      string `json:"street"`
	City        string `json:"city"`
	State       string `json:"state"`
	Country     string `json:"country"`
	OSMKey      string `json:"osm_key"`
	OSMValue    string `json:"osm_value"`
}

// DisplayName joins the available address parts.
func (p photonProperties) DisplayName() string {
	var parts []string
	if p.Name != "" {
		parts = append(parts, p.Name)
	}
	switch {
	case p.HouseNumber != "" && p.Street != "":
		parts = append(parts, p.HouseNumber+" "+p.Street)
	case p.Street != "":
		parts = append(parts, p.Street)
	}
	for _, s := range []string{p.City, p.State, p.Country} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, ", ")
	}
	if p.OSMValue != "" && p.OSMKey != "" {
		return p.OSMValue + " " + p.OSMKey
	}
	return "Unknown location"
}

// Search returns up to GeoSearchLimit ranked candidates for query.
func (c *Client) Search(ctx context.Context, query string) ([]models.Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.Place{}, nil
	}

	cacheKey := "geo:search:" + digest(strings.ToLower(query))
	var places []models.Place
	if c.readCache(ctx, cacheKey, &places) {
		return places, nil
	}

	endpoint := fmt.Sprintf("%s/api/?q=%s&limit=%d", c.photonURL, url.QueryEscape(query), models.GeoSearchLimit)
	var resp photonResponse
	if err := c.doGet(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("geocode %q: %w", query, err)
	}

	places = make([]models.Place, 0, len(resp.Features))
	for _, f := range resp.Features {
		if len(f.Geometry.Coordinates) < 2 {
			continue
		}
		// GeoJSON order is [lon, lat]
		places = append(places, models.Place{
			DisplayName: f.Properties.DisplayName(),
			Lat:         f.Geometry.Coordinates[1],
			Lng:         f.Geometry.Coordinates[0],
		})
	}

	c.writeCache(ctx, cacheKey, places)
	return places, nil
}

type osrmResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
	} `json:"routes"`
}

// Route returns the driving estimate between two points.
func (c *Client) Route(ctx context.Context, from, to models.Coordinates) (*models.RouteInfo, error) {
	cacheKey := "geo:route:" + from.String() + ":" + to.String()
	var info models.RouteInfo
	if c.readCache(ctx, cacheKey, &info) {
		return &info, nil
	}

	// OSRM takes lon,lat pairs
	endpoint := fmt.Sprintf("%s/route/v1/driving/%.6f,%.6f;%.6f,%.6f?overview=false",
		c.routerURL, from.Lng, from.Lat, to.Lng, to.Lat)
	var resp osrmResponse
	if err := c.doGet(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("route %s -> %s: %w", from, to, err)
	}
	if resp.Code != "Ok" || len(resp.Routes) == 0 {
		return nil, fmt.Errorf("route %s -> %s: no route (%s %s)", from, to, resp.Code, resp.Message)
	}

	r := resp.Routes[0]
	info = models.RouteInfo{
		DistanceText:    FormatDistance(r.Distance),
		DurationText:    FormatDuration(int64(math.Round(r.Duration))),
		DurationSeconds: int64(math.Round(r.Duration)),
		DistanceMeters:  r.Distance,
	}

	c.writeCache(ctx, cacheKey, info)
	return &info, nil
}

// FormatDistance renders meters as "850 m" or "313 km".
func FormatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%d m", int64(math.Round(meters)))
	}
	km := meters / 1000
	if km < 10 {
		return fmt.Sprintf("%.1f km", km)
	}
	return fmt.Sprintf("%d km", int64(math.Round(km)))
}

// FormatDuration renders seconds as "45 mins", "1 hour 5 mins" or "2 days 3 hours".
func FormatDuration(seconds int64) string {
	if seconds < 60 {
		return "1 min"
	}
	mins := (seconds + 30) / 60
	days := mins / (24 * 60)
	hours := (mins / 60) % 24
	mins %= 60

	switch {
	case days > 0 && hours > 0:
		return plural(days, "day") + " " + plural(hours, "hour")
	case days > 0:
		return plural(days, "day")
	case hours > 0 && mins > 0:
		return plural(hours, "hour") + " " + plural(mins, "min")
	case hours > 0:
		return plural(hours, "hour")
	default:
		return plural(mins, "min")
	}
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.cache == nil || c.cacheTTL <= 0 {
		return false
	}
	val, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("geo cache read failed")
		return false
	}
	if !ok {
		return false
	}
	return json.Unmarshal([]byte(val), out) == nil
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.cache == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, string(data), c.cacheTTL); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("geo cache write failed")
	}
}

func (c *Client) doGet(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func digest(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
