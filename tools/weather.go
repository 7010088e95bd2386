package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultGeocodeURL  = "https://geocoding-api.open-meteo.com/v1/search"
	defaultForecastURL = "https://api.open-meteo.com/v1/forecast"

	geocodeTimeout = 10 * time.Second
	weatherTimeout = 10 * time.Second
)

// weatherCategories maps open-meteo weather codes to human-readable
// conditions. Codes not in the table render as "unknown".
var weatherCategories = map[int]string{
	0: "clear", 1: "mostly clear", 2: "partly cloudy", 3: "overcast",
	45: "fog", 48: "depositing rime fog",
	51: "light drizzle", 53: "moderate drizzle", 55: "dense drizzle",
	61: "light rain", 63: "moderate rain", 65: "heavy rain",
	71: "light snow", 73: "moderate snow", 75: "heavy snow",
	80: "rain showers", 81: "heavy rain showers", 82: "violent rain showers",
	95: "thunderstorm", 96: "thunderstorm with slight hail", 99: "thunderstorm with heavy hail",
}

type coordinates struct {
	Lat float64
	Lon float64
}

// Weather looks up live conditions for a named place. Resolution runs in two
// stages: geocode the place name to coordinates (built-in table first, then
// the open-meteo geocoding service with retries), then fetch current
// conditions for those coordinates.
type Weather struct {
	logger      *slog.Logger
	client      *http.Client
	geocodeURL  string
	forecastURL string
	retry       RetryPolicy

	// coords short-circuits geocoding for well-known places whose names
	// the geocoding service resolves poorly. Exact string match only.
	coords map[string]coordinates

	// searchAliases maps native-script names to the transliteration the
	// geocoding service indexes better.
	searchAliases map[string]string

	defs []Definition
}

// NewWeather creates a weather provider with the default open-meteo
// endpoints and retry policy.
func NewWeather(logger *slog.Logger) *Weather {
	return &Weather{
		logger:      logger,
		client:      &http.Client{},
		geocodeURL:  defaultGeocodeURL,
		forecastURL: defaultForecastURL,
		retry:       DefaultRetryPolicy(),
		coords: map[string]coordinates{
			"Shenzhen": {22.5431, 114.0589},
			"Xiamen":   {24.4700, 118.0800},
			"Beijing":  {39.9042, 116.4074},
			"Shanghai": {31.2304, 121.4737},
			"深圳":       {22.5431, 114.0589},
			"厦门":       {24.4700, 118.0800},
			"北京":       {39.9042, 116.4074},
			"上海":       {31.2304, 121.4737},
		},
		searchAliases: map[string]string{
			"深圳": "Shenzhen",
			"厦门": "Xiamen",
			"北京": "Beijing",
			"上海": "Shanghai",
		},
	}
}

func (w *Weather) Name() string {
	return "weather"
}

// Init publishes the provider's tool definitions. The set is immutable
// afterward.
func (w *Weather) Init(_ context.Context) error {
	w.defs = []Definition{
		{
			Name:        "get_weather",
			Description: "Get current weather conditions for a city (city names in English or Chinese).",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"city": map[string]any{
						"type":        "string",
						"description": "City name, e.g. Shenzhen, New York",
					},
				},
				"required": []string{"city"},
			},
		},
	}
	w.logger.Info("weather provider initialized", "tools", len(w.defs))
	return nil
}

func (w *Weather) Definitions() []Definition {
	return w.defs
}

// Call executes the named tool. Failures come back as text so they can be
// fed to the model as a tool result; a weather outage must not abort the
// surrounding conversation.
func (w *Weather) Call(ctx context.Context, tool string, args map[string]any) string {
	if tool != "get_weather" {
		return fmt.Sprintf("unsupported tool %q: the weather provider only handles get_weather", tool)
	}

	city, ok := args["city"].(string)
	if !ok || city == "" {
		return `missing required argument "city" (the city name to look up)`
	}

	coords, err := w.geocode(ctx, city)
	if err != nil {
		w.logger.Warn("geocoding failed", "city", city, "error", err)
		return fmt.Sprintf("could not resolve a location named %q, please check the city name", city)
	}

	report, err := w.currentConditions(ctx, city, coords)
	if err != nil {
		w.logger.Warn("weather fetch failed", "city", city, "error", err)
		return fmt.Sprintf("weather lookup for %s failed: %v", city, err)
	}
	return report
}

// Close is a no-op: the provider holds no connection state beyond the
// shared HTTP client's idle pool.
func (w *Weather) Close() error {
	w.client.CloseIdleConnections()
	return nil
}

// geocode resolves a place name to coordinates. The built-in table is
// consulted first and never touches the network. Otherwise the geocoding
// service is queried with the transliterated name, then with the original
// name, each under the retry policy.
func (w *Weather) geocode(ctx context.Context, city string) (coordinates, error) {
	if c, ok := w.coords[city]; ok {
		return c, nil
	}

	search := city
	if alias, ok := w.searchAliases[city]; ok {
		search = alias
	}

	coords, err := w.geocodeSearch(ctx, search)
	if err != nil {
		return coordinates{}, err
	}
	if coords == nil && search != city {
		coords, err = w.geocodeSearch(ctx, city)
		if err != nil {
			return coordinates{}, err
		}
	}
	if coords == nil {
		return coordinates{}, fmt.Errorf("no geocoding results for %q", city)
	}
	return *coords, nil
}

// geocodeSearch queries the geocoding service once (with retries). A nil
// result with nil error means the service answered but found nothing.
func (w *Weather) geocodeSearch(ctx context.Context, name string) (*coordinates, error) {
	params := url.Values{
		"name":     {name},
		"count":    {"1"},
		"language": {"en"},
		"format":   {"json"},
	}

	var payload struct {
		Results []struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"results"`
	}

	err := w.retry.Do(ctx, func() error {
		return w.getJSON(ctx, w.geocodeURL, params, geocodeTimeout, &payload)
	})
	if err != nil {
		return nil, fmt.Errorf("geocoding %q: %w", name, err)
	}

	if len(payload.Results) == 0 {
		return nil, nil
	}
	return &coordinates{payload.Results[0].Latitude, payload.Results[0].Longitude}, nil
}

func (w *Weather) currentConditions(ctx context.Context, city string, c coordinates) (string, error) {
	params := url.Values{
		"latitude":  {fmt.Sprintf("%.4f", c.Lat)},
		"longitude": {fmt.Sprintf("%.4f", c.Lon)},
		"current":   {"temperature_2m,precipitation,wind_speed_10m,weather_code"},
		"timezone":  {"auto"},
	}

	var payload struct {
		Timezone string `json:"timezone"`
		Current  struct {
			Time          string  `json:"time"`
			Temperature   float64 `json:"temperature_2m"`
			Precipitation float64 `json:"precipitation"`
			WindSpeed     float64 `json:"wind_speed_10m"`
			WeatherCode   int     `json:"weather_code"`
		} `json:"current"`
	}

	err := w.retry.Do(ctx, func() error {
		return w.getJSON(ctx, w.forecastURL, params, weatherTimeout, &payload)
	})
	if err != nil {
		return "", err
	}

	cur := payload.Current
	precip := "no precipitation"
	if cur.Precipitation > 0 {
		precip = "precipitating"
	}

	var report strings.Builder
	fmt.Fprintf(&report, "Current weather for %s\n", city)
	fmt.Fprintf(&report, "• temperature: %.1f°C\n", cur.Temperature)
	fmt.Fprintf(&report, "• conditions: %s\n", categorize(cur.WeatherCode))
	fmt.Fprintf(&report, "• precipitation: %.1fmm (%s)\n", cur.Precipitation, precip)
	fmt.Fprintf(&report, "• wind: %.1f km/h\n", cur.WindSpeed)
	fmt.Fprintf(&report, "• timezone: %s\n", shortTimezone(payload.Timezone))
	fmt.Fprintf(&report, "• observed: %s", strings.Replace(cur.Time, "T", " ", 1))
	return report.String(), nil
}

// categorize maps a numeric weather code to its human-readable category.
func categorize(code int) string {
	if category, ok := weatherCategories[code]; ok {
		return category
	}
	return "unknown"
}

// shortTimezone reduces "Asia/Shanghai" to "Shanghai".
func shortTimezone(tz string) string {
	if i := strings.LastIndex(tz, "/"); i >= 0 {
		return tz[i+1:]
	}
	return tz
}

// getJSON issues a GET with query params and decodes the JSON body into out.
// Non-200 statuses come back as *StatusError so the retry policy can decide
// whether they are transient.
func (w *Weather) getJSON(ctx context.Context, base string, params url.Values, timeout time.Duration, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", base, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Code: resp.StatusCode, Status: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, base)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}
