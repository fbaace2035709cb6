package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"unicode"

	"fcfilter/internal/domain"
)

const weatherKeyMissing = "OpenWeatherMap API Key not set, ask the user to set it up."

// Weather provides get_current_weather backed by OpenWeatherMap.
type Weather struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

// NewWeather creates the weather tool. An empty apiKey is allowed: the tool
// then answers with setup instructions instead of calling the API.
func NewWeather(baseURL, apiKey string, client *http.Client, logger *slog.Logger) *Weather {
	return &Weather{baseURL: baseURL, apiKey: apiKey, client: client, logger: logger}
}

// Spec returns the builder for get_current_weather.
func (w *Weather) Spec() *SpecBuilder {
	return NewSpec("get_current_weather", "Get the current weather for a location. If the location is not found, return an empty string.").
		Param("location", domain.ParamString, "The location to get the weather for.").
		Param("unit", domain.ParamString, "The unit to get the weather in. Default is fahrenheit.",
			WithEnum("metric", "fahrenheit"), WithDefault("fahrenheit")).
		Handler(w.handle)
}

type owmResponse struct {
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
}

func (w *Weather) handle(ctx context.Context, args domain.ToolArgs) (string, error) {
	if w.apiKey == "" {
		return weatherKeyMissing, nil
	}
	location := args.String("location")
	unit := args.String("unit")

	// OpenWeatherMap has no "fahrenheit" units value; "imperial" is the equivalent.
	apiUnits := unit
	if unit == "fahrenheit" {
		apiUnits = "imperial"
	}

	q := url.Values{}
	q.Set("q", location)
	q.Set("appid", w.apiKey)
	q.Set("units", apiUnits)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("weather request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, defaultMaxBodySize))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		w.logger.DebugContext(ctx, "weather location not found", "location", location)
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("weather API status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var data owmResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return "", fmt.Errorf("decode weather: %w", err)
	}
	if len(data.Weather) == 0 {
		return "", nil
	}

	symbol := strings.ToUpper(unit[:1])
	return fmt.Sprintf("%s: %s, %s°%s", location, capitalize(data.Weather[0].Description),
		formatTemp(data.Main.Temp), symbol), nil
}

func formatTemp(t float64) string {
	s := fmt.Sprintf("%.2f", t)
	s = strings.TrimRight(s, "0")
	if strings.HasSuffix(s, ".") {
		s += "0"
	}
	return s
}

func capitalize(s string) string {
	r := []rune(strings.ToLower(s))
	if len(r) == 0 {
		return s
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
