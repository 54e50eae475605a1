package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const openWeatherMapURL = "https://api.openweathermap.org/data/2.5/weather"

// Simulated conditions used when no API key is configured, so the agent
// stays usable in development.
var simulatedConditions = []struct {
	condition string
	tempF     int
}{
	{"sunny", 75},
	{"cloudy", 65},
	{"rainy", 55},
	{"snowy", 32},
	{"partly cloudy", 70},
	{"windy", 60},
}

// NewWeatherTool returns the get_weather tool. Results are cacheable to
// shield the rate-limited weather API from redundant calls for the same
// location.
func NewWeatherTool(apiKey, baseURL string, timeout, cacheTTL time.Duration) *Tool {
	return &Tool{
		Name:        "get_weather",
		Description: "Get the current weather in a given location",
		InputSchema: `{"type":"object","properties":{"location":{"type":"string","description":"City and optional country, e.g. London, UK"}},"required":["location"]}`,
		Validate:    requireString("location"),
		Cacheable:   true,
		CacheTTL:    cacheTTL,
		Timeout:     timeout,
		Execute: func(ctx context.Context, input map[string]any) (any, error) {
			location, err := stringArg(input, "location")
			if err != nil {
				return nil, err
			}
			if apiKey == "" {
				return simulatedWeather(location), nil
			}
			return fetchWeather(ctx, baseURL, apiKey, location)
		},
	}
}

// simulatedWeather picks a stable pseudo-condition per location so repeated
// asks in one conversation stay coherent.
func simulatedWeather(location string) string {
	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(location)))
	pick := simulatedConditions[int(h.Sum32())%len(simulatedConditions)]
	return fmt.Sprintf("Weather in %s (simulated): %s with a temperature of %d°F",
		location, pick.condition, pick.tempF)
}

type owmResponse struct {
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity int     `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

func fetchWeather(ctx context.Context, baseURL, apiKey, location string) (any, error) {
	q := url.Values{}
	q.Set("q", location)
	q.Set("appid", apiKey)
	q.Set("units", "imperial")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building weather request: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading weather response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather API error (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var owm owmResponse
	if err := json.Unmarshal(body, &owm); err != nil {
		return nil, fmt.Errorf("parsing weather response: %w", err)
	}

	status := "unknown conditions"
	if len(owm.Weather) > 0 {
		status = owm.Weather[0].Description
	}
	return fmt.Sprintf("Weather in %s: %s with a temperature of %.1f°F, humidity: %d%%, wind: %.0f mph",
		location, status, owm.Main.Temp, owm.Main.Humidity, owm.Wind.Speed), nil
}
