package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/konektagri-development/paddy-ingestion-telegram-mini-app/internal/config"
	"github.com/konektagri-development/paddy-ingestion-telegram-mini-app/internal/models"
)

type openMeteoCurrent struct {
	Time             string   `json:"time"`
	Temperature2m    *float64 `json:"temperature_2m"`
	RelativeHumidity *float64 `json:"relative_humidity_2m"`
	Precipitation    *float64 `json:"precipitation"`
	WeatherCode      *int     `json:"weather_code"`
	WindSpeed10m     *float64 `json:"wind_speed_10m"`
}

type openMeteoResponse struct {
	Current openMeteoCurrent `json:"current"`
}

// WeatherService fetches current conditions from Open-Meteo at intake time.
// Failures are the caller's to swallow: a survey record is worth keeping even
// when the weather lookup is down.
type WeatherService struct {
	client *resty.Client
}

func NewWeatherService(cfg config.WeatherConfig) *WeatherService {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")

	return &WeatherService{client: client}
}

// Snapshot returns the current conditions at a coordinate.
func (s *WeatherService) Snapshot(ctx context.Context, lat, lon float64) (*models.WeatherSnapshot, error) {
	var response openMeteoResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"latitude":  fmt.Sprintf("%.6f", lat),
			"longitude": fmt.Sprintf("%.6f", lon),
			"current":   "temperature_2m,relative_humidity_2m,precipitation,weather_code,wind_speed_10m",
		}).
		SetResult(&response).
		Get("/v1/forecast")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch weather: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("weather api returned status %d", resp.StatusCode())
	}

	current := response.Current
	return &models.WeatherSnapshot{
		TemperatureC:    current.Temperature2m,
		HumidityPct:     current.RelativeHumidity,
		WindSpeedKmh:    current.WindSpeed10m,
		PrecipitationMm: current.Precipitation,
		WeatherCode:     current.WeatherCode,
		CapturedAt:      time.Now().UTC(),
	}, nil
}
