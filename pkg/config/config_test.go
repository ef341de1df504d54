package config

import (
	"os"
	"testing"
)

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "db.internal",
		Port:     5432,
		User:     "pharmaflow",
		Password: "secret",
		Database: "pharmaflow_inventory",
		SSLMode:  "require",
	}

	want := "host=db.internal port=5432 user=pharmaflow password=secret dbname=pharmaflow_inventory sslmode=require"
	if got := cfg.DSN(); got != want {
		t.Errorf("DSN() = %v, want %v", got, want)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("inventory-service")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8084 {
		t.Errorf("Server.Port = %d, want 8084", cfg.Server.Port)
	}
	if cfg.Forecast.WindowMonths != 6 {
		t.Errorf("Forecast.WindowMonths = %d, want 6", cfg.Forecast.WindowMonths)
	}
	if cfg.Forecast.SafetyStockFactor != 1.0 {
		t.Errorf("Forecast.SafetyStockFactor = %v, want 1.0", cfg.Forecast.SafetyStockFactor)
	}
	if cfg.Alerts.ExpiryHighDays != 30 || cfg.Alerts.ExpiryMediumDays != 90 {
		t.Errorf("Alerts expiry bounds = %d/%d, want 30/90", cfg.Alerts.ExpiryHighDays, cfg.Alerts.ExpiryMediumDays)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	os.Setenv("PHARMAFLOW_SERVER_PORT", "9090")
	os.Setenv("PHARMAFLOW_FORECAST_WINDOW_MONTHS", "12")
	defer os.Unsetenv("PHARMAFLOW_SERVER_PORT")
	defer os.Unsetenv("PHARMAFLOW_FORECAST_WINDOW_MONTHS")

	cfg, err := Load("inventory-service")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Forecast.WindowMonths != 12 {
		t.Errorf("Forecast.WindowMonths = %d, want 12", cfg.Forecast.WindowMonths)
	}
}

func TestDatabaseConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		config      DatabaseConfig
		environment string
		wantErr     bool
	}{
		{"localhost allowed in development", DatabaseConfig{Host: "localhost"}, EnvDevelopment, false},
		{"localhost rejected in production", DatabaseConfig{Host: "localhost"}, EnvProduction, true},
		{"empty host rejected in production", DatabaseConfig{Host: ""}, EnvProduction, true},
		{"real host accepted in production", DatabaseConfig{Host: "db.internal"}, EnvProduction, false},
		{"localhost rejected in staging", DatabaseConfig{Host: "localhost"}, EnvStaging, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate(tt.environment)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadWithValidation_RejectsInvertedExpiryBounds(t *testing.T) {
	os.Setenv("PHARMAFLOW_ALERTS_EXPIRY_HIGH_DAYS", "120")
	defer os.Unsetenv("PHARMAFLOW_ALERTS_EXPIRY_HIGH_DAYS")

	if _, err := LoadWithValidation("inventory-service"); err == nil {
		t.Error("LoadWithValidation() expected error for expiry_high_days > expiry_medium_days")
	}
}

func TestLoadWithValidation_RejectsZeroForecastWindow(t *testing.T) {
	os.Setenv("PHARMAFLOW_FORECAST_WINDOW_MONTHS", "0")
	defer os.Unsetenv("PHARMAFLOW_FORECAST_WINDOW_MONTHS")

	if _, err := LoadWithValidation("inventory-service"); err == nil {
		t.Error("LoadWithValidation() expected error for window_months < 1")
	}
}
