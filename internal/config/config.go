package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	API struct {
		BaseURL string `yaml:"baseUrl"`
		Token   string `yaml:"token"`
	} `yaml:"api"`
	Realtime struct {
		Endpoint       string `yaml:"endpoint"`
		PingInterval   string `yaml:"pingInterval"`
		ReportInterval string `yaml:"reportInterval"`
		WindowSize     int    `yaml:"windowSize"`
	} `yaml:"realtime"`
	Identity struct {
		ID    string `yaml:"id"`
		Name  string `yaml:"name"`
		Email string `yaml:"email"`
		Role  string `yaml:"role"`
	} `yaml:"identity"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Duration parses a duration string or returns the fallback if empty or invalid.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
