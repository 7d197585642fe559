// Package config reads per-service settings from the environment. Every
// service deploys with the same small set of knobs; anything
// service-specific stays in that service's main.
package config

import (
	"github.com/salonbookhq/salonbook/libs/runtime"
)

type Service struct {
	Name         string
	HTTPAddr     string
	DatabaseURL  string
	KafkaBrokers []string
	RedisAddr    string
	OTLPEndpoint string
}

// Load builds the common config for a service. HTTP_ADDR, DATABASE_URL,
// KAFKA_BROKERS, REDIS_ADDR and OTEL_EXPORTER_OTLP_ENDPOINT are read from
// the environment; defaults suit docker-compose.
func Load(name string) Service {
	return Service{
		Name:         name,
		HTTPAddr:     runtime.Getenv("HTTP_ADDR", ":8080"),
		DatabaseURL:  runtime.Getenv("DATABASE_URL", ""),
		KafkaBrokers: runtime.GetenvList("KAFKA_BROKERS", []string{"kafka:9092"}),
		RedisAddr:    runtime.Getenv("REDIS_ADDR", ""),
		OTLPEndpoint: runtime.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
}
