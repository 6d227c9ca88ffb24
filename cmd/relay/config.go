package main

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// RELAY_HOST and RELAY_PORT set where chat processes dial in
	Host string `envconfig:"RELAY_HOST" default:"localhost"`
	Port int    `envconfig:"RELAY_PORT" default:"9090"`
	// RELAY_QUEUE_SIZE bounds the frames waiting for one slow peer
	QueueSize   int    `envconfig:"RELAY_QUEUE_SIZE" default:"64"`
	MetricsAddr string `envconfig:"RELAY_METRICS_ADDR" default:":9091"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"INFO"`
	// RELAY_BADGER_FILEPATH holds the daily counters shared by every chat process
	BadgerFilepath string `envconfig:"RELAY_BADGER_FILEPATH" default:"./data/relay"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
