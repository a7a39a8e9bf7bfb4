package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr         string
	DBDSN            string
	InternalToken    string
	WebSocketOrigin  string
	LogLevel         string
	TickInterval     time.Duration
	PriceMaxAge      time.Duration
	MarginCallLevel  decimal.Decimal
	StopOutLevel     decimal.Decimal
	CandleInterval   time.Duration
	CandleVolatility float64
	KafkaBrokers     []string
	KafkaPriceTopic  string
	KafkaNotifyTopic string
	KafkaGroupID     string
	NotifyQueueSize  int
}

type lookupFunc func(key string) (string, bool)

// Load reads configuration from the environment. When CONFIG_FILE names a
// YAML file of KEY: value pairs, those values fill in keys the environment
// leaves unset.
func Load() (Config, error) {
	lookup := lookupFunc(os.LookupEnv)
	if path, ok := os.LookupEnv("CONFIG_FILE"); ok && strings.TrimSpace(path) != "" {
		file, err := readFile(path)
		if err != nil {
			return Config{}, err
		}
		lookup = overlay(lookup, file)
	}
	return load(lookup)
}

func readFile(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return parseFile(raw)
}

func parseFile(raw []byte) (map[string]string, error) {
	values := map[string]string{}
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[strings.ToUpper(strings.TrimSpace(k))] = v
	}
	return out, nil
}

func overlay(env lookupFunc, file map[string]string) lookupFunc {
	return func(key string) (string, bool) {
		if v, ok := env(key); ok {
			return v, true
		}
		v, ok := file[key]
		return v, ok
	}
}

func load(lookup lookupFunc) (Config, error) {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}
	var c Config
	var missing []string
	c.HTTPAddr = get("HTTP_ADDR")
	if c.HTTPAddr == "" {
		missing = append(missing, "HTTP_ADDR")
	}
	c.DBDSN = get("DB_DSN")
	if c.DBDSN == "" {
		missing = append(missing, "DB_DSN")
	}
	c.InternalToken = get("INTERNAL_API_TOKEN")
	if c.InternalToken == "" {
		missing = append(missing, "INTERNAL_API_TOKEN")
	}
	c.WebSocketOrigin = get("WS_ORIGIN")
	if c.WebSocketOrigin == "" {
		missing = append(missing, "WS_ORIGIN")
	}
	c.LogLevel = strings.ToLower(get("LOG_LEVEL"))
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	var err error
	if c.TickInterval, err = duration(get("TICK_INTERVAL"), 2*time.Second); err != nil {
		return c, fmt.Errorf("invalid TICK_INTERVAL: %w", err)
	}
	if c.PriceMaxAge, err = duration(get("PRICE_MAX_AGE"), 10*time.Second); err != nil {
		return c, fmt.Errorf("invalid PRICE_MAX_AGE: %w", err)
	}
	if c.CandleInterval, err = duration(get("CANDLE_INTERVAL"), time.Minute); err != nil {
		return c, fmt.Errorf("invalid CANDLE_INTERVAL: %w", err)
	}
	if c.MarginCallLevel, err = percent(get("MARGIN_CALL_LEVEL_PCT"), "60"); err != nil {
		return c, fmt.Errorf("invalid MARGIN_CALL_LEVEL_PCT: %w", err)
	}
	if c.StopOutLevel, err = percent(get("STOP_OUT_LEVEL_PCT"), "20"); err != nil {
		return c, fmt.Errorf("invalid STOP_OUT_LEVEL_PCT: %w", err)
	}
	c.CandleVolatility = 0.0004
	if raw := get("CANDLE_VOLATILITY"); raw != "" {
		if c.CandleVolatility, err = strconv.ParseFloat(raw, 64); err != nil {
			return c, fmt.Errorf("invalid CANDLE_VOLATILITY: %w", err)
		}
	}
	c.NotifyQueueSize = 1024
	if raw := get("NOTIFY_QUEUE_SIZE"); raw != "" {
		if c.NotifyQueueSize, err = strconv.Atoi(raw); err != nil {
			return c, fmt.Errorf("invalid NOTIFY_QUEUE_SIZE: %w", err)
		}
	}

	for _, b := range strings.Split(get("KAFKA_BROKERS"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			c.KafkaBrokers = append(c.KafkaBrokers, b)
		}
	}
	c.KafkaPriceTopic = get("KAFKA_PRICE_TOPIC")
	if c.KafkaPriceTopic == "" {
		c.KafkaPriceTopic = "prices"
	}
	c.KafkaNotifyTopic = get("KAFKA_NOTIFY_TOPIC")
	if c.KafkaNotifyTopic == "" {
		c.KafkaNotifyTopic = "position-closed"
	}
	c.KafkaGroupID = get("KAFKA_GROUP_ID")
	if c.KafkaGroupID == "" {
		c.KafkaGroupID = "risk-engine"
	}

	if len(missing) > 0 {
		return c, errors.New("missing required env: " + strings.Join(missing, ","))
	}
	return c, c.Validate()
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.TickInterval <= 0 || c.PriceMaxAge <= 0 || c.CandleInterval < time.Second {
		return errors.New("durations must be positive and CANDLE_INTERVAL at least 1s")
	}
	if !c.StopOutLevel.IsPositive() {
		return errors.New("STOP_OUT_LEVEL_PCT must be positive")
	}
	if !c.StopOutLevel.LessThan(c.MarginCallLevel) {
		return errors.New("STOP_OUT_LEVEL_PCT must be below MARGIN_CALL_LEVEL_PCT")
	}
	if c.CandleVolatility <= 0 {
		return errors.New("CANDLE_VOLATILITY must be positive")
	}
	if c.NotifyQueueSize <= 0 {
		return errors.New("NOTIFY_QUEUE_SIZE must be positive")
	}
	return nil
}

// KafkaEnabled reports whether brokers are configured.
func (c Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func duration(raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	return time.ParseDuration(raw)
}

func percent(raw, def string) (decimal.Decimal, error) {
	if raw == "" {
		raw = def
	}
	return decimal.NewFromString(raw)
}
