package config

import (
	"flag"
	"strings"
)

// Config holds runtime configuration for the filter engine.
type Config struct {
	// UDP port measurement datagrams arrive on
	ReceivePort int
	// UDP port filtered events are broadcast to
	SendPort int
	// Address to bind the inbound socket to ("" means all interfaces)
	BindAddr string
	// Destination address for outbound broadcasts
	BroadcastAddr string
	// Listen address for the rule API and metrics
	HTTPAddr string
	// Per-device dispatch queue capacity
	QueueSize int
	// Kafka brokers (CSV); empty disables the Kafka event sink
	KafkaBrokers string
	// Kafka topic for filtered events
	KafkaTopic string
	// Log level (trace, debug, info, warn, error)
	LogLevel string
}

// Default returns a sensible default config for local dev.
func Default() *Config {
	return &Config{
		ReceivePort:   5005,
		SendPort:      5006,
		BindAddr:      "",
		BroadcastAddr: "255.255.255.255",
		HTTPAddr:      ":8080",
		QueueSize:     256,
		KafkaBrokers:  "",
		KafkaTopic:    "ampfilter.events",
		LogLevel:      "info",
	}
}

// RegisterFlags binds every config field to a flag on fs. Values may also
// come from AMPFILTER_* environment variables or a plain config file when
// parsed through ff.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.ReceivePort, "receive-port", c.ReceivePort, "UDP port for inbound measurements")
	fs.IntVar(&c.SendPort, "send-port", c.SendPort, "UDP port for outbound filtered events")
	fs.StringVar(&c.BindAddr, "bind", c.BindAddr, "bind address for the inbound socket")
	fs.StringVar(&c.BroadcastAddr, "broadcast", c.BroadcastAddr, "destination address for outbound broadcasts")
	fs.StringVar(&c.HTTPAddr, "http", c.HTTPAddr, "listen address for the rule API")
	fs.IntVar(&c.QueueSize, "queue-size", c.QueueSize, "per-device dispatch queue capacity")
	fs.StringVar(&c.KafkaBrokers, "kafka-brokers", c.KafkaBrokers, "comma-separated Kafka brokers (empty disables the sink)")
	fs.StringVar(&c.KafkaTopic, "kafka-topic", c.KafkaTopic, "Kafka topic for filtered events")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level")
}

// Brokers returns the configured Kafka brokers as a list, or nil when the
// sink is disabled.
func (c *Config) Brokers() []string {
	if strings.TrimSpace(c.KafkaBrokers) == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}
