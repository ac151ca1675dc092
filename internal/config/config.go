package config

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/diogoX451/jackson/internal/core/domain"
)

type AudioConfig struct {
	Driver         string `mapstructure:"driver"`
	Device         string `mapstructure:"device"`
	JackServerName string `mapstructure:"jack_server_name"`
	SampleRate     int    `mapstructure:"sample_rate"`
	BufferSize     int    `mapstructure:"buffer_size"`
	StartJack      bool   `mapstructure:"start_jack"`
}

type ServerSection struct {
	Host         string `mapstructure:"host"`
	JackTripPort int    `mapstructure:"jacktrip_port"`
	APIPort      int    `mapstructure:"api_port"`
}

type RetryConfig struct {
	Attempts int           `mapstructure:"attempts"`
	Interval time.Duration `mapstructure:"interval"`
}

type NATSConfig struct {
	URL           string `mapstructure:"url"`
	MaxReconnects int    `mapstructure:"max_reconnects"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type ServerConfig struct {
	Audio  AudioConfig   `mapstructure:"audio"`
	Server ServerSection `mapstructure:"server"`
	Retry  RetryConfig   `mapstructure:"retry"`
	NATS   NATSConfig    `mapstructure:"nats"`
	Redis  RedisConfig   `mapstructure:"redis"`
	Log    LogConfig     `mapstructure:"log"`
}

// PortsConfig maps capture channels to playback channels, in the order
// they appear in the file. For send the key is a local capture channel
// and the value a playback channel on the server. For receive the key is
// a capture channel on the server and the value a local playback channel.
type PortsConfig struct {
	Send    Channels `yaml:"send"`
	Receive Channels `yaml:"receive"`
}

type ClientConfig struct {
	Name   string        `mapstructure:"name"`
	Audio  AudioConfig   `mapstructure:"audio"`
	Server ServerSection `mapstructure:"server"`
	Ports  PortsConfig   `mapstructure:"-"`
	Retry  RetryConfig   `mapstructure:"retry"`
	API    RetryConfig   `mapstructure:"api"`
	NATS   NATSConfig    `mapstructure:"nats"`
	Log    LogConfig     `mapstructure:"log"`
}

// APIURL is the base URL of the server's HTTP API.
func (c *ClientConfig) APIURL() string {
	return "http://" + net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.APIPort))
}

// Channels is an ordered channel mapping. Plain maps lose the order the
// bridge channels are assigned in.
type Channels domain.ChannelIntent

func (c *Channels) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode && value.Tag == "!!null" {
		*c = nil
		return nil
	}
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping of capture channel to playback channel", value.Line)
	}

	out := make(Channels, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		key, val := value.Content[i], value.Content[i+1]
		var pair domain.ChannelPair
		if err := key.Decode(&pair.From); err != nil {
			return fmt.Errorf("line %d: channel %q: %w", key.Line, key.Value, err)
		}
		if err := val.Decode(&pair.To); err != nil {
			return fmt.Errorf("line %d: channel %q: %w", val.Line, val.Value, err)
		}
		out = append(out, pair)
	}
	*c = out
	return nil
}

func (c Channels) Intent() domain.ChannelIntent { return domain.ChannelIntent(c) }

// Flags returns the command-line overrides for a command. The config
// file defaults to "<name>.yaml".
func Flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.StringP("config", "c", name+".yaml", "path to the YAML config file")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.Bool("start-jack", true, "start jackd for this machine")
	fs.String("nats-url", "", "NATS server for wiring events")
	return fs
}

var flagKeys = map[string]string{
	"log-level":  "log.level",
	"start-jack": "audio.start_jack",
	"nats-url":   "nats.url",
}

func newViper(fs *pflag.FlagSet) (*viper.Viper, []byte, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("JACKSON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := "config.yaml"
	if fs != nil {
		for name, key := range flagKeys {
			if flag := fs.Lookup(name); flag != nil {
				if err := v.BindPFlag(key, flag); err != nil {
					return nil, nil, err
				}
			}
		}
		if p, err := fs.GetString("config"); err == nil && p != "" {
			path = p
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read config: %w", err)
	}
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return v, data, nil
}

func setCommonDefaults(v *viper.Viper) {
	v.SetDefault("audio.driver", "alsa")
	v.SetDefault("audio.device", "")
	v.SetDefault("audio.start_jack", true)

	v.SetDefault("server.jacktrip_port", 4464)
	v.SetDefault("server.api_port", 8000)

	v.SetDefault("retry.interval", 100*time.Millisecond)

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.max_reconnects", 10)

	v.SetDefault("log.level", "info")
}

func LoadServer(fs *pflag.FlagSet) (*ServerConfig, error) {
	v, _, err := newViper(fs)
	if err != nil {
		return nil, err
	}

	setCommonDefaults(v)
	v.SetDefault("audio.jack_server_name", "JacksonServer")
	v.SetDefault("audio.sample_rate", 48000)
	v.SetDefault("audio.buffer_size", 256)
	v.SetDefault("server.host", "")
	v.SetDefault("retry.attempts", 20)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 24*time.Hour)

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func LoadClient(fs *pflag.FlagSet) (*ClientConfig, error) {
	v, data, err := newViper(fs)
	if err != nil {
		return nil, err
	}

	setCommonDefaults(v)
	v.SetDefault("name", "")
	v.SetDefault("audio.jack_server_name", "JacksonClient")
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("retry.attempts", 100)
	v.SetDefault("api.attempts", 3)
	v.SetDefault("api.interval", 500*time.Millisecond)

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	var doc struct {
		Ports PortsConfig `yaml:"ports"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse ports: %w", err)
	}
	cfg.Ports = doc.Ports

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *ServerConfig) Validate() error {
	var err error
	if c.Audio.JackServerName == "" {
		err = multierr.Append(err, errors.New("audio.jack_server_name is required"))
	}
	if c.Audio.StartJack && c.Audio.Driver == "" {
		err = multierr.Append(err, errors.New("audio.driver is required to start jack"))
	}
	if !domain.SupportedSampleRate(c.Audio.SampleRate) {
		err = multierr.Append(err, fmt.Errorf("audio.sample_rate %d is not supported (44100 or 48000)", c.Audio.SampleRate))
	}
	if c.Audio.BufferSize <= 0 {
		err = multierr.Append(err, fmt.Errorf("audio.buffer_size must be positive, got %d", c.Audio.BufferSize))
	}
	err = multierr.Append(err, validatePort("server.jacktrip_port", c.Server.JackTripPort))
	err = multierr.Append(err, validatePort("server.api_port", c.Server.APIPort))
	return err
}

func (c *ClientConfig) Validate() error {
	var err error
	switch {
	case c.Name == "":
		err = multierr.Append(err, errors.New("name is required"))
	case c.Name == domain.SystemClient:
		err = multierr.Append(err, fmt.Errorf("name %q is reserved for hardware ports", c.Name))
	case strings.Contains(c.Name, ":"):
		err = multierr.Append(err, fmt.Errorf("name %q must not contain ':'", c.Name))
	}
	if c.Audio.JackServerName == "" {
		err = multierr.Append(err, errors.New("audio.jack_server_name is required"))
	}
	if c.Audio.StartJack && c.Audio.Driver == "" {
		err = multierr.Append(err, errors.New("audio.driver is required to start jack"))
	}
	if c.Server.Host == "" {
		err = multierr.Append(err, errors.New("server.host is required"))
	}
	err = multierr.Append(err, validatePort("server.jacktrip_port", c.Server.JackTripPort))
	err = multierr.Append(err, validatePort("server.api_port", c.Server.APIPort))
	if len(c.Ports.Send)+len(c.Ports.Receive) == 0 {
		err = multierr.Append(err, errors.New("ports: at least one send or receive channel is required"))
	}
	return err
}

func validatePort(key string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s %d out of range 1..65535", key, port)
	}
	return nil
}
