package meduza

import (
	"context"
	"io"
	"time"

	"github.com/diwise/meduza/pkg/meduza/transport"
	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	yaml "gopkg.in/yaml.v2"
)

type EndpointConfig struct {
	Address        string        `yaml:"address"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
	ReadTimeout    time.Duration `yaml:"readTimeout"`
	WriteTimeout   time.Duration `yaml:"writeTimeout"`
	MaxIdle        int           `yaml:"maxIdle"`
	MaxActive      int           `yaml:"maxActive"`
}

func (e EndpointConfig) poolOptions() []transport.PoolOption {
	options := []transport.PoolOption{}

	if e.ConnectTimeout > 0 {
		options = append(options, transport.ConnectTimeout(e.ConnectTimeout))
	}
	if e.ReadTimeout > 0 {
		options = append(options, transport.ReadTimeout(e.ReadTimeout))
	}
	if e.WriteTimeout > 0 {
		options = append(options, transport.WriteTimeout(e.WriteTimeout))
	}
	if e.MaxIdle > 0 {
		options = append(options, transport.MaxIdle(e.MaxIdle))
	}
	if e.MaxActive > 0 {
		options = append(options, transport.MaxActive(e.MaxActive))
	}

	return options
}

type Config struct {
	Master  EndpointConfig  `yaml:"master"`
	Replica *EndpointConfig `yaml:"replica"`
	Control string          `yaml:"control"`
	Debug   bool            `yaml:"debug"`
}

func LoadConfiguration(data io.Reader) (*Config, error) {
	buf, err := io.ReadAll(data)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	err = yaml.Unmarshal(buf, cfg)

	return cfg, err
}

// WithEnvironment overrides the addresses and the debug flag with MEDUZA_MASTER_ADDR,
// MEDUZA_REPLICA_ADDR, MEDUZA_CONTROL_URL and MEDUZA_DEBUG when those are set
func (cfg *Config) WithEnvironment(ctx context.Context) *Config {
	cfg.Master.Address = env.GetVariableOrDefault(ctx, "MEDUZA_MASTER_ADDR", cfg.Master.Address)

	replica := ""
	if cfg.Replica != nil {
		replica = cfg.Replica.Address
	}

	if addr := env.GetVariableOrDefault(ctx, "MEDUZA_REPLICA_ADDR", replica); addr != "" {
		if cfg.Replica == nil {
			cfg.Replica = &EndpointConfig{}
		}
		cfg.Replica.Address = addr
	}

	cfg.Control = env.GetVariableOrDefault(ctx, "MEDUZA_CONTROL_URL", cfg.Control)

	debug := "false"
	if cfg.Debug {
		debug = "true"
	}
	cfg.Debug = env.GetVariableOrDefault(ctx, "MEDUZA_DEBUG", debug) == "true"

	return cfg
}

// Connect creates connection pools for the configured endpoints and returns a session using them
func Connect(cfg *Config) Session {
	master := transport.NewPool(cfg.Master.Address, cfg.Master.poolOptions()...)

	var replica transport.Connector
	if cfg.Replica != nil && cfg.Replica.Address != "" {
		replica = transport.NewPool(cfg.Replica.Address, cfg.Replica.poolOptions()...)
	}

	debug := "false"
	if cfg.Debug {
		debug = "true"
	}

	return NewSession(master, replica, Debug(debug))
}
