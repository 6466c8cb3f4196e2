package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/diwise/meduza/pkg/meduza"
)

type FlagType int
type FlagMap map[FlagType]string

const (
	configPath FlagType = iota
	masterAddress
	replicaAddress
	controlURL
	primaryName
)

func parseExternalConfig(args []string, flags FlagMap) (FlagMap, []string, error) {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)

	cfgPath := fs.String("config", flags[configPath], "path to a yaml configuration file")
	master := fs.String("master", flags[masterAddress], "address of the master server")
	replica := fs.String("replica", flags[replicaAddress], "address of the replica server")
	control := fs.String("control", flags[controlURL], "url of the control api")
	primary := fs.String("primary", flags[primaryName], "name of the primary key property used by count")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	return FlagMap{
		configPath:     *cfgPath,
		masterAddress:  *master,
		replicaAddress: *replica,
		controlURL:     *control,
		primaryName:    *primary,
	}, fs.Args(), nil
}

// loadConfiguration reads the optional config file, applies the environment
// and then lets explicit flags override both
func loadConfiguration(ctx context.Context, flags FlagMap) (*meduza.Config, error) {
	cfg := &meduza.Config{}

	if flags[configPath] != "" {
		f, err := os.Open(flags[configPath])
		if err != nil {
			return nil, fmt.Errorf("failed to open configuration file: %w", err)
		}
		defer f.Close()

		cfg, err = meduza.LoadConfiguration(f)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
	}

	cfg.WithEnvironment(ctx)

	if flags[masterAddress] != "" {
		cfg.Master.Address = flags[masterAddress]
	}

	if flags[replicaAddress] != "" {
		if cfg.Replica == nil {
			cfg.Replica = &meduza.EndpointConfig{}
		}
		cfg.Replica.Address = flags[replicaAddress]
	}

	if flags[controlURL] != "" {
		cfg.Control = flags[controlURL]
	}

	if cfg.Master.Address == "" {
		cfg.Master.Address = "localhost:9977"
	}

	if cfg.Control == "" {
		cfg.Control = "http://localhost:9966"
	}

	return cfg, nil
}
