package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/iTrooz/netkit/internal/buildmode"
	"github.com/iTrooz/netkit/internal/client"
	"github.com/iTrooz/netkit/internal/config"
	"github.com/iTrooz/netkit/internal/proxy"
)

func main() {
	if buildmode.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	configPath := "configs/config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	server, err := setup(configPath)
	if err != nil {
		logrus.Fatalf("%v", err)
	}

	if err := server.Start(); err != nil {
		logrus.Fatalf("Server failed: %v", err)
	}
}

// setup loads the configuration and wires the client into a proxy server
func setup(configPath string) (*proxy.Server, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	netkit, err := client.Build(cfg.Client, buildmode.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP client: %w", err)
	}

	server, err := proxy.New(cfg, netkit)
	if err != nil {
		return nil, fmt.Errorf("failed to create proxy server: %w", err)
	}
	return server, nil
}
