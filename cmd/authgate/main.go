package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/dgellow/authgate/internal"
	"github.com/dgellow/authgate/internal/config"
	"github.com/dgellow/authgate/internal/log"
)

var BuildVersion = "dev"

func generateDefaultConfig(path string) error {
	defaultConfig := map[string]any{
		"version": "v1",
		"server": map[string]any{
			"addr":           ":4000",
			"baseURL":        "https://auth.yourcompany.com",
			"allowedOrigins": []string{"http://localhost:3000"},
		},
		"upstream": map[string]any{
			"apiUrl":    "https://api.clerk.com/v1",
			"secretKey": map[string]string{"$env": "UPSTREAM_SECRET_KEY"},
			"timeout":   "10s",
		},
		"tickets": map[string]any{
			"maxTtl":     "10m",
			"signingKey": map[string]string{"$env": "TICKET_SIGNING_KEY"},
		},
		"storage": map[string]any{
			"kind": "memory",
		},
		"admin": map[string]any{
			"enabled":  true,
			"username": "admin",
			"password": map[string]string{"$env": "ADMIN_PASSWORD"},
		},
	}

	data, err := json.MarshalIndent(defaultConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func main() {
	conf := flag.String("config", "", "path to config file (required)")
	version := flag.Bool("version", false, "print version and exit")
	help := flag.Bool("help", false, "print help and exit")
	configInit := flag.String("config-init", "", "generate default config file at specified path")
	validate := flag.Bool("validate", false, "validate config file and exit")
	flag.Parse()

	if *help {
		flag.Usage()
		return
	}
	if *version {
		fmt.Println(BuildVersion)
		return
	}
	if *configInit != "" {
		if err := generateDefaultConfig(*configInit); err != nil {
			log.LogError("Failed to generate config: %v", err)
			os.Exit(1)
		}
		fmt.Printf("Generated default config at: %s\n", *configInit)
		return
	}

	if *conf == "" {
		fmt.Fprintf(os.Stderr, "Error: -config flag is required\n")
		fmt.Fprintf(os.Stderr, "Run with -help for usage information\n")
		os.Exit(1)
	}

	cfg, err := config.Load(*conf)
	if err != nil {
		log.LogError("Failed to load config: %v", err)
		os.Exit(1)
	}

	if *validate {
		fmt.Println("Config OK")
		return
	}

	log.LogInfoWithFields("main", "Starting authgate", map[string]any{
		"version": BuildVersion,
		"config":  *conf,
	})

	app, err := internal.NewAuthGate(context.Background(), cfg)
	if err != nil {
		log.LogError("Failed to build application: %v", err)
		os.Exit(1)
	}

	if err := app.Run(); err != nil {
		log.LogError("Application exited with error: %v", err)
		os.Exit(1)
	}
}
