package main

import (
	"fmt"

	"github.com/Metabor/salesforce-orm/internal/cli/config"
	"github.com/Metabor/salesforce-orm/sforce"
)

// buildProvider assembles the JWT bearer token provider from configuration
func buildProvider(cfg *config.Config) (*sforce.JWTBearer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	key, err := sforce.LoadPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		return nil, err
	}

	provider := sforce.NewJWTBearer(cfg.Auth.ClientID, cfg.Auth.Username, cfg.LoginURL, key)
	if cfg.Redis.Addr != "" {
		provider.Store = sforce.NewRedisStore(&sforce.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Key:      cfg.Redis.Key,
		})
	}
	return provider, nil
}

// buildClient assembles the REST client from configuration
func buildClient() (*sforce.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return sforce.NewClient(provider, sforce.WithAPIVersion(cfg.APIVersion)), nil
}
