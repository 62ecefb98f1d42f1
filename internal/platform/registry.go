package platform

import (
	"fmt"
	"sort"

	"crosslister/internal/config"
	"crosslister/pkg/log"
)

// Registry holds the configured adapters keyed by platform name
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds adapters for every enabled platform in the config.
// Unknown platform names are rejected so a typo in config fails fast.
func NewRegistry(platforms map[string]config.PlatformConfig) (*Registry, error) {
	r := &Registry{adapters: make(map[string]Adapter)}

	for name, cfg := range platforms {
		if !cfg.Enabled {
			continue
		}

		adapter, err := buildAdapter(name, cfg)
		if err != nil {
			return nil, fmt.Errorf("build %s adapter: %w", name, err)
		}
		r.adapters[name] = adapter

		log.WithFields(map[string]interface{}{
			"platform": name,
			"rpm":      cfg.RequestsPerMinute,
			"burst":    cfg.BurstLimit,
		}).Info("Platform adapter registered")
	}

	return r, nil
}

func buildAdapter(name string, cfg config.PlatformConfig) (Adapter, error) {
	switch name {
	case PlatformMercari:
		return NewMercariAdapter(MercariConfig{
			APIKey:      cfg.Credential("api_key"),
			Secret:      cfg.Credential("secret"),
			AccessToken: cfg.Credential("access_token"),
			Sandbox:     cfg.Sandbox,
			BaseURL:     cfg.BaseURL,
			Timeout:     cfg.Timeout,
		}), nil
	case PlatformVinted:
		return NewVintedAdapter(VintedConfig{
			ClientID:     cfg.Credential("client_id"),
			ClientSecret: cfg.Credential("client_secret"),
			AccessToken:  cfg.Credential("access_token"),
			RefreshToken: cfg.Credential("refresh_token"),
			BaseURL:      cfg.BaseURL,
			Timeout:      cfg.Timeout,
		})
	case PlatformFacebook:
		return NewFacebookAdapter(FacebookConfig{
			AppID:       cfg.Credential("app_id"),
			AppSecret:   cfg.Credential("app_secret"),
			AccessToken: cfg.Credential("access_token"),
			PageID:      cfg.Credential("page_id"),
			CatalogID:   cfg.Credential("catalog_id"),
			BaseURL:     cfg.BaseURL,
			Timeout:     cfg.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown platform: %s", name)
	}
}

// Register adds or replaces an adapter, mainly used by tests
func (r *Registry) Register(adapter Adapter) {
	r.adapters[adapter.Name()] = adapter
}

// Get returns the adapter for a platform
func (r *Registry) Get(name string) (Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

// Names returns the registered platform names in stable order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every registered adapter keyed by name
func (r *Registry) All() map[string]Adapter {
	out := make(map[string]Adapter, len(r.adapters))
	for name, a := range r.adapters {
		out[name] = a
	}
	return out
}
