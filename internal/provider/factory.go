// Package provider holds the Provider factory that selects between the
// two conformances, plus their shared subpackages (retry, tokencache).
package provider

import (
	"context"
	"fmt"

	"photoframe/internal/config"
	"photoframe/internal/core"
	"photoframe/internal/provider/drivefs"
	"photoframe/internal/provider/s3cloud"
)

// NewFromConfig constructs and initializes the Provider named by cfg.Provider.
func NewFromConfig(ctx context.Context, cfg *config.Config) (core.Provider, error) {
	var p core.Provider
	switch cfg.Provider {
	case "drivefs":
		p = drivefs.New()
	case "s3cloud":
		p = s3cloud.New()
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}

	providerCfg := core.ProviderConfig{
		CredentialsPath: cfg.ProviderConfig.CredentialsPath,
		TokenPath:       cfg.ProviderConfig.TokenPath,
		Folders:         toFolderSpecs(cfg.ProviderConfig.Folders),
		Bucket:          cfg.ProviderConfig.Bucket,
		Prefix:          cfg.ProviderConfig.Prefix,
		Region:          cfg.ProviderConfig.Region,
		Endpoint:        cfg.ProviderConfig.Endpoint,
		APIBaseURL:      cfg.ProviderConfig.APIBaseURL,
	}
	if err := p.Initialize(ctx, providerCfg); err != nil {
		return nil, err
	}
	return p, nil
}

func toFolderSpecs(specs []config.FolderSpec) []core.FolderSpec {
	out := make([]core.FolderSpec, len(specs))
	for i, s := range specs {
		out[i] = core.FolderSpec{FolderID: s.FolderID, Depth: s.Depth}
	}
	return out
}
