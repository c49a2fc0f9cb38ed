// Package local implements the cache itself as a provider: it has no remote
// fetch capability, so every sync against it degrades to the cached series.
package local

import (
	"github.com/filippobounous/fbinv/internal/clients"
	"github.com/filippobounous/fbinv/internal/interfaces"
	"github.com/filippobounous/fbinv/internal/models"
)

// Provider is the cache-only provider.
type Provider struct {
	clients.UnsupportedProvider
}

// New returns the local provider.
func New() *Provider {
	return &Provider{UnsupportedProvider: clients.UnsupportedProvider{ProviderName: models.ProviderLocal}}
}

var _ interfaces.HistoryProvider = (*Provider)(nil)
