package carriers

import (
	"context"
	"freight-route-service/internal/ports"
)

// NullFetcher stands in for providers with no integration. It always
// succeeds with zero candidates.
type NullFetcher struct {
	ID string
}

func (n NullFetcher) Provider() string { return n.ID }

func (NullFetcher) Capabilities() ports.CarrierCapabilities { return ports.CarrierCapabilities{} }

func (NullFetcher) Fetch(context.Context, ports.FetchRequest) ports.FetchOutcome {
	return ports.FetchOK(nil)
}
