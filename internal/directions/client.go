package directions

import (
	"context"
	"fmt"
	"net/url"

	"github.com/richxcame/navigator/pkg/geo"
	"github.com/richxcame/navigator/pkg/httpclient"
)

// Provider computes routes. The navigator never routes by itself.
type Provider interface {
	GetDirections(ctx context.Context, req Request) (*Response, error)
	// GetUserRoute returns the route the backend kept for the calling user.
	GetUserRoute(ctx context.Context, origin *geo.Point) (*Response, error)
}

// HTTPProvider talks to the directions backend.
type HTTPProvider struct {
	client *httpclient.Client
}

func NewHTTPProvider(client *httpclient.Client) *HTTPProvider {
	return &HTTPProvider{client: client}
}

func (p *HTTPProvider) GetDirections(ctx context.Context, req Request) (*Response, error) {
	query := url.Values{}
	query.Set("origin", formatPoint(req.Origin))
	query.Set("destination", formatPoint(req.Destination))
	query.Set("mode", req.Mode.BackendMode())

	var resp Response
	if err := p.client.GetJSON(ctx, "/directions", query, &resp); err != nil {
		return nil, fmt.Errorf("get directions: %w", err)
	}
	return &resp, nil
}

func (p *HTTPProvider) GetUserRoute(ctx context.Context, origin *geo.Point) (*Response, error) {
	query := url.Values{}
	if origin != nil {
		query.Set("origin", formatPoint(*origin))
	}

	var resp Response
	if err := p.client.GetJSON(ctx, "/user/route", query, &resp); err != nil {
		return nil, fmt.Errorf("get user route: %w", err)
	}
	return &resp, nil
}

func formatPoint(p geo.Point) string {
	return fmt.Sprintf("%g,%g", p.Latitude, p.Longitude)
}
