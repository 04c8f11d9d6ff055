package incidents

import (
	"context"
	"errors"
	"fmt"

	"github.com/richxcame/navigator/pkg/httpclient"
	"github.com/richxcame/navigator/pkg/resilience"
	"github.com/richxcame/navigator/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
)

const tracerName = "navigator/incidents"

// ErrUnknownType is returned when creating a hazard of a type outside the catalog.
var ErrUnknownType = errors.New("unknown incident type")

// Service is the external hazard service.
type Service interface {
	List(ctx context.Context) ([]Hazard, error)
	Create(ctx context.Context, req CreateRequest) (*Hazard, error)
	Rate(ctx context.Context, id int64, positive bool) error
}

// HTTPService implements Service over HTTP behind a circuit breaker.
// Calls are never retried: a repeated rating would be counted twice.
type HTTPService struct {
	client  *httpclient.Client
	breaker *resilience.CircuitBreaker
}

func NewHTTPService(client *httpclient.Client, breaker *resilience.CircuitBreaker) *HTTPService {
	return &HTTPService{client: client, breaker: breaker}
}

func (s *HTTPService) List(ctx context.Context) ([]Hazard, error) {
	return tracing.TraceExternalCall(ctx, tracerName, "incidents", "list", func(ctx context.Context) ([]Hazard, error) {
		wire, err := resilience.Call(ctx, s.breaker, func(ctx context.Context) ([]wireIncident, error) {
			var out []wireIncident
			if err := s.client.GetJSON(ctx, "/incidents", nil, &out); err != nil {
				return nil, err
			}
			return out, nil
		})
		if err != nil {
			return nil, fmt.Errorf("list incidents: %w", err)
		}

		hazards := make([]Hazard, 0, len(wire))
		for _, w := range wire {
			hazards = append(hazards, w.toHazard())
		}
		tracing.AddSpanAttributes(ctx, tracing.HazardCountKey.Int(len(hazards)))
		return hazards, nil
	})
}

func (s *HTTPService) Create(ctx context.Context, req CreateRequest) (*Hazard, error) {
	incidentType, ok := TypeByID(req.TypeID)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, req.TypeID)
	}

	return tracing.TraceExternalCall(ctx, tracerName, "incidents", "create", func(ctx context.Context) (*Hazard, error) {
		tracing.AddSpanAttributes(ctx, tracing.LocationAttributes(req.Latitude, req.Longitude)...)
		created, err := resilience.Call(ctx, s.breaker, func(ctx context.Context) (*wireIncident, error) {
			var out wireIncident
			err := s.client.PostJSON(ctx, "/incidents", wireIncidentRequest{
				TypeID:    incidentType.ID,
				TypeName:  incidentType.Name,
				Latitude:  req.Latitude,
				Longitude: req.Longitude,
			}, &out)
			if err != nil {
				return nil, err
			}
			return &out, nil
		})
		if err != nil {
			return nil, fmt.Errorf("create incident: %w", err)
		}

		hazard := created.toHazard()
		// The service may answer with only an id.
		if hazard.TypeID == 0 {
			hazard.TypeID = incidentType.ID
			hazard.CategoryID = incidentType.CategoryID
			hazard.Label = incidentType.Name
			hazard.Latitude = req.Latitude
			hazard.Longitude = req.Longitude
		}
		return &hazard, nil
	})
}

func (s *HTTPService) Rate(ctx context.Context, id int64, positive bool) error {
	return tracing.TraceExternalAPI(ctx, tracerName, "incidents", "rate", func(ctx context.Context) error {
		tracing.AddSpanAttributes(ctx, tracing.HazardIDKey.Int64(id), attribute.Bool("incident.positive", positive))
		_, err := s.breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
			return nil, s.client.PostJSON(ctx, fmt.Sprintf("/incidents/%d/rate", id), wireRating{Positive: positive}, nil)
		})
		if err != nil {
			return fmt.Errorf("rate incident %d: %w", id, err)
		}
		return nil
	})
}
