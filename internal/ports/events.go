package ports

import "context"

const (
	TopicRoutesUpdated          = "routes.updated"
	TopicRecommendationsCreated = "recommendations.created"
	TopicShipmentsCreated       = "shipments.created"
)

// Port: best-effort notification of downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }
