package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// MsgSubscriber is the subset of *nats.Conn used for subscriptions.
type MsgSubscriber interface {
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
}

type shipmentCreated struct {
	ShipmentID int64 `json:"shipment_id"`
}

// ShipmentCreatedHandler invokes refresh for each shipment-created event.
// Refreshes derive from BaseContext, so cancelling it stops in-flight work.
type ShipmentCreatedHandler struct {
	Refresh     func(ctx context.Context, shipmentID int64) error
	BaseContext context.Context
	Timeout     time.Duration
	Log         *zap.Logger
}

// HandleMsg accepts either a published Envelope or a bare payload.
func (h *ShipmentCreatedHandler) HandleMsg(msg *nats.Msg) {
	id, err := decodeShipmentID(msg.Data)
	if err != nil {
		h.Log.Warn("discarding shipment event", zap.String("subject", msg.Subject), zap.Error(err))
		return
	}

	timeout := h.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	base := h.BaseContext
	if base == nil {
		base = context.Background()
	}
	if err := base.Err(); err != nil {
		h.Log.Warn("skipping shipment event after shutdown", zap.Int64("shipment_id", id), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(base, timeout)
	defer cancel()

	if err := h.Refresh(ctx, id); err != nil {
		h.Log.Error("shipment route refresh failed", zap.Int64("shipment_id", id), zap.Error(err))
		return
	}
	h.Log.Info("shipment routes refreshed", zap.Int64("shipment_id", id))
}

// Subscribe registers the handler on subject.
func (h *ShipmentCreatedHandler) Subscribe(conn MsgSubscriber, subject string) (*nats.Subscription, error) {
	if h.Refresh == nil {
		return nil, errors.New("shipment subscriber: refresh func is required")
	}
	if h.Log == nil {
		h.Log = zap.NewNop()
	}
	sub, err := conn.Subscribe(subject, h.HandleMsg)
	if err != nil {
		return nil, fmt.Errorf("shipment subscriber: subscribe %s: %w", subject, err)
	}
	return sub, nil
}

func decodeShipmentID(data []byte) (int64, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return 0, fmt.Errorf("decode event: %w", err)
	}

	body := data
	if len(env.Payload) > 0 {
		body = env.Payload
	}

	var p shipmentCreated
	if err := json.Unmarshal(body, &p); err != nil {
		return 0, fmt.Errorf("decode shipment payload: %w", err)
	}
	if p.ShipmentID <= 0 {
		return 0, errors.New("decode shipment payload: shipment_id must be positive")
	}
	return p.ShipmentID, nil
}
