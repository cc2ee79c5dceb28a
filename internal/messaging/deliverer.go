package messaging

import (
	"context"

	"github.com/inkworks/booking-broker/internal/events"
)

// ClientDeliverer adapts a channel Client to the outbox dispatcher so queued
// rows go out over the same transport as direct sends.
type ClientDeliverer struct {
	client Client
}

// NewClientDeliverer creates a deliverer backed by the given channel client.
func NewClientDeliverer(client Client) *ClientDeliverer {
	return &ClientDeliverer{client: client}
}

// Deliver sends one outbox row. Errors bubble up so the dispatcher can
// schedule the retry.
func (d *ClientDeliverer) Deliver(ctx context.Context, msg events.OutboxMessage) error {
	_, err := d.client.Send(ctx, msg.Payload)
	return err
}
