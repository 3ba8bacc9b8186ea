package events

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus()

	var received *Event
	var callCount int
	bus.Subscribe(EventRentalCreated, func(event *Event) error {
		received = event
		callCount++
		return nil
	})

	payload := BookingEventPayload{RentalID: 4, Code: "RENT-0000ABCD", Status: "ACTIVE", FinalPayable: Money(decimal.NewFromInt(4500))}
	require.NoError(t, bus.PublishJSON(EventRentalCreated, payload))

	assert.Equal(t, 1, callCount)
	require.NotNil(t, received)
	assert.Equal(t, EventRentalCreated, received.Type)
	assert.False(t, received.CreatedAt.IsZero())

	var decoded BookingEventPayload
	require.NoError(t, json.Unmarshal(received.Payload, &decoded))
	assert.Equal(t, "RENT-0000ABCD", decoded.Code)
	assert.Equal(t, "4500.00", decoded.FinalPayable)

	// other types do not reach the handler
	require.NoError(t, bus.PublishJSON(EventRentalReturned, payload))
	assert.Equal(t, 1, callCount)
}

func TestEventBusAllEvents(t *testing.T) {
	bus := NewEventBus()

	var types []string
	bus.Subscribe(AllEvents, func(event *Event) error {
		types = append(types, event.Type)
		return nil
	})

	require.NoError(t, bus.PublishJSON(EventReservationCreated, struct{}{}))
	require.NoError(t, bus.PublishJSON(EventReservationCancelled, struct{}{}))
	assert.Equal(t, []string{EventReservationCreated, EventReservationCancelled}, types)
}

func TestEventBusHandlerErrors(t *testing.T) {
	bus := NewEventBus()
	boom := errors.New("boom")

	var called bool
	bus.Subscribe(EventRentalCancelled, func(*Event) error { return boom })
	bus.Subscribe(EventRentalCancelled, func(*Event) error { called = true; return nil })

	err := bus.PublishJSON(EventRentalCancelled, struct{}{})
	assert.ErrorIs(t, err, boom)
	assert.True(t, called, "later handlers still run")
}

func TestPublishJSONNilBus(t *testing.T) {
	var bus *EventBus
	assert.NoError(t, bus.PublishJSON(EventRentalCreated, struct{}{}))
}

func TestPublishJSONMarshalError(t *testing.T) {
	bus := NewEventBus()
	assert.Error(t, bus.PublishJSON(EventRentalCreated, make(chan int)))
}
