package email

import (
	"fmt"

	"github.com/shopforge/shopforge/internal/events"
)

// Listener binds an event type to an outbound message. When the event
// arrives and Filter (if set) passes, the listener renders a message that is
// queued for delivery.
type Listener struct {
	// Type labels the resulting message, e.g. "verification".
	Type string
	// Event is the bus event the listener reacts to.
	Event events.Type
	// Filter may veto individual events. Nil means all events pass.
	Filter func(events.Event) bool
	// Recipient resolves the destination address. Returning "" drops the
	// event.
	Recipient func(events.Event) string
	// Subject and Body render the plain-text message.
	Subject func(events.Event) string
	Body    func(events.Event) string
}

func payloadString(evt events.Event, key string) string {
	s, _ := evt.Payload[key].(string)
	return s
}

// BaseURLs configures the links embedded in the built-in messages.
type BaseURLs struct {
	// Storefront is the public site prefix for verification and reset
	// links, e.g. "https://shop.example.com".
	Storefront string
}

// BuiltinListeners returns the core notification set: account verification,
// password reset and order confirmation.
func BuiltinListeners(urls BaseURLs) []Listener {
	return []Listener{
		{
			Type:      "verification",
			Event:     events.CustomerRegistered,
			Recipient: func(evt events.Event) string { return payloadString(evt, "email") },
			Subject:   func(events.Event) string { return "Please verify your email address" },
			Body: func(evt events.Event) string {
				return fmt.Sprintf(
					"Welcome!\n\nPlease confirm your email address by opening the link below:\n\n%s/verify?token=%s\n",
					urls.Storefront, payloadString(evt, "token"))
			},
		},
		{
			Type:      "password-reset",
			Event:     events.CustomerPasswordResetRequested,
			Recipient: func(evt events.Event) string { return payloadString(evt, "email") },
			Subject:   func(events.Event) string { return "Password reset requested" },
			Body: func(evt events.Event) string {
				return fmt.Sprintf(
					"A password reset was requested for your account.\n\nReset it here:\n\n%s/reset-password?token=%s\n\nIf you did not request this, ignore this message.\n",
					urls.Storefront, payloadString(evt, "token"))
			},
		},
		{
			Type:      "order-confirmation",
			Event:     events.OrderPlaced,
			Recipient: func(evt events.Event) string { return payloadString(evt, "email") },
			Subject: func(evt events.Event) string {
				return fmt.Sprintf("Order %s confirmed", payloadString(evt, "order_code"))
			},
			Body: func(evt events.Event) string {
				return fmt.Sprintf(
					"Thank you for your order %s.\n\nWe will let you know when it ships.\n",
					payloadString(evt, "order_code"))
			},
		},
	}
}
