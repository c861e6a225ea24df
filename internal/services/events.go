package services

import (
	"encoding/json"
	"log"
	"time"
)

// NotificationExchange is the AMQP exchange the notification gateway reads from.
const NotificationExchange = "vouch.events"

// Notification kinds published to the gateway.
const (
	NotificationRankUp      = "rank_up"
	NotificationMutualVouch = "mutual_vouch"
)

// EventPublisher is the outbound side of the notification gateway.
type EventPublisher interface {
	Publish(exchange, routingKey string, body []byte) error
}

// Notification is the JSON body published for each event.
type Notification struct {
	Type        string    `json:"type"`
	UserID      string    `json:"user_id"`
	OtherUserID string    `json:"other_user_id,omitempty"`
	OldRank     string    `json:"old_rank,omitempty"`
	NewRank     string    `json:"new_rank,omitempty"`
	At          time.Time `json:"at"`
}

// RoutingKey is "vouch.<type>".
func (n Notification) RoutingKey() string {
	return "vouch." + n.Type
}

type notifier struct {
	publisher EventPublisher
}

// send publishes after the transaction committed. Failures are logged only;
// the ledger change already happened.
func (n notifier) send(notes []Notification) {
	if len(notes) == 0 {
		return
	}
	if n.publisher == nil {
		log.Printf("Event publisher is not initialized. Skipping %d notification(s).", len(notes))
		return
	}
	for _, note := range notes {
		body, err := json.Marshal(note)
		if err != nil {
			log.Printf("Failed to marshal %s notification: %v", note.Type, err)
			continue
		}
		if err := n.publisher.Publish(NotificationExchange, note.RoutingKey(), body); err != nil {
			log.Printf("Warning: failed to publish %s notification for user %s: %v", note.Type, note.UserID, err)
			continue
		}
		log.Printf("Published %s notification for user %s", note.Type, note.UserID)
	}
}
