package models

// Message is a single conversation message. The push core treats message
// bodies as opaque; this type exists for the REST layer and durable storage.
type Message struct {
	ID           string `json:"id"`
	Conversation string `json:"conversation"`
	// Author is the id of the posting account.
	Author string `json:"author"`
	// TS is the message timestamp (ns).
	TS   int64  `json:"ts,omitempty"`
	Body string `json:"body"`
	// Mentions lists account ids that should receive a personal
	// notification for this message.
	Mentions []string `json:"mentions,omitempty"`
}
