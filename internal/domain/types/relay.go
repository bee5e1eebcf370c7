package types

import "time"

// RelayMessage is one ciphertext delivered by the relay on a subscribed topic.
type RelayMessage struct {
	Topic       Topic     `json:"topic"`
	Message     string    `json:"message"`
	Tag         int       `json:"tag"`
	PublishedAt time.Time `json:"publishedAt"`
	Attestation string    `json:"attestation,omitempty"`
}

// PublishOptions tune a relay publish.
type PublishOptions struct {
	Tag    int
	TTL    time.Duration
	Prompt bool
}
