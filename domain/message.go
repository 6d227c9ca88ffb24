// Package domain contains core concepts of the chat system.
// This file defines Message values and the envelope carried by the bus.
// Messages are immutable once built.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChannelID names an independent namespace for messages.
type ChannelID string

// Sender is the session identity surface handed in by the caller.
// It is display metadata only, never authenticated.
type Sender struct {
	ID          string `cbor:"id"`
	DisplayName string `cbor:"display_name"`
	AvatarRef   string `cbor:"avatar_ref,omitempty"`
	IsBot       bool   `cbor:"is_bot,omitempty"`
}

// Message represents an immutable chat event.
type Message struct {
	ID        string    `cbor:"id"`
	Text      string    `cbor:"text"`
	Sender    Sender    `cbor:"sender"`
	Timestamp time.Time `cbor:"timestamp"`
	Channel   ChannelID `cbor:"channel"`
}

func NewMessage(text string, sender Sender, channel ChannelID, at time.Time) Message {
	return Message{
		ID:        uuid.NewString(),
		Text:      text,
		Sender:    sender,
		Timestamp: at.UTC(),
		Channel:   channel,
	}
}

type EventType string

const (
	MessageEvent EventType = "MESSAGE"
	TypingEvent  EventType = "TYPING"
)

// Typing tells subscribers that a sender started or stopped composing.
type Typing struct {
	Sender  Sender    `cbor:"sender"`
	Channel ChannelID `cbor:"channel"`
	Active  bool      `cbor:"active"`
}

// Envelope is the payload published on a channel.
// Exactly one of Message or Typing is set, according to Type.
type Envelope struct {
	Type    EventType `cbor:"type"`
	Message *Message  `cbor:"message,omitempty"`
	Typing  *Typing   `cbor:"typing,omitempty"`
}

func NewMessageEnvelope(m Message) Envelope {
	return Envelope{Type: MessageEvent, Message: &m}
}

func NewTypingEnvelope(t Typing) Envelope {
	return Envelope{Type: TypingEvent, Typing: &t}
}
