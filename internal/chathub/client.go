package chathub

import "strangerchat/backend/internal/models"

// Client is one connected event stream of an actor (a websocket, for example).
// An actor may hold several clients at once; every one of them receives the
// actor's events.
type Client interface {
	// GetActorID returns the actor the stream belongs to.
	GetActorID() string

	// GetSendChannel returns the channel the hub pushes events into.
	// The hub never blocks on it: a full channel gets the client dropped.
	GetSendChannel() chan<- models.Event

	// Run starts the client's read and write pumps.
	Run()
	// Close shuts the connection down. It is safe to call more than once.
	Close()
}
