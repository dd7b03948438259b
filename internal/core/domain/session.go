package domain

import (
	"time"
)

type Role string

const (
	RoleStreamer Role = "streamer"
	RoleViewer   Role = "viewer"
)

// DefaultUsername is the display name bound to a session when the identity
// collaborator provides none.
const DefaultUsername = "Anonymous"

type ConnectionID string

// ChatMessage is one chat post as recorded and replayed by the hub.
type ChatMessage struct {
	Username string `json:"username"`
	Text     string `json:"text"`
}

// Bid is one accepted bid. Timestamp is assigned at acceptance time by
// whichever side records it.
type Bid struct {
	Bidder    string    `json:"bidder"`
	Amount    int       `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

// StartingPrice is the auction price before any bid is accepted.
const StartingPrice = 1
