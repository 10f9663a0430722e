// Package protocol defines the named events exchanged over a client
// connection and the codecs that frame them.
package protocol

// Inbound events (client -> server)
const (
	MsgJoin    = "playerJoin"
	MsgMove    = "playerMove"
	MsgCollect = "nutrientCollected"
)

// Outbound events (server -> client)
const (
	MsgInit              = "init"
	MsgNewPlayer         = "newPlayer"
	MsgInvalidMove       = "invalidMove"
	MsgPlayerMoved       = "playerMoved"
	MsgReachEgg          = "reachEgg"
	MsgPlayerUpdated     = "playerUpdated"
	MsgLeaderboardUpdate = "leaderboardUpdate"
	MsgNutrientUpdate    = "nutrientUpdate"
	MsgPlayerLeft        = "playerLeft"
)

// JoinPayload is sent once per connection. Both fields are optional.
type JoinPayload struct {
	Name  string `json:"name,omitempty"`
	Color string `json:"color,omitempty"`
}

// MovePayload is the client's proposed authoritative position.
type MovePayload struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Angle       float64 `json:"angle"`
	TargetAngle float64 `json:"targetAngle"`
}

// CollectPayload is the object form of a collection request. Clients may
// also send the bare nutrient id as the event data.
type CollectPayload struct {
	NutrientID string `json:"nutrientId"`
}
