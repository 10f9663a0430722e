package game

import (
	"encoding/json"
	"time"
)

// EventType classifies audit trail entries.
type EventType uint8

const (
	EventTypeUnknown EventType = iota
	EventTypeTick
	EventTypePlayerJoin
	EventTypePlayerLeave
	EventTypeCollect
	EventTypeEgg
	EventTypeKill
	EventTypeRespawn
)

// EventVersion is bumped whenever a payload shape changes.
const EventVersion uint8 = 1

// Event is one line of the audit trail.
type Event struct {
	Version   uint8           `json:"version"`
	Type      EventType       `json:"type"`
	Timestamp int64           `json:"timestamp"` // Unix nano
	Sequence  uint64          `json:"sequence"`
	TickNum   uint64          `json:"tickNum"`
	PlayerID  string          `json:"playerId,omitempty"` // rate limiting key
	Payload   json.RawMessage `json:"payload,omitempty"`
}

func (t EventType) String() string {
	switch t {
	case EventTypeTick:
		return "tick"
	case EventTypePlayerJoin:
		return "player_join"
	case EventTypePlayerLeave:
		return "player_leave"
	case EventTypeCollect:
		return "collect"
	case EventTypeEgg:
		return "egg"
	case EventTypeKill:
		return "kill"
	case EventTypeRespawn:
		return "respawn"
	default:
		return "unknown"
	}
}

// MarshalJSON writes the type by name so the log stays greppable.
func (t EventType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// TickPayload summarises one tick.
type TickPayload struct {
	PlayerCount   int   `json:"playerCount"`
	NutrientCount int   `json:"nutrientCount"`
	Replenished   int   `json:"replenished"`
	Absorptions   int   `json:"absorptions"`
	DurationNs    int64 `json:"durationNs"`
}

// PlayerJoinPayload records a spawn.
type PlayerJoinPayload struct {
	PlayerID   string  `json:"playerId"`
	PlayerName string  `json:"playerName"`
	SpawnX     float64 `json:"spawnX"`
	SpawnY     float64 `json:"spawnY"`
	Color      string  `json:"color"`
}

// PlayerLeavePayload records a disconnect.
type PlayerLeavePayload struct {
	PlayerID string `json:"playerId"`
	Score    int    `json:"score"`
}

// CollectPayload records a nutrient being consumed.
type CollectPayload struct {
	PlayerID   string  `json:"playerId"`
	NutrientID string  `json:"nutrientId"`
	Score      int     `json:"score"`
	Size       float64 `json:"size"`
}

// EggPayload records a scoring visit to the egg.
type EggPayload struct {
	PlayerID string `json:"playerId"`
	Score    int    `json:"score"`
}

// KillPayload records one absorption.
type KillPayload struct {
	KillerID    string `json:"killerId"`
	VictimID    string `json:"victimId"`
	KillerKills int    `json:"killerKills"`
	KillerScore int    `json:"killerScore"`
	VictimScore int    `json:"victimScore"`
}

// RespawnPayload records where an absorbed player reappeared.
type RespawnPayload struct {
	PlayerID string  `json:"playerId"`
	SpawnX   float64 `json:"spawnX"`
	SpawnY   float64 `json:"spawnY"`
}

// EncodePayload marshals a payload, returning nil on failure.
func EncodePayload(payload any) json.RawMessage {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}

// NewEvent stamps an event with the current time.
func NewEvent(eventType EventType, tickNum uint64, playerID string, payload any) Event {
	return Event{
		Version:   EventVersion,
		Type:      eventType,
		Timestamp: time.Now().UnixNano(),
		TickNum:   tickNum,
		PlayerID:  playerID,
		Payload:   EncodePayload(payload),
	}
}
