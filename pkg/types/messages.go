package types

// ClientMessage is what a participant sends over the websocket.
//
// ScoreUpdate carries an absolute score snapshot, not a delta; absolute
// values make duplicate or reordered delivery harmless.
type ClientMessage struct {
	Type  string `json:"type"` // "ScoreUpdate" | "Failure" | "Finish"
	Score int    `json:"score,omitempty"`
}

// ServerMessage is the single envelope for everything the room sends down.
// Type selects which fields are populated.
type ServerMessage struct {
	Type    string `json:"type"` // "Joined" | "SessionStart" | "StateSnapshot" | "Result" | "Error"
	Version int    `json:"version,omitempty"`

	// Joined
	Phase            string `json:"phase,omitempty"`
	ParticipantCount int    `json:"participants_joined,omitempty"`

	// SessionStart. Seed is a decimal string so both clients receive the
	// exact same bytes regardless of their JSON number handling.
	Seed        string `json:"seed,omitempty"`
	GameType    string `json:"game_type,omitempty"`
	DurationSec int    `json:"duration_sec,omitempty"` // -1 means unbounded

	// StateSnapshot
	Scores      map[string]int `json:"scores,omitempty"`
	Lives       map[string]int `json:"lives,omitempty"`
	RemainingMS int64          `json:"remaining_ms,omitempty"`

	// Result
	WinnerID    string         `json:"winner_id,omitempty"`
	Draw        bool           `json:"draw,omitempty"`
	EndReason   string         `json:"end_reason,omitempty"`
	FinalScores map[string]int `json:"final_scores,omitempty"`

	Error string `json:"error,omitempty"`
}
