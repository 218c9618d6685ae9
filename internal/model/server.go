package model

// ServerState is the last observed liveness of a backend server.
type ServerState struct {
	Name       string `json:"name"`
	Online     bool   `json:"online"`
	Players    int    `json:"players"`
	MaxPlayers int    `json:"max_players"`
}
