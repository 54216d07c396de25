package models

// Board is the three-column view rendered by the client.
type Board struct {
	Todo     []Task `json:"todo"`
	Progress []Task `json:"progress"`
	Done     []Task `json:"done"`
}
