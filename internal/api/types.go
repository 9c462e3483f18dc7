package api

// TargetsResponse lists the registered targets.
type TargetsResponse struct {
	Targets []string `json:"targets"`
}

// TargetRequest carries a target address for add and rename calls.
type TargetRequest struct {
	Address string `json:"address"`
}

// MutationResponse reports the outcome of a target mutation. Warning is set
// when the change took effect in memory but could not be persisted.
type MutationResponse struct {
	Status  string `json:"status"`
	Target  string `json:"target,omitempty"`
	Warning string `json:"warning,omitempty"`
}
