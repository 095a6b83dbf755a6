package models

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string `json:"status"`
	State     string `json:"state"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// DiskListResponse represents list disks response
type DiskListResponse struct {
	Disks []*DiskRecord `json:"disks"`
	Count int           `json:"count"`
}

// NodeStateResponse represents the node state
type NodeStateResponse struct {
	HostID string `json:"host_id"`
	State  string `json:"state"`
	// Populated after an Online transition
	LastReconcile *ReconcileSummary `json:"last_reconcile,omitempty"`
}

// ReconcileSummary reports what the last reconciliation pass did
type ReconcileSummary struct {
	Added            []string          `json:"added"`
	Updated          []string          `json:"updated"`
	Unmounted        []string          `json:"unmounted"`
	RejectedSlots    []string          `json:"rejected_slots"`
	Problems         []SlotProblem     `json:"problems,omitempty"`
	ProblemMimeTypes []string          `json:"problem_mime_types,omitempty"`
	Plan             map[string]string `json:"plan"`
	DurationMillis   int64             `json:"duration_ms"`
}

// SlotProblem is a soft per-slot failure found during reconciliation
type SlotProblem struct {
	SlotID  string `json:"slot_id"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ErrorResponse represents error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Path      string                 `json:"path,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}
