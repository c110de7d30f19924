package client

// Runner represents a sandbox runner registered with the Daytona API.
// Capacity figures are runner-reported (from the Docker-visible cgroup);
// allocation figures reflect sandboxes currently placed on the runner.
type Runner struct {
	// ID is the unique runner identifier
	ID string `json:"id"`

	// Name is the human-readable runner name
	Name string `json:"name"`

	// Domain is the reachable IP of the node hosting the runner
	Domain string `json:"domain"`

	// RegionID scopes the runner to a region
	RegionID string `json:"regionId"`

	// CPU is the runner-reported CPU capacity in cores
	CPU float32 `json:"cpu"`

	// Memory is the runner-reported memory capacity in GiB
	Memory float32 `json:"memory"`

	// CurrentAllocatedCPU is the CPU currently allocated to sandboxes, in cores
	CurrentAllocatedCPU float32 `json:"currentAllocatedCpu"`

	// CurrentAllocatedMemoryGiB is the memory currently allocated to sandboxes, in GiB
	CurrentAllocatedMemoryGiB float32 `json:"currentAllocatedMemoryGiB"`

	// CurrentAllocatedDiskGiB is the disk currently allocated to sandboxes, in GiB
	CurrentAllocatedDiskGiB float32 `json:"currentAllocatedDiskGiB"`

	// CurrentStartedSandboxes is the number of sandboxes running on the runner
	CurrentStartedSandboxes int `json:"currentStartedSandboxes"`

	// CurrentSnapshotCount is the number of snapshots held by the runner
	CurrentSnapshotCount int `json:"currentSnapshotCount"`

	// Unschedulable marks a runner that accepts no new sandboxes
	Unschedulable bool `json:"unschedulable"`
}

// ValidationResponse is returned by the credential validation endpoints
type ValidationResponse struct {
	Valid bool `json:"valid"`
}

// PreviewTokenResponse is returned by the signed preview token exchange endpoint
type PreviewTokenResponse struct {
	SandboxID string `json:"sandboxId"`
}

// AuthURLResponse is returned by the auth URL endpoint
type AuthURLResponse struct {
	URL string `json:"url"`
}

// ErrorResponse represents an error payload returned by the Daytona API
type ErrorResponse struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
