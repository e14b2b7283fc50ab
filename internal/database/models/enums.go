package models

// Environment defines the independent deployment targets for an app
type Environment string

const (
	EnvironmentPreview    Environment = "preview"
	EnvironmentStaging    Environment = "staging"
	EnvironmentProduction Environment = "production"
)

// DeploymentStatus defines the lifecycle states of a deployment attempt
type DeploymentStatus string

const (
	DeploymentStatusQueued    DeploymentStatus = "queued"
	DeploymentStatusBuilding  DeploymentStatus = "building"
	DeploymentStatusDeploying DeploymentStatus = "deploying"
	DeploymentStatusCompleted DeploymentStatus = "completed"
	DeploymentStatusFailed    DeploymentStatus = "failed"
	DeploymentStatusTimedOut  DeploymentStatus = "timed_out"
)

// IsValid checks if the Environment is valid
func (e Environment) IsValid() bool {
	switch e {
	case EnvironmentPreview, EnvironmentStaging, EnvironmentProduction:
		return true
	}
	return false
}

// IsValid checks if the DeploymentStatus is valid
func (s DeploymentStatus) IsValid() bool {
	switch s {
	case DeploymentStatusQueued, DeploymentStatusBuilding, DeploymentStatusDeploying,
		DeploymentStatusCompleted, DeploymentStatusFailed, DeploymentStatusTimedOut:
		return true
	}
	return false
}

// IsTerminal reports whether the status ends an attempt. Terminal states
// never transition again.
func (s DeploymentStatus) IsTerminal() bool {
	switch s {
	case DeploymentStatusCompleted, DeploymentStatusFailed, DeploymentStatusTimedOut:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next preserves the
// forward-only lifecycle queued -> building -> deploying -> terminal.
func (s DeploymentStatus) CanTransitionTo(next DeploymentStatus) bool {
	if s.IsTerminal() {
		return false
	}
	order := map[DeploymentStatus]int{
		DeploymentStatusQueued:    0,
		DeploymentStatusBuilding:  1,
		DeploymentStatusDeploying: 2,
	}
	if next.IsTerminal() {
		return true
	}
	from, ok := order[s]
	if !ok {
		return false
	}
	to, ok := order[next]
	if !ok {
		return false
	}
	return to > from
}
