package ports

import "context"

// ClusterController exposes cluster membership to plugins. Single-node
// deployments can return their own ID as leader.
type ClusterController interface {
	// GetLeader returns the current leader's node ID and whether a leader
	// is known.
	GetLeader(ctx context.Context) (uint64, bool, error)
}
