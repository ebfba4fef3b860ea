package hostfuncs

import "context"

// IsLeader reports whether this node currently leads the cluster, as a 0/1
// scalar. Denied, standalone, and leaderless states all read as 0.
func (hc *HostContext) IsLeader(ctx context.Context) uint64 {
	if err := CheckPermission(hc.pluginName, "cluster_info", hc.permissions.ClusterInfo); err != nil {
		return 0
	}
	if hc.cluster == nil {
		return 0
	}
	leader, known, err := hc.cluster.GetLeader(ctx)
	if err != nil || !known {
		return 0
	}
	if leader == hc.nodeID {
		return 1
	}
	return 0
}

// LeaderID returns the current leader's node ID, or 0 when unknown or
// denied.
func (hc *HostContext) LeaderID(ctx context.Context) uint64 {
	if err := CheckPermission(hc.pluginName, "cluster_info", hc.permissions.ClusterInfo); err != nil {
		return 0
	}
	if hc.cluster == nil {
		return 0
	}
	leader, known, err := hc.cluster.GetLeader(ctx)
	if err != nil || !known {
		return 0
	}
	return leader
}
