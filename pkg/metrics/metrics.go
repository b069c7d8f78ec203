package metrics

import "github.com/ServiceWeaver/weaver/metrics"

type RegionLabel struct {
	Region string
}

var (
	// social graph service
	Follows = metrics.NewCounterMap[RegionLabel](
		"as_follows",
		"The number of committed follow operations in the current region",
	)
	Unfollows = metrics.NewCounterMap[RegionLabel](
		"as_unfollows",
		"The number of committed unfollow operations in the current region",
	)
	FollowAborts = metrics.NewCounterMap[RegionLabel](
		"as_follow_aborts",
		"The number of follow/unfollow transactions that aborted in the current region",
	)
	FollowDurationMs = metrics.NewHistogramMap[RegionLabel](
		"as_follow_duration_ms",
		"Duration of a follow/unfollow transaction in milliseconds in the current region",
		metrics.NonNegativeBuckets,
	)
	// api
	AuthDenied = metrics.NewCounterMap[RegionLabel](
		"as_auth_denied",
		"The number of requests rejected by the authorization policy in the current region",
	)
	// user service
	Logins = metrics.NewCounterMap[RegionLabel](
		"as_logins",
		"The number of successful logins in the current region",
	)
)
