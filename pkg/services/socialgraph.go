package services

import (
	"context"
	"time"

	"apnaspace/pkg/graph"
	"apnaspace/pkg/metrics"
	"apnaspace/pkg/model"
	"apnaspace/pkg/storage"
	"apnaspace/pkg/utils"

	"github.com/ServiceWeaver/weaver"
	"github.com/redis/go-redis/v9"
)

type SocialGraphService interface {
	Follow(ctx context.Context, reqID int64, followerID string, followeeID string) error
	Unfollow(ctx context.Context, reqID int64, followerID string, followeeID string) error
	IsFollowing(ctx context.Context, reqID int64, followerID string, followeeID string) (bool, error)
	GetFollowers(ctx context.Context, reqID int64, userID string) ([]model.UserSummary, error)
	GetFollowing(ctx context.Context, reqID int64, userID string) ([]model.UserSummary, error)
	FollowCounts(ctx context.Context, reqID int64, userID string) (model.FollowCounts, error)
}

// Follow/Unfollow must not be transparently retried: a retry would hide
// the abort from the caller, which owns the retry policy.
var _ weaver.NotRetriable = SocialGraphService.Follow
var _ weaver.NotRetriable = SocialGraphService.Unfollow

type socialGraphService struct {
	weaver.Implements[SocialGraphService]
	weaver.WithConfig[socialGraphServiceOptions]
	graph       *graph.Manager
	store       storage.Store
	redisClient *redis.Client
	cache       *edgeCache
}

type socialGraphServiceOptions struct {
	MongoDBAddr string 	`toml:"mongodb_address"`
	MongoDBPort int    	`toml:"mongodb_port"`
	RedisAddr   string 	`toml:"redis_address"`
	RedisPort   int    	`toml:"redis_port"`
	Region      string 	`toml:"region"`
}

func (s *socialGraphService) Init(ctx context.Context) error {
	logger := s.Logger(ctx)

	if s.Config().Region == "" {
		region, err := utils.Region()
		if err != nil {
			logger.Error(err.Error())
			return err
		}
		s.Config().Region = region
	}

	mongoClient, err := storage.MongoDBClient(ctx, s.Config().MongoDBAddr, s.Config().MongoDBPort)
	if err != nil {
		logger.Error(err.Error())
		return err
	}
	s.store = storage.NewMongoStore(mongoClient)
	s.graph = graph.NewManager(s.store, logger)
	s.redisClient = storage.RedisClient(s.Config().RedisAddr, s.Config().RedisPort)
	s.cache = newEdgeCache(s.redisClient)

	logger.Info("social graph service running!", "region", s.Config().Region,
		"mongodb_addr", s.Config().MongoDBAddr, "mongodb_port", s.Config().MongoDBPort,
		"redis_addr", s.Config().RedisAddr, "redis_port", s.Config().RedisPort,
	)
	return nil
}

func (s *socialGraphService) Follow(ctx context.Context, reqID int64, followerID string, followeeID string) error {
	logger := s.Logger(ctx)
	logger.Debug("entering Follow", "req_id", reqID, "follower_id", followerID, "followee_id", followeeID)

	start := time.Now()
	if err := s.graph.Follow(ctx, followerID, followeeID); err != nil {
		metrics.FollowAborts.Get(metrics.RegionLabel{Region: s.Config().Region}).Add(1)
		return err
	}
	metrics.Follows.Get(metrics.RegionLabel{Region: s.Config().Region}).Add(1)
	metrics.FollowDurationMs.Get(metrics.RegionLabel{Region: s.Config().Region}).Put(float64(time.Since(start).Milliseconds()))

	// drop the cached id sets so the next list read rebuilds them from
	// mongodb; cache is best effort, mongo already committed
	err := s.cache.invalidate(ctx, followeeID+":"+storage.FieldFollowers, followerID+":"+storage.FieldFollowing)
	if err != nil {
		logger.Error("error invalidating follow edges in redis", "msg", err.Error())
	}
	return nil
}

func (s *socialGraphService) Unfollow(ctx context.Context, reqID int64, followerID string, followeeID string) error {
	logger := s.Logger(ctx)
	logger.Debug("entering Unfollow", "req_id", reqID, "follower_id", followerID, "followee_id", followeeID)

	start := time.Now()
	if err := s.graph.Unfollow(ctx, followerID, followeeID); err != nil {
		metrics.FollowAborts.Get(metrics.RegionLabel{Region: s.Config().Region}).Add(1)
		return err
	}
	metrics.Unfollows.Get(metrics.RegionLabel{Region: s.Config().Region}).Add(1)
	metrics.FollowDurationMs.Get(metrics.RegionLabel{Region: s.Config().Region}).Put(float64(time.Since(start).Milliseconds()))

	err := s.cache.invalidate(ctx, followeeID+":"+storage.FieldFollowers, followerID+":"+storage.FieldFollowing)
	if err != nil {
		logger.Error("error invalidating follow edges in redis", "msg", err.Error())
	}
	return nil
}

func (s *socialGraphService) IsFollowing(ctx context.Context, reqID int64, followerID string, followeeID string) (bool, error) {
	logger := s.Logger(ctx)
	logger.Debug("entering IsFollowing", "req_id", reqID, "follower_id", followerID, "followee_id", followeeID)
	return s.graph.IsFollowing(ctx, followerID, followeeID)
}

// GetFollowers attempts to get the follower ids from redis if cached.
// Otherwise, it reads the user document from mongodb and updates redis
// with the ids.
func (s *socialGraphService) GetFollowers(ctx context.Context, reqID int64, userID string) ([]model.UserSummary, error) {
	return s.listEdges(ctx, reqID, userID, storage.FieldFollowers)
}

// GetFollowing is the symmetric read over the following set.
func (s *socialGraphService) GetFollowing(ctx context.Context, reqID int64, userID string) ([]model.UserSummary, error) {
	return s.listEdges(ctx, reqID, userID, storage.FieldFollowing)
}

func (s *socialGraphService) listEdges(ctx context.Context, reqID int64, userID string, field string) ([]model.UserSummary, error) {
	logger := s.Logger(ctx)
	logger.Debug("entering listEdges", "req_id", reqID, "user_id", userID, "field", field)

	key := userID + ":" + field
	ids, warm, err := s.cache.ids(ctx, key)
	if err != nil {
		logger.Error("error reading edge ids from cache", "msg", err.Error())
	}
	if warm {
		// ids are cached in redis so we resolve them to summaries
		return s.graph.Summaries(ctx, ids)
	}

	// did not find ids in redis
	// look up in mongodb and update redis
	var summaries []model.UserSummary
	if field == storage.FieldFollowers {
		summaries, err = s.graph.Followers(ctx, userID)
	} else {
		summaries, err = s.graph.Following(ctx, userID)
	}
	if err != nil {
		return nil, err
	}
	cacheIDs := make([]string, 0, len(summaries))
	for _, summary := range summaries {
		cacheIDs = append(cacheIDs, summary.UserID)
	}
	if err := s.cache.populate(ctx, key, cacheIDs); err != nil {
		logger.Error("error updating redis with edge ids from mongodb", "msg", err.Error())
	}
	return summaries, nil
}

// FollowCounts always answers from mongodb: the cardinalities must track
// the stored membership, never a cache.
func (s *socialGraphService) FollowCounts(ctx context.Context, reqID int64, userID string) (model.FollowCounts, error) {
	logger := s.Logger(ctx)
	logger.Debug("entering FollowCounts", "req_id", reqID, "user_id", userID)
	return s.graph.Counts(ctx, userID)
}
