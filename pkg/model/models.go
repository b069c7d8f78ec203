package model

import (
	"strings"

	"github.com/ServiceWeaver/weaver"
)

type Role int

const (
	ROLE_USER Role = iota 	// 0
	ROLE_ADMIN 				// 1
)

// User is the document stored in the "user" collection.
// Followers and Following are denormalized mirrors of the same directed
// edge set: edge A->B exists iff B.Followers contains A and A.Following
// contains B.
type User struct {
	// make user serializable
	// by default, struct literal types are not serializable
	weaver.AutoMarshal
	UserID 		string 		`bson:"user_id"`
	Username 	string 		`bson:"username"`
	FirstName 	string 		`bson:"first_name"`
	LastName 	string 		`bson:"last_name"`
	Avatar 		string 		`bson:"avatar"`
	Role 		Role 		`bson:"role"`
	PwdHashed 	string 		`bson:"pwd_hashed"`
	Salt 		string 		`bson:"salt"`
	Followers 	[]string 	`bson:"followers"`
	Following 	[]string 	`bson:"following"`
}

// UserSummary is the lightweight projection returned by follower and
// following listings.
type UserSummary struct {
	weaver.AutoMarshal
	UserID 		string 	`bson:"user_id" json:"user_id"`
	DisplayName string 	`bson:"display_name" json:"display_name"`
	Avatar 		string 	`bson:"avatar" json:"avatar"`
}

// Summary projects the user to its listing shape. The display name falls
// back to the username when both name fields are unset.
func (u User) Summary() UserSummary {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.Username
	}
	return UserSummary{
		UserID:      u.UserID,
		DisplayName: name,
		Avatar:      u.Avatar,
	}
}

type FollowCounts struct {
	weaver.AutoMarshal
	FollowerCount 	int 	`json:"follower_count"`
	FollowingCount 	int 	`json:"following_count"`
}

// ProfileUpdate carries the mutable profile fields. Empty fields keep the
// stored value.
type ProfileUpdate struct {
	weaver.AutoMarshal
	FirstName 	string 	`json:"first_name"`
	LastName 	string 	`json:"last_name"`
	Avatar 		string 	`json:"avatar"`
}

// AuthContext is the identity derived from an authenticated session. It is
// built per request and never persisted.
type AuthContext struct {
	UserID 	string
	Role 	Role
}
