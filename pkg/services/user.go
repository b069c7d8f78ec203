package services

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"apnaspace/pkg/metrics"
	"apnaspace/pkg/model"
	"apnaspace/pkg/storage"
	"apnaspace/pkg/utils"

	"github.com/ServiceWeaver/weaver"
	"github.com/bradfitz/gomemcache/memcache"
	"github.com/dgrijalva/jwt-go"
)

var letterRunes = []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")

type UserService interface {
	Login(ctx context.Context, reqID int64, username string, password string) (string, error)
	RegisterUser(ctx context.Context, reqID int64, firstName string, lastName string, username string, password string) (string, error)
	RegisterUserWithId(ctx context.Context, reqID int64, firstName string, lastName string, username string, password string, userID string) error
	GetUser(ctx context.Context, reqID int64, userID string) (model.User, error)
	UpdateProfile(ctx context.Context, reqID int64, userID string, update model.ProfileUpdate) error
	DeleteUser(ctx context.Context, reqID int64, userID string) error
	GetUserId(ctx context.Context, reqID int64, username string) (string, error)
}

type LoginInfo struct {
	UserID   string 	`json:"user_id"`
	Role     model.Role `json:"role"`
	Password string 	`json:"password"`
	Salt     string 	`json:"salt"`
}

type Claims struct {
	Username  string 		`json:"username"`
	UserID    string 		`json:"user_id"`
	Role      model.Role 	`json:"role"`
	Timestamp int64  		`json:"timestamp"`
	jwt.StandardClaims
}

type userService struct {
	weaver.Implements[UserService]
	weaver.WithConfig[userServiceOptions]
	machineID        string
	counter          int64
	currentTimestamp int64
	store            storage.Store
	mcClient         *memcache.Client
	mu               sync.Mutex
}

type userServiceOptions struct {
	MongoDBAddr   string `toml:"mongodb_address"`
	MongoDBPort   int    `toml:"mongodb_port"`
	MemCachedAddr string `toml:"memcached_address"`
	MemCachedPort int    `toml:"memcached_port"`
	JWTSecret     string `toml:"jwt_secret"`
	Region        string `toml:"region"`
}

func (u *userService) getCounter(timestamp int64) (int64, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.currentTimestamp > timestamp {
		return 0, fmt.Errorf("timestamps are not incremental")
	}
	if u.currentTimestamp == timestamp {
		counter := u.counter
		u.counter += 1
		return counter, nil
	} else {
		u.currentTimestamp = timestamp
		u.counter = 1
		return u.counter, nil
	}
}

func (u *userService) genRandomStr(length int) string {
	b := make([]rune, length)
	for i := range b {
		b[i] = letterRunes[rand.Intn(len(letterRunes))]
	}
	return string(b)
}

func (u *userService) hashPwd(pwd []byte) string {
	hasher := sha1.New()
	hasher.Write(pwd)
	return base64.URLEncoding.EncodeToString(hasher.Sum(nil))
}

func (u *userService) Init(ctx context.Context) error {
	logger := u.Logger(ctx)
	u.machineID = utils.GetMachineID()
	u.currentTimestamp = -1
	u.counter = 0

	if u.Config().Region == "" {
		region, err := utils.Region()
		if err != nil {
			logger.Error(err.Error())
			return err
		}
		u.Config().Region = region
	}

	mongoClient, err := storage.MongoDBClient(ctx, u.Config().MongoDBAddr, u.Config().MongoDBPort)
	if err != nil {
		logger.Error(err.Error())
		return err
	}
	u.store = storage.NewMongoStore(mongoClient)
	u.mcClient = storage.MemCachedClient(u.Config().MemCachedAddr, u.Config().MemCachedPort)

	logger.Info("user service running!",
		"mongodb_addr", u.Config().MongoDBAddr, "mongodb_port", u.Config().MongoDBPort,
		"memcached_addr", u.Config().MemCachedAddr, "memcached_port", u.Config().MemCachedPort,
	)
	return nil
}

// Login checks the salted password and mints an HS256 token carrying the
// user id and role. Login info is cached in memcached keyed by username.
func (u *userService) Login(ctx context.Context, reqID int64, username string, password string) (string, error) {
	logger := u.Logger(ctx)
	logger.Debug("entering Login", "req_id", reqID, "username", username)

	timestamp := time.Now().UnixNano() / int64(time.Millisecond)
	var login LoginInfo
	item, err := u.mcClient.Get(username + ":login")
	if err != nil && err != memcache.ErrCacheMiss {
		// error reading cache
		logger.Error("error reading user login info from cache", "msg", err.Error())
		return "", err
	} else if err == nil {
		// username found in cache
		err := json.Unmarshal(item.Value, &login)
		if err != nil {
			logger.Error("error parsing login info from cache result", "msg", err.Error())
			return "", err
		}
	} else {
		// username does not exist in cache
		// so we get it from db
		user, err := u.store.GetUserByUsername(ctx, username)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				msg := fmt.Sprintf("username %s does not exist", username)
				logger.Debug(msg)
				return "", errors.New(msg)
			}
			logger.Error("error finding user in mongodb", "msg", err.Error())
			return "", err
		}
		login.UserID = user.UserID
		login.Role = user.Role
		login.Password = user.PwdHashed
		login.Salt = user.Salt
	}

	hashedPwd := u.hashPwd([]byte(password + login.Salt))
	if hashedPwd != login.Password {
		return "", fmt.Errorf("invalid credentials")
	}
	expirationTime := time.Now().Add(6 * time.Minute)
	claims := &Claims{
		Username:       username,
		UserID:         login.UserID,
		Role:           login.Role,
		Timestamp:      timestamp,
		StandardClaims: jwt.StandardClaims{ExpiresAt: expirationTime.Unix()},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString([]byte(u.Config().JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to create login token")
	}

	loginJson, err := json.Marshal(login)
	if err != nil {
		return "", err
	}
	err = u.mcClient.Set(&memcache.Item{Key: username + ":login", Value: loginJson})
	if err != nil {
		logger.Error("error writing login info to cache", "msg", err.Error())
	}
	metrics.Logins.Get(metrics.RegionLabel{Region: u.Config().Region}).Add(1)
	return tokenStr, nil
}

func (u *userService) RegisterUserWithId(ctx context.Context, reqID int64, firstName string, lastName string, username string, password string, userID string) error {
	logger := u.Logger(ctx)
	logger.Debug("entering RegisterUserWithId", "req_id", reqID, "first_name", firstName, "last_name", lastName, "username", username, "user_id", userID)

	_, err := u.store.GetUserByUsername(ctx, username)
	if err == nil {
		errMsg := fmt.Sprintf("username %s already registered", username)
		logger.Error(errMsg)
		return errors.New(errMsg)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		logger.Error("error finding user in mongodb", "msg", err.Error())
		return err
	}
	salt := u.genRandomStr(32)
	hashedPwd := u.hashPwd([]byte(password + salt))
	user := model.User{
		UserID:    userID,
		Username:  username,
		FirstName: firstName,
		LastName:  lastName,
		Role:      model.ROLE_USER,
		PwdHashed: hashedPwd,
		Salt:      salt,
		Followers: []string{},
		Following: []string{},
	}
	err = u.store.InsertUser(ctx, user)
	if err != nil {
		logger.Error("error inserting new user in mongodb", "msg", err.Error())
		return err
	}
	return nil
}

func (u *userService) RegisterUser(ctx context.Context, reqID int64, firstName string, lastName string, username string, password string) (string, error) {
	logger := u.Logger(ctx)
	logger.Debug("entering RegisterUser", "req_id", reqID, "first_name", firstName, "last_name", lastName, "username", username)

	timestamp := time.Now().UnixMilli() - utils.CUSTOM_EPOCH
	counter, err := u.getCounter(timestamp)
	if err != nil {
		logger.Error("error getting counter", "msg", err.Error())
		return "", err
	}
	id, err := utils.GenUniqueID(u.machineID, timestamp, counter)
	if err != nil {
		return "", err
	}
	userID := strconv.FormatInt(id, 10)
	return userID, u.RegisterUserWithId(ctx, reqID, firstName, lastName, username, password, userID)
}

// GetUser returns the stored user with credentials blanked.
func (u *userService) GetUser(ctx context.Context, reqID int64, userID string) (model.User, error) {
	logger := u.Logger(ctx)
	logger.Debug("entering GetUser", "req_id", reqID, "user_id", userID)

	user, err := u.store.GetUser(ctx, userID)
	if err != nil {
		return model.User{}, err
	}
	user.PwdHashed = ""
	user.Salt = ""
	return user, nil
}

func (u *userService) UpdateProfile(ctx context.Context, reqID int64, userID string, update model.ProfileUpdate) error {
	logger := u.Logger(ctx)
	logger.Debug("entering UpdateProfile", "req_id", reqID, "user_id", userID)
	return u.store.UpdateUser(ctx, userID, update)
}

func (u *userService) DeleteUser(ctx context.Context, reqID int64, userID string) error {
	logger := u.Logger(ctx)
	logger.Debug("entering DeleteUser", "req_id", reqID, "user_id", userID)

	user, err := u.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := u.store.DeleteUser(ctx, userID); err != nil {
		return err
	}
	// drop stale cache entries for the deleted account
	if err := u.mcClient.Delete(user.Username + ":login"); err != nil && err != memcache.ErrCacheMiss {
		logger.Error("error deleting login info from cache", "msg", err.Error())
	}
	if err := u.mcClient.Delete(user.Username + ":user_id"); err != nil && err != memcache.ErrCacheMiss {
		logger.Error("error deleting user id from cache", "msg", err.Error())
	}
	return nil
}

// GetUserId attempts to read the user id from cache and return it.
// If not found, it fetches the user from the db and uploads it to cache.
func (u *userService) GetUserId(ctx context.Context, reqID int64, username string) (string, error) {
	logger := u.Logger(ctx)
	logger.Debug("entering GetUserId", "req_id", reqID, "username", username)

	item, err := u.mcClient.Get(username + ":user_id")
	if err == nil {
		return string(item.Value), nil
	}
	if err != memcache.ErrCacheMiss {
		// error reading cache
		logger.Error("error reading user id from cache", "msg", err.Error())
		return "", err
	}
	// user not found in cache
	// so we get it from db and write to cache
	user, err := u.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			msg := fmt.Sprintf("username %s does not exist", username)
			logger.Debug(msg)
			return "", errors.New(msg)
		}
		logger.Error("error finding user in mongodb", "msg", err.Error())
		return "", err
	}
	err = u.mcClient.Set(&memcache.Item{Key: username + ":user_id", Value: []byte(user.UserID)})
	if err != nil {
		logger.Error("error writing user id to cache", "msg", err.Error())
	}
	return user.UserID, nil
}
