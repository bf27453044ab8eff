package session

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/gofiber/storage/redis"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/CardVault/internal/pkg/env"
	"github.com/ManuelReschke/CardVault/internal/pkg/usercontext"
)

// sessionDatabase keeps sessions apart from cache keys (DB 0).
const sessionDatabase = 1

// NewRedisStorage creates session storage on the same server as cacheClient.
func NewRedisStorage(cacheClient *goredis.Client) fiber.Storage {
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if cacheClient != nil {
		addr := cacheClient.Options().Addr
		if h, p, err := net.SplitHostPort(addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		// Prefer password from the underlying client if present
		if p := cacheClient.Options().Password; p != "" {
			password = p
		}
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: sessionDatabase,
		Reset:    false,
	})
}

// NewSessionStore creates the cookie session store. A nil storage keeps
// sessions in process memory.
func NewSessionStore(storage fiber.Storage) *session.Store {
	return session.New(session.Config{
		Storage:        storage,
		CookieHTTPOnly: true,
		CookieSecure:   !env.IsDev(),
		CookieSameSite: "Lax",
		Expiration:     time.Hour * 1,
		KeyLookup:      "cookie:session_id",
	})
}

// Login binds the user to the request's session.
func Login(store *session.Store, c *fiber.Ctx, uc usercontext.UserContext) error {
	sess, err := store.Get(c)
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}
	if err := sess.Regenerate(); err != nil {
		return fmt.Errorf("failed to regenerate session: %w", err)
	}
	sess.Set(usercontext.KeyUserID, uc.UserID)
	sess.Set(usercontext.KeyUsername, uc.Username)
	sess.Set(usercontext.KeyIsAdmin, uc.IsAdmin)
	return sess.Save()
}

// Logout destroys the request's session.
func Logout(store *session.Store, c *fiber.Ctx) error {
	sess, err := store.Get(c)
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}
	return sess.Destroy()
}

// Lookup returns the user bound to the request's session, if any.
func Lookup(store *session.Store, c *fiber.Ctx) (usercontext.UserContext, error) {
	anonymous := usercontext.UserContext{}
	sess, err := store.Get(c)
	if err != nil {
		return anonymous, err
	}

	userID, ok := sess.Get(usercontext.KeyUserID).(uint)
	if !ok || userID == 0 {
		return anonymous, nil
	}
	username, _ := sess.Get(usercontext.KeyUsername).(string)
	isAdmin, _ := sess.Get(usercontext.KeyIsAdmin).(bool)
	return usercontext.UserContext{
		UserID:     userID,
		Username:   username,
		IsLoggedIn: true,
		IsAdmin:    isAdmin,
		AuthMethod: usercontext.AuthSession,
	}, nil
}
