package slackbot

import (
	"log"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/slack-go/slack"
)

const (
	userCacheSize = 512
	userCacheTTL  = 5 * time.Minute
)

// userNames caches users.info lookups so history uploads do not hit the
// Slack API on every command.
type userNames struct {
	api   *slack.Client
	cache *expirable.LRU[string, string]
}

func newUserNames(api *slack.Client) *userNames {
	return &userNames{
		api:   api,
		cache: expirable.NewLRU[string, string](userCacheSize, nil, userCacheTTL),
	}
}

// DisplayName prefers the profile display name, then the real name, then the
// handle. The user ID is returned when the lookup fails.
func (u *userNames) DisplayName(userID string) string {
	if name, ok := u.cache.Get(userID); ok {
		return name
	}
	user, err := u.api.GetUserInfo(userID)
	if err != nil {
		log.Printf("users.info user=%s error: %v", userID, err)
		return userID
	}
	name := pickDisplayName(user)
	if name == "" {
		name = userID
	}
	u.cache.Add(userID, name)
	return name
}

func pickDisplayName(user *slack.User) string {
	for _, n := range []string{user.Profile.DisplayName, user.RealName, user.Name} {
		if n = strings.TrimSpace(n); n != "" {
			return n
		}
	}
	return ""
}
