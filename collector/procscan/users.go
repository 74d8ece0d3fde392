package procscan

import (
	"os/user"
	"strconv"
	"sync"

	"github.com/mizuno-sec/vigil/internal/model"
)

// UserCache resolves uids to usernames with a process-lifetime cache.
// Lookups that fail resolve to model.ActorUnknown and are cached too, so a
// missing passwd entry does not cost a lookup per observation.
type UserCache struct {
	mu    sync.Mutex
	names map[int]string
}

func NewUserCache() *UserCache {
	return &UserCache{names: make(map[int]string)}
}

func (c *UserCache) Name(uid int) string {
	if uid < 0 {
		return model.ActorUnknown
	}
	c.mu.Lock()
	name, ok := c.names[uid]
	c.mu.Unlock()
	if ok {
		return name
	}

	name = model.ActorUnknown
	if u, err := user.LookupId(strconv.Itoa(uid)); err == nil && u.Username != "" {
		name = u.Username
	}
	c.mu.Lock()
	c.names[uid] = name
	c.mu.Unlock()
	return name
}
