package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	courseTitlePrefix = "course:title:"
	courseTitleTTL    = 10 * time.Minute
)

// CourseTitleCache caches course titles used in chat system prompts so a
// busy session does not hit the courses table on every turn.
type CourseTitleCache struct {
	client *Client
}

// NewCourseTitleCache creates a new course title cache
func NewCourseTitleCache(client *Client) *CourseTitleCache {
	return &CourseTitleCache{client: client}
}

// Get retrieves a cached course title. A cache miss returns ("", false, nil).
func (c *CourseTitleCache) Get(ctx context.Context, courseID uuid.UUID) (string, bool, error) {
	key := fmt.Sprintf("%s%s", courseTitlePrefix, courseID.String())

	title, err := c.client.rdb.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get cached title: %w", err)
	}
	return title, true, nil
}

// Set caches a course title
func (c *CourseTitleCache) Set(ctx context.Context, courseID uuid.UUID, title string) error {
	key := fmt.Sprintf("%s%s", courseTitlePrefix, courseID.String())
	return c.client.rdb.Set(ctx, key, title, courseTitleTTL).Err()
}

// Invalidate removes a cached course title
func (c *CourseTitleCache) Invalidate(ctx context.Context, courseID uuid.UUID) error {
	key := fmt.Sprintf("%s%s", courseTitlePrefix, courseID.String())
	return c.client.rdb.Del(ctx, key).Err()
}
