package revocation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"contentgate/internal/config"
)

const (
	grantKeyPrefix   = "contentgate:revoked:grant:"
	subjectKeyPrefix = "contentgate:revoked:subject:"
)

// NewRedisClient builds a client from config and pings it.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	cli := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := cli.Ping(ctx).Err(); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return cli, nil
}

// RedisList stores revocations as expiring keys so the set never outgrows live grants.
type RedisList struct {
	client redis.Cmdable
	// maxGrantLifetime bounds how long a subject-level revocation must be remembered.
	maxGrantLifetime time.Duration
	// NowFunc is replaceable in tests.
	NowFunc func() time.Time
}

// NewRedisList creates a RedisList. maxGrantLifetime should cover the longest sessionExpiryMinutes in use.
func NewRedisList(client redis.Cmdable, maxGrantLifetime time.Duration) *RedisList {
	return &RedisList{client: client, maxGrantLifetime: maxGrantLifetime, NowFunc: time.Now}
}

var _ List = (*RedisList)(nil)

func grantKey(id string) string { return grantKeyPrefix + id }

func subjectKey(subject, resourceID string) string {
	return subjectKeyPrefix + subject + ":" + resourceID
}

func (l *RedisList) RevokeGrant(ctx context.Context, grantID string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(l.NowFunc())
	if ttl <= 0 {
		return nil
	}
	if err := l.client.Set(ctx, grantKey(grantID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke grant: %w", err)
	}
	return nil
}

func (l *RedisList) RevokeSubjectResource(ctx context.Context, subject, resourceID string, at time.Time) error {
	err := l.client.Set(ctx, subjectKey(subject, resourceID), strconv.FormatInt(at.Unix(), 10), l.maxGrantLifetime).Err()
	if err != nil {
		return fmt.Errorf("revoke subject resource: %w", err)
	}
	return nil
}

func (l *RedisList) IsRevoked(ctx context.Context, grantID, subject, resourceID string, issuedAt time.Time) (bool, error) {
	vals, err := l.client.MGet(ctx, grantKey(grantID), subjectKey(subject, resourceID)).Result()
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	if len(vals) > 0 && vals[0] != nil {
		return true, nil
	}
	if len(vals) > 1 && vals[1] != nil {
		s, _ := vals[1].(string)
		revokedAt, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return false, fmt.Errorf("parse revocation instant: %w", err)
		}
		// Token iat has whole-second precision, so a grant issued in the same second as the
		// revocation cannot be ordered against it and is treated as revoked.
		return issuedAt.Unix() <= revokedAt, nil
	}
	return false, nil
}
