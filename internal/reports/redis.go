package reports

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	reportKeyPrefix = "report:"
	excludedSetKey  = "excluded_games"
)

// redisReport is the persisted JSON shape: the session id travels as a bare
// hex string.
type redisReport struct {
	Session     string `json:"session"`
	ShortReason string `json:"short_reason"`
	Reason      string `json:"reason"`
	Output      string `json:"output"`
	Author      string `json:"author"`
}

// RedisStore persists reports as `report:{team_id}` lists and the exclusion
// set under `excluded_games`.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, teamID string) ([]Report, error) {
	raw, err := s.client.LRange(ctx, reportKeyPrefix+teamID, 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "fetch reports")
	}
	out := make([]Report, 0, len(raw))
	for _, item := range raw {
		var stored redisReport
		if err := json.Unmarshal([]byte(item), &stored); err != nil {
			// Damaged entries are skipped rather than wedging every reader.
			continue
		}
		report := Report{
			ShortReason: stored.ShortReason,
			Reason:      stored.Reason,
			Output:      stored.Output,
			Author:      stored.Author,
		}
		if report.ShortReason == "" {
			report.ShortReason = ReasonOther
		}
		if report.Author == "" {
			report.Author = "unknown"
		}
		if id, err := uuid.Parse(stored.Session); err == nil {
			report.Session = id
		}
		out = append(out, report)
	}
	return out, nil
}

// Append implements Store.
func (s *RedisStore) Append(ctx context.Context, teamID string, report Report) (int, error) {
	payload, err := json.Marshal(redisReport{
		Session:     hexUUID(report.Session),
		ShortReason: report.ShortReason,
		Reason:      report.Reason,
		Output:      report.Output,
		Author:      report.Author,
	})
	if err != nil {
		return 0, errors.Wrap(err, "encode report")
	}
	length, err := s.client.RPush(ctx, reportKeyPrefix+teamID, payload).Result()
	if err != nil {
		return 0, errors.Wrap(err, "append report")
	}
	return int(length), nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, teamID string) error {
	return errors.Wrap(s.client.Del(ctx, reportKeyPrefix+teamID).Err(), "delete reports")
}

// Exclude implements Store.
func (s *RedisStore) Exclude(ctx context.Context, teamID string) error {
	return errors.Wrap(s.client.SAdd(ctx, excludedSetKey, teamID).Err(), "exclude game")
}

// Include implements Store.
func (s *RedisStore) Include(ctx context.Context, teamID string) error {
	return errors.Wrap(s.client.SRem(ctx, excludedSetKey, teamID).Err(), "include game")
}

// IsExcluded implements Store.
func (s *RedisStore) IsExcluded(ctx context.Context, teamID string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, excludedSetKey, teamID).Result()
	return ok, errors.Wrap(err, "check exclusion")
}

// ExcludedGames implements Store.
func (s *RedisStore) ExcludedGames(ctx context.Context) (map[string]struct{}, error) {
	members, err := s.client.SMembers(ctx, excludedSetKey).Result()
	if err != nil {
		return nil, errors.Wrap(err, "list exclusions")
	}
	out := make(map[string]struct{}, len(members))
	for _, id := range members {
		out[id] = struct{}{}
	}
	return out, nil
}

// hexUUID renders the uuid without dashes, matching the persisted layout.
func hexUUID(id uuid.UUID) string {
	buf := make([]byte, 0, 32)
	for _, b := range id {
		const digits = "0123456789abcdef"
		buf = append(buf, digits[b>>4], digits[b&0xf])
	}
	return string(buf)
}
