package prefs

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const prefKeyPrefix = "preference:"

// RedisStore persists each preference as a `preference:{uuid}` hash with
// JSON-encoded fields, matching the layout the rest of the platform reads.
type RedisStore struct {
	client  *redis.Client
	systems []RatingSystem
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, session uuid.UUID) (Preference, bool, error) {
	values, err := s.client.HMGet(ctx, prefKey(session), "games", "score", "author", "timestamp").Result()
	if err != nil {
		return Preference{}, false, errors.Wrap(err, "fetch preference")
	}
	pref, ok := decodePreference(values)
	return pref, ok, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, session uuid.UUID, pref Preference) error {
	existed, err := s.client.Exists(ctx, prefKey(session)).Result()
	if err != nil {
		return errors.Wrap(err, "check preference")
	}

	games, _ := json.Marshal([2]string{pref.Games[0], pref.Games[1]})
	score, _ := json.Marshal(pref.FirstScore)
	timestamp, _ := json.Marshal(unixSeconds(pref.Timestamp))
	if err := s.client.HSet(ctx, prefKey(session), map[string]any{
		"games":     string(games),
		"score":     string(score),
		"author":    pref.Author,
		"timestamp": string(timestamp),
	}).Err(); err != nil {
		return errors.Wrap(err, "store preference")
	}

	if existed > 0 {
		// 1.- An edit invalidates incremental state; rebuild everything.
		return s.rebuildSystems(ctx)
	}
	for _, system := range s.systems {
		if err := system.Register(ctx, pref); err != nil {
			return err
		}
	}
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, session uuid.UUID) error {
	if err := s.client.Del(ctx, prefKey(session)).Err(); err != nil {
		return errors.Wrap(err, "delete preference")
	}
	return s.rebuildSystems(ctx)
}

// SortedPreferences implements Store. Ordering is by timestamp; entries with
// equal timestamps keep whatever order SCAN produced, since the hash layout
// carries no insertion sequence. The in-memory store breaks such ties by
// insertion order.
func (s *RedisStore) SortedPreferences(ctx context.Context) ([]Preference, error) {
	prefs, err := s.allPreferences(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(prefs, func(i, j int) bool {
		return prefs[i].Timestamp.Before(prefs[j].Timestamp)
	})
	return prefs, nil
}

// AccumulationBy implements Store.
func (s *RedisStore) AccumulationBy(ctx context.Context, email string) (float64, error) {
	prefs, err := s.allPreferences(ctx)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, pref := range prefs {
		if pref.Author == email {
			total += pref.Accumulation()
		}
	}
	return total, nil
}

// AllAccumulations implements Store.
func (s *RedisStore) AllAccumulations(ctx context.Context) (map[string]float64, error) {
	prefs, err := s.allPreferences(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, pref := range prefs {
		out[pref.Author] += pref.Accumulation()
	}
	return out, nil
}

// Bind implements Store.
func (s *RedisStore) Bind(ctx context.Context, system RatingSystem) error {
	s.systems = append(s.systems, system)
	log, err := s.SortedPreferences(ctx)
	if err != nil {
		return err
	}
	return Rebuild(ctx, system, log)
}

func (s *RedisStore) rebuildSystems(ctx context.Context) error {
	log, err := s.SortedPreferences(ctx)
	if err != nil {
		return err
	}
	for _, system := range s.systems {
		if err := Rebuild(ctx, system, log); err != nil {
			return err
		}
	}
	return nil
}

func (s *RedisStore) allPreferences(ctx context.Context) ([]Preference, error) {
	var prefs []Preference
	iter := s.client.Scan(ctx, 0, prefKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		id, err := uuid.Parse(strings.TrimPrefix(key, prefKeyPrefix))
		if err != nil {
			continue
		}
		pref, ok, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			prefs = append(prefs, pref)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrap(err, "scan preferences")
	}
	return prefs, nil
}

func prefKey(session uuid.UUID) string {
	return prefKeyPrefix + session.String()
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// decodePreference tolerates missing or damaged fields by reporting !ok,
// mirroring how readers of the shared layout behave.
func decodePreference(values []any) (Preference, bool) {
	if len(values) != 4 {
		return Preference{}, false
	}
	raw := make([]string, 4)
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			return Preference{}, false
		}
		raw[i] = s
	}

	var games [2]string
	if err := json.Unmarshal([]byte(raw[0]), &games); err != nil {
		return Preference{}, false
	}
	var score float64
	if err := json.Unmarshal([]byte(raw[1]), &score); err != nil {
		return Preference{}, false
	}
	var seconds float64
	if err := json.Unmarshal([]byte(raw[3]), &seconds); err != nil {
		return Preference{}, false
	}
	return Preference{
		Games:      games,
		FirstScore: score,
		Author:     raw[2],
		Timestamp:  time.Unix(0, int64(seconds*float64(time.Second))),
	}, true
}
