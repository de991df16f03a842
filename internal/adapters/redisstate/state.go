package redisstate

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Portal/internal/core"
	"github.com/dkeye/Portal/internal/domain"
)

const (
	roomKeyPrefix        = "room:"
	presenceKeyPrefix    = "presence:"
	undeliveredKeyPrefix = "undelivered_events:"
	controllerKey        = "controller"

	maxTxAttempts = 16
)

// StateStore implements core.StateStore. Room documents are JSON values
// updated under WATCH; the controller table is a single hash keyed by room.
type StateStore struct {
	client *redis.Client
}

func NewStateStore(client *redis.Client) *StateStore {
	return &StateStore{client: client}
}

var _ core.StateStore = (*StateStore)(nil)

func roomKey(id domain.RoomID) string        { return roomKeyPrefix + string(id) }
func presenceKey(id domain.RoomID) string    { return presenceKeyPrefix + string(id) }
func undeliveredKey(id domain.UserID) string { return undeliveredKeyPrefix + string(id) }

// mutationError marks errors returned by a RoomMutation so they are passed
// through untouched instead of being reported as storage failures.
type mutationError struct{ err error }

func (e mutationError) Error() string { return e.err.Error() }
func (e mutationError) Unwrap() error { return e.err }

func (s *StateStore) LoadRoom(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	room, err := readRoom(ctx, s.client, id)
	if err != nil {
		return nil, domain.Transient("load room", err)
	}
	if room == nil {
		return nil, domain.ErrRoomNotFound
	}
	return room, nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readRoom(ctx context.Context, c getter, id domain.RoomID) (*domain.Room, error) {
	b, err := c.Get(ctx, roomKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var room domain.Room
	if err := json.Unmarshal(b, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (s *StateStore) UpdateRoom(ctx context.Context, id domain.RoomID, fn core.RoomMutation) (*domain.Room, error) {
	key := roomKey(id)
	var committed *domain.Room

	txf := func(tx *redis.Tx) error {
		current, err := readRoom(ctx, tx, id)
		if err != nil {
			return err
		}
		rtx := core.NewRoomTx(current)
		if err := fn(rtx); err != nil {
			return mutationError{err}
		}

		var data []byte
		if !rtx.Destroyed() && rtx.Room != nil {
			if data, err = json.Marshal(rtx.Room); err != nil {
				return mutationError{err}
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			switch {
			case rtx.Destroyed():
				pipe.Del(ctx, key, presenceKey(id))
			case data != nil:
				pipe.Set(ctx, key, data, 0)
			}
			if uid, ok := rtx.Granted(); ok {
				pipe.HSet(ctx, controllerKey, string(id), string(uid))
			} else if rtx.GrantCleared() {
				pipe.HDel(ctx, controllerKey, string(id))
			}
			return nil
		})
		if err != nil {
			return err
		}
		if rtx.Destroyed() {
			committed = nil
		} else {
			committed = rtx.Room
		}
		return nil
	}

	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return committed, nil
		}
		var merr mutationError
		if errors.As(err, &merr) {
			return nil, merr.err
		}
		if errors.Is(err, redis.TxFailedErr) {
			log.Debug().Str("module", "redisstate").Str("room", string(id)).Int("attempt", attempt).Msg("room update contended, retrying")
			continue
		}
		return nil, domain.Transient("update room", err)
	}
	return nil, domain.Transient("update room", errors.New("too much contention on "+key))
}

func (s *StateStore) Controller(ctx context.Context, room domain.RoomID) (domain.UserID, bool, error) {
	uid, err := s.client.HGet(ctx, controllerKey, string(room)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, domain.Transient("read controller", err)
	}
	return domain.UserID(uid), true, nil
}

func (s *StateStore) AddPresence(ctx context.Context, room domain.RoomID, user domain.UserID) error {
	if err := s.client.HIncrBy(ctx, presenceKey(room), string(user), 1).Err(); err != nil {
		return domain.Transient("add presence", err)
	}
	return nil
}

func (s *StateStore) RemovePresence(ctx context.Context, room domain.RoomID, user domain.UserID) error {
	n, err := s.client.HIncrBy(ctx, presenceKey(room), string(user), -1).Result()
	if err != nil {
		return domain.Transient("remove presence", err)
	}
	if n <= 0 {
		if err := s.client.HDel(ctx, presenceKey(room), string(user)).Err(); err != nil {
			return domain.Transient("remove presence", err)
		}
	}
	return nil
}

func (s *StateStore) PresentUsers(ctx context.Context, room domain.RoomID) (map[domain.UserID]int, error) {
	raw, err := s.client.HGetAll(ctx, presenceKey(room)).Result()
	if err != nil {
		return nil, domain.Transient("read presence", err)
	}
	out := make(map[domain.UserID]int, len(raw))
	for uid, v := range raw {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			continue
		}
		out[domain.UserID(uid)] = n
	}
	return out, nil
}

func (s *StateStore) AppendUndelivered(ctx context.Context, user domain.UserID, f core.Frame) error {
	if err := s.client.RPush(ctx, undeliveredKey(user), []byte(f)).Err(); err != nil {
		return domain.Transient("append undelivered", err)
	}
	return nil
}

func (s *StateStore) DrainUndelivered(ctx context.Context, user domain.UserID) ([]core.Frame, error) {
	key := undeliveredKey(user)
	var lr *redis.StringSliceCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		lr = pipe.LRange(ctx, key, 0, -1)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, domain.Transient("drain undelivered", err)
	}
	items := lr.Val()
	out := make([]core.Frame, 0, len(items))
	for _, it := range items {
		out = append(out, core.Frame(it))
	}
	return out, nil
}

func (s *StateStore) ClearUndelivered(ctx context.Context, user domain.UserID) error {
	if err := s.client.Del(ctx, undeliveredKey(user)).Err(); err != nil {
		return domain.Transient("clear undelivered", err)
	}
	return nil
}
