package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/clinic-scheduling/internal/interval"
)

const (
	defaultAppointmentsKey = "clinic:appointments"
	defaultBlocksKey       = "clinic:blocked_slots"
	maxTxAttempts          = 5
)

// RedisStore keeps each record kind as a single JSON list under one key.
// Transactions use WATCH on both keys and retry when another writer wins.
type RedisStore struct {
	client          *redis.Client
	appointmentsKey string
	blocksKey       string
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client:          client,
		appointmentsKey: defaultAppointmentsKey,
		blocksKey:       defaultBlocksKey,
	}
}

func (s *RedisStore) Appointments() Ledger { return redisLedger{s} }

func (s *RedisStore) Blackouts() Registry { return redisRegistry{s} }

func (s *RedisStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			st, err := s.load(ctx, tx)
			if err != nil {
				return err
			}

			snapshot := newMemoryStoreFrom(st)
			if err := fn(snapshot); err != nil {
				return err
			}

			apptData, err := json.Marshal(snapshot.st.Appointments)
			if err != nil {
				return fmt.Errorf("encode appointments: %w", err)
			}
			blockData, err := json.Marshal(snapshot.st.Blocks)
			if err != nil {
				return fmt.Errorf("encode blocked slots: %w", err)
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, s.appointmentsKey, apptData, 0)
				pipe.Set(ctx, s.blocksKey, blockData, 0)
				return nil
			})
			return err
		}, s.appointmentsKey, s.blocksKey)

		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 10 * time.Millisecond):
		}
	}
	return fmt.Errorf("redis store: transaction retried %d times: %w", maxTxAttempts, redis.TxFailedErr)
}

// getter is the part of *redis.Client and *redis.Tx the store reads with.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) load(ctx context.Context, c getter) (*state, error) {
	st := &state{}
	if err := getList(ctx, c, s.appointmentsKey, &st.Appointments); err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}
	if err := getList(ctx, c, s.blocksKey, &st.Blocks); err != nil {
		return nil, fmt.Errorf("load blocked slots: %w", err)
	}
	return st, nil
}

func getList(ctx context.Context, c getter, key string, dst any) error {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

// view runs fn against a read-only snapshot.
func (s *RedisStore) view(ctx context.Context, fn func(m *MemoryStore) error) error {
	st, err := s.load(ctx, s.client)
	if err != nil {
		return err
	}
	return fn(newMemoryStoreFrom(st))
}

type redisLedger struct{ s *RedisStore }

func (l redisLedger) All(ctx context.Context) (out []Appointment, err error) {
	err = l.s.view(ctx, func(m *MemoryStore) error {
		out, err = m.Appointments().All(ctx)
		return err
	})
	return out, err
}

func (l redisLedger) ByDate(ctx context.Context, date interval.Date) (out []Appointment, err error) {
	err = l.s.view(ctx, func(m *MemoryStore) error {
		out, err = m.Appointments().ByDate(ctx, date)
		return err
	})
	return out, err
}

func (l redisLedger) ByEmail(ctx context.Context, email string) (out []Appointment, err error) {
	err = l.s.view(ctx, func(m *MemoryStore) error {
		out, err = m.Appointments().ByEmail(ctx, email)
		return err
	})
	return out, err
}

func (l redisLedger) ByID(ctx context.Context, id uuid.UUID) (out *Appointment, err error) {
	err = l.s.view(ctx, func(m *MemoryStore) error {
		out, err = m.Appointments().ByID(ctx, id)
		return err
	})
	return out, err
}

func (l redisLedger) Append(ctx context.Context, a *Appointment) error {
	return l.s.InTx(ctx, func(tx Store) error {
		return tx.Appointments().Append(ctx, a)
	})
}

func (l redisLedger) ReplaceStatus(ctx context.Context, id uuid.UUID, status Status, at time.Time) (out *Appointment, err error) {
	err = l.s.InTx(ctx, func(tx Store) error {
		out, err = tx.Appointments().ReplaceStatus(ctx, id, status, at)
		return err
	})
	return out, err
}

func (l redisLedger) LinkReschedule(ctx context.Context, oldID, newID uuid.UUID, at time.Time) (out *Appointment, err error) {
	err = l.s.InTx(ctx, func(tx Store) error {
		out, err = tx.Appointments().LinkReschedule(ctx, oldID, newID, at)
		return err
	})
	return out, err
}

type redisRegistry struct{ s *RedisStore }

func (r redisRegistry) Block(ctx context.Context, b *BlockedSlot) error {
	return r.s.InTx(ctx, func(tx Store) error {
		return tx.Blackouts().Block(ctx, b)
	})
}

func (r redisRegistry) Unblock(ctx context.Context, id uuid.UUID) error {
	return r.s.InTx(ctx, func(tx Store) error {
		return tx.Blackouts().Unblock(ctx, id)
	})
}

func (r redisRegistry) ForDate(ctx context.Context, date interval.Date) (out []BlockedSlot, err error) {
	err = r.s.view(ctx, func(m *MemoryStore) error {
		out, err = m.Blackouts().ForDate(ctx, date)
		return err
	})
	return out, err
}

func (r redisRegistry) All(ctx context.Context) (out []BlockedSlot, err error) {
	err = r.s.view(ctx, func(m *MemoryStore) error {
		out, err = m.Blackouts().All(ctx)
		return err
	})
	return out, err
}
