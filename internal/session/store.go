package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/redisx"
	"github.com/ariefcatur/go-shop-checkout/internal/shop"
	"github.com/redis/go-redis/v9"
)

const (
	fieldCart     = "cart"
	fieldCheckout = "checkout"
	fieldExpress  = "express"
	fieldUser     = "user"
	fieldOrder    = "order"
	fieldMessages = "messages"
)

// Store keeps sessions in a Redis hash. Each substructure is its own field and
// is written on its own, so concurrent requests of one browser only race on
// the field they both touch.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = redisx.TTLSession
	}
	return &Store{rdb: rdb, ttl: ttl}
}

// Load returns the session for id. Missing or expired sessions come back
// empty rather than as an error.
func (s *Store) Load(ctx context.Context, id string) (*Session, error) {
	fields, err := s.rdb.HGetAll(ctx, key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}
	sess := New(id)
	if raw, ok := fields[fieldCart]; ok {
		var cart shop.Cart
		if err := json.Unmarshal([]byte(raw), &cart); err != nil {
			return nil, fmt.Errorf("unmarshal cart failed: %w", err)
		}
		sess.Cart = &cart
	}
	if raw, ok := fields[fieldCheckout]; ok {
		var st CheckoutState
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			return nil, fmt.Errorf("unmarshal checkout state failed: %w", err)
		}
		sess.Checkout = &st
	}
	if raw, ok := fields[fieldExpress]; ok {
		var st ExpressState
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			return nil, fmt.Errorf("unmarshal express state failed: %w", err)
		}
		sess.Express = &st
	}
	if raw, ok := fields[fieldMessages]; ok {
		if err := json.Unmarshal([]byte(raw), &sess.Messages); err != nil {
			return nil, fmt.Errorf("unmarshal messages failed: %w", err)
		}
	}
	sess.UserID = fields[fieldUser]
	if raw := fields[fieldOrder]; raw != "" {
		if sess.OrderID, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return nil, fmt.Errorf("parse order id failed: %w", err)
		}
	}
	return sess, nil
}

func (s *Store) SaveCart(ctx context.Context, sess *Session) error {
	return s.put(ctx, sess.ID, fieldCart, sess.Cart)
}

func (s *Store) SaveCheckout(ctx context.Context, sess *Session) error {
	if sess.Checkout == nil {
		return s.del(ctx, sess.ID, fieldCheckout)
	}
	return s.put(ctx, sess.ID, fieldCheckout, sess.Checkout)
}

func (s *Store) ClearCheckout(ctx context.Context, sess *Session) error {
	sess.Checkout = nil
	return s.del(ctx, sess.ID, fieldCheckout)
}

func (s *Store) SaveExpress(ctx context.Context, sess *Session) error {
	if sess.Express == nil {
		return s.del(ctx, sess.ID, fieldExpress)
	}
	return s.put(ctx, sess.ID, fieldExpress, sess.Express)
}

func (s *Store) ClearExpress(ctx context.Context, sess *Session) error {
	sess.Express = nil
	return s.del(ctx, sess.ID, fieldExpress)
}

func (s *Store) SetUser(ctx context.Context, sess *Session, userID string) error {
	sess.UserID = userID
	return s.putRaw(ctx, sess.ID, fieldUser, userID)
}

func (s *Store) SetOrder(ctx context.Context, sess *Session, orderID int64) error {
	sess.OrderID = orderID
	return s.putRaw(ctx, sess.ID, fieldOrder, strconv.FormatInt(orderID, 10))
}

// AddMessage queues a flash message for the next view.
func (s *Store) AddMessage(ctx context.Context, sess *Session, level Level, text string) error {
	sess.Messages = append(sess.Messages, Message{Level: level, Text: text})
	return s.put(ctx, sess.ID, fieldMessages, sess.Messages)
}

// PopMessages hands back the queued messages and forgets them.
func (s *Store) PopMessages(ctx context.Context, sess *Session) ([]Message, error) {
	msgs := sess.Messages
	sess.Messages = nil
	if len(msgs) == 0 {
		return nil, nil
	}
	return msgs, s.del(ctx, sess.ID, fieldMessages)
}

// ClaimCheckout takes the session's payment lock. It reports false while
// another request holds it.
func (s *Store) ClaimCheckout(ctx context.Context, id string) (bool, error) {
	ok, err := redisx.Claim(ctx, s.rdb, fmt.Sprintf(redisx.KeyCheckoutLock, id), redisx.TTLCheckoutLock)
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}
	return ok, nil
}

func (s *Store) ReleaseCheckout(ctx context.Context, id string) error {
	if err := redisx.Release(ctx, s.rdb, fmt.Sprintf(redisx.KeyCheckoutLock, id)); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (s *Store) put(ctx context.Context, id, field string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s failed: %w", field, err)
	}
	return s.putRaw(ctx, id, field, string(b))
}

func (s *Store) putRaw(ctx context.Context, id, field, value string) error {
	k := key(id)
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, k, field, value)
		p.Expire(ctx, k, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis hset %s failed: %w", field, err)
	}
	return nil
}

func (s *Store) del(ctx context.Context, id, field string) error {
	if err := s.rdb.HDel(ctx, key(id), field).Err(); err != nil {
		return fmt.Errorf("redis hdel %s failed: %w", field, err)
	}
	return nil
}

func key(id string) string {
	return fmt.Sprintf(redisx.KeySession, id)
}
