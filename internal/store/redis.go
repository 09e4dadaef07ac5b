package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"aaronromeo.com/inboxsweep/pkg/models/action"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "inboxsweep"

// putIfExists overwrites a hash field only when it is already present.
var putIfExists = redis.NewScript(`
if redis.call("HEXISTS", KEYS[1], ARGV[1]) == 1 then
	redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
	return 1
end
return 0
`)

// Redis keeps intent payloads in a hash and their insertion order in a sorted set
// scored by a monotonically increasing sequence.
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client, prefix string) *Redis {
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultRedisPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

// NewRedisFromURL parses a redis:// URL.
func NewRedisFromURL(url, prefix string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	return NewRedis(redis.NewClient(opts), prefix), nil
}

func (r *Redis) seqKey() string { return r.prefix + ":intents:seq" }

func (r *Redis) orderKey() string { return r.prefix + ":intents:order" }

func (r *Redis) intentsKey() string { return r.prefix + ":intents" }

func (r *Redis) Init(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "ping redis")
	}
	return nil
}

func (r *Redis) Add(ctx context.Context, intent action.Intent) error {
	payload, err := json.Marshal(intent)
	if err != nil {
		return errors.Wrap(err, "encode intent")
	}
	seq, err := r.client.Incr(ctx, r.seqKey()).Result()
	if err != nil {
		return errors.Wrap(err, "allocate sequence")
	}

	var added *redis.BoolCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		added = pipe.HSetNX(ctx, r.intentsKey(), intent.ID, payload)
		pipe.ZAddNX(ctx, r.orderKey(), redis.Z{Score: float64(seq), Member: intent.ID})
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "store intent")
	}
	if !added.Val() {
		return errDuplicate(intent.ID)
	}
	return nil
}

func (r *Redis) GetAll(ctx context.Context) ([]action.Intent, error) {
	ids, err := r.client.ZRange(ctx, r.orderKey(), 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "read intent order")
	}
	if len(ids) == 0 {
		return []action.Intent{}, nil
	}
	values, err := r.client.HMGet(ctx, r.intentsKey(), ids...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "read intents")
	}

	intents := make([]action.Intent, 0, len(values))
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			// Order entry without payload: a delete raced the read.
			continue
		}
		var intent action.Intent
		if err := json.Unmarshal([]byte(raw), &intent); err != nil {
			return nil, errors.Wrapf(err, "decode intent %s", ids[i])
		}
		intents = append(intents, intent)
	}
	return intents, nil
}

func (r *Redis) Get(ctx context.Context, id string) (action.Intent, bool, error) {
	raw, err := r.client.HGet(ctx, r.intentsKey(), id).Result()
	if err == redis.Nil {
		return action.Intent{}, false, nil
	}
	if err != nil {
		return action.Intent{}, false, errors.Wrapf(err, "read intent %s", id)
	}
	var intent action.Intent
	if err := json.Unmarshal([]byte(raw), &intent); err != nil {
		return action.Intent{}, false, errors.Wrapf(err, "decode intent %s", id)
	}
	return intent, true, nil
}

func (r *Redis) Put(ctx context.Context, intent action.Intent) error {
	payload, err := json.Marshal(intent)
	if err != nil {
		return errors.Wrap(err, "encode intent")
	}
	if err := putIfExists.Run(ctx, r.client, []string{r.intentsKey()}, intent.ID, string(payload)).Err(); err != nil {
		return errors.Wrapf(err, "update intent %s", intent.ID)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, id string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, r.intentsKey(), id)
		pipe.ZRem(ctx, r.orderKey(), id)
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "delete intent %s", id)
	}
	return nil
}

func (r *Redis) Count(ctx context.Context) (int, error) {
	n, err := r.client.ZCard(ctx, r.orderKey()).Result()
	if err != nil {
		return 0, errors.Wrap(err, "count intents")
	}
	return int(n), nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) String() string {
	return fmt.Sprintf("redis(%s)", r.prefix)
}
