package limits

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// applyScript checks the cooldown and every ledger cap, then applies all
// increments only when every check passed. Running as one Lua script keeps
// check-and-consume atomic across processes.
//
// KEYS[1] is the cooldown key ("" sentinel handled Go-side by omission),
// KEYS[2..] are ledger keys. ARGV: now_ms, cooldown_ms, consume flag, then
// per ledger key a triple (amount, cap, ttl_ms). Returns {"ok"} or
// {"cooldown"} or {"over", key_index, consumed}.
var applyScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local cooldown = tonumber(ARGV[2])
local consume = ARGV[3] == "1"

if cooldown > 0 then
  local last = tonumber(redis.call("GET", KEYS[1]) or "0")
  if now - last < cooldown then
    return {"cooldown"}
  end
end

local idx = 4
for i = 2, #KEYS do
  local amount = tonumber(ARGV[idx])
  local cap = tonumber(ARGV[idx+1])
  local cur = tonumber(redis.call("GET", KEYS[i]) or "0")
  if cur + amount > cap then
    return {"over", i - 1, tostring(cur)}
  end
  idx = idx + 3
end

if consume then
  idx = 4
  for i = 2, #KEYS do
    redis.call("INCRBYFLOAT", KEYS[i], ARGV[idx])
    local ttl = tonumber(ARGV[idx+2])
    if ttl > 0 then
      redis.call("PEXPIRE", KEYS[i], ttl)
    end
    idx = idx + 3
  end
  if cooldown > 0 then
    redis.call("SET", KEYS[1], ARGV[1], "PX", cooldown)
  end
end
return {"ok"}
`)

// RedisLedger shares account-limit consumption across processes through
// Redis. Period keys expire shortly after their calendar period ends.
type RedisLedger struct {
	client *redis.Client
}

// NewRedisLedger connects to Redis and verifies the connection.
func NewRedisLedger(addr, password string, db int) (*RedisLedger, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return &RedisLedger{client: rdb}, nil
}

// Apply implements Ledger via a single EVAL.
func (r *RedisLedger) Apply(ctx context.Context, cooldownKey string, cooldown time.Duration, now time.Time, entries []entry, consume bool) (*violation, error) {
	// The script always receives a cooldown slot; an unused one is a
	// throwaway key guarded by cooldown_ms = 0.
	if cooldownKey == "" {
		cooldownKey = "limits:cooldown:unused"
		cooldown = 0
	}

	keys := make([]string, 0, len(entries)+1)
	keys = append(keys, cooldownKey)
	args := []interface{}{
		now.UnixMilli(),
		cooldown.Milliseconds(),
		boolArg(consume),
	}
	for _, e := range entries {
		keys = append(keys, e.Key)
		args = append(args, e.Amount, e.Cap, e.TTL.Milliseconds())
	}

	res, err := applyScript.Run(ctx, r.client, keys, args...).Slice()
	if err != nil {
		return nil, fmt.Errorf("redis limit apply: %w", err)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("redis limit apply: empty reply")
	}

	switch res[0] {
	case "ok":
		return nil, nil
	case "cooldown":
		return &violation{Cooldown: true, Key: cooldownKey}, nil
	case "over":
		if len(res) < 3 {
			return nil, fmt.Errorf("redis limit apply: malformed reply %v", res)
		}
		idx, _ := res[1].(int64)
		if idx < 1 || int(idx) > len(entries) {
			return nil, fmt.Errorf("redis limit apply: bad entry index %d", idx)
		}
		e := entries[idx-1]
		consumed, _ := strconv.ParseFloat(fmt.Sprint(res[2]), 64)
		return &violation{Scope: e.Scope, Key: e.Key, Consumed: consumed, Cap: e.Cap}, nil
	default:
		return nil, fmt.Errorf("redis limit apply: unexpected reply %v", res)
	}
}

// Close releases the underlying connection pool.
func (r *RedisLedger) Close() error {
	return r.client.Close()
}

func boolArg(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
