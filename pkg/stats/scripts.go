package stats

import "github.com/go-redis/redis/v8"

// updatePlayerStatsScript applies one score to the lifetime and daily rows of
// a player and refreshes the leaderboard indexes, all in one atomic step.
//
// KEYS: lifetime hash, daily hash, lifetime total zset, lifetime high zset,
// daily total zset, daily high zset, players set.
// ARGV: player, score, now (unix ms).
var updatePlayerStatsScript = redis.NewScript(`
local function apply(key, score, now)
  local total = redis.call('HINCRBY', key, 'total', score)
  local games = redis.call('HINCRBY', key, 'games', 1)
  local high = redis.call('HGET', key, 'high')
  if (not high) or tonumber(score) > tonumber(high) then
    high = score
    redis.call('HSET', key, 'high', high)
  end
  redis.call('HSET', key, 'last_played', now)
  return {total, tonumber(high), games}
end

local player, score, now = ARGV[1], ARGV[2], ARGV[3]
local lifetime = apply(KEYS[1], score, now)
local daily = apply(KEYS[2], score, now)

redis.call('ZADD', KEYS[3], lifetime[1], player)
redis.call('ZADD', KEYS[4], lifetime[2], player)
redis.call('ZADD', KEYS[5], daily[1], player)
redis.call('ZADD', KEYS[6], daily[2], player)
redis.call('SADD', KEYS[7], player)

return lifetime
`)

// resetDailyScript zeroes the score and count fields of every daily row and
// the daily leaderboard indexes. Rows are kept.
//
// KEYS: players set, daily total zset, daily high zset.
// ARGV: daily hash key prefix.
var resetDailyScript = redis.NewScript(`
local players = redis.call('SMEMBERS', KEYS[1])
for _, player in ipairs(players) do
  redis.call('HSET', ARGV[1] .. player, 'total', 0, 'high', 0, 'games', 0)
  redis.call('ZADD', KEYS[2], 0, player)
  redis.call('ZADD', KEYS[3], 0, player)
end
return #players
`)

// recordFeeScript appends a fee record under the next journal sequence.
//
// KEYS: sequence counter, time index zset.
// ARGV: amount, timestamp (unix ms), player, record key prefix.
var recordFeeScript = redis.NewScript(`
local seq = redis.call('INCR', KEYS[1])
redis.call('HSET', ARGV[4] .. seq, 'amount', ARGV[1], 'ts', ARGV[2], 'player', ARGV[3])
redis.call('ZADD', KEYS[2], ARGV[2], seq)
return seq
`)

// closeDailyScript moves the current daily rows into the closing snapshot
// and zeroes them, so scores that arrive afterwards count towards the next
// cycle. While a snapshot is pending it is returned unchanged and the daily
// rows are left alone.
//
// KEYS: players set, daily total zset, daily high zset, closing hash.
// ARGV: daily hash key prefix.
// Returns a flat list of player, "total:high:games" pairs.
var closeDailyScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[4]) == 1 then
  return redis.call('HGETALL', KEYS[4])
end
local out = {}
local players = redis.call('SMEMBERS', KEYS[1])
for _, player in ipairs(players) do
  local key = ARGV[1] .. player
  local row = redis.call('HMGET', key, 'total', 'high', 'games')
  if tonumber(row[3] or '0') > 0 then
    local v = (row[1] or '0') .. ':' .. (row[2] or '0') .. ':' .. row[3]
    redis.call('HSET', KEYS[4], player, v)
    table.insert(out, player)
    table.insert(out, v)
  end
  redis.call('HSET', key, 'total', 0, 'high', 0, 'games', 0)
  redis.call('ZADD', KEYS[2], 0, player)
  redis.call('ZADD', KEYS[3], 0, player)
end
redis.call('HSET', KEYS[4], '', '')
return out
`)
