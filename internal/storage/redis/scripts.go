package redis

const (
	// appendHistoryScript atomically stores a history entry and indexes it by end time
	appendHistoryScript = `
local entry_key = KEYS[1]       -- reelfocus:history:entry:{id}
local index_key = KEYS[2]       -- reelfocus:history

local id = ARGV[1]
local score = tonumber(ARGV[2]) -- end time, unix millis
local ttl_seconds = tonumber(ARGV[3])

redis.call('HSET', entry_key,
  'id', id,
  'app_name', ARGV[4],
  'app_package', ARGV[5],
  'start_time', ARGV[6],
  'end_time', ARGV[7],
  'duration_seconds', ARGV[8],
  'limit_type', ARGV[9],
  'limit_value', ARGV[10],
  'extensions_used', ARGV[11],
  'completed', ARGV[12],
  'date', ARGV[13]
)

redis.call('ZADD', index_key, score, id)

if ttl_seconds > 0 then
  redis.call('EXPIRE', entry_key, ttl_seconds)
end

return 'OK'
`

	// deleteHistoryBeforeScript removes every entry that ended before the cutoff
	deleteHistoryBeforeScript = `
local index_key = KEYS[1]       -- reelfocus:history
local entry_prefix = ARGV[1]    -- reelfocus:history:entry:
local cutoff = ARGV[2]          -- unix millis, exclusive

local ids = redis.call('ZRANGEBYSCORE', index_key, '-inf', '(' .. cutoff)
for _, id in ipairs(ids) do
  redis.call('DEL', entry_prefix .. id)
end
redis.call('ZREMRANGEBYSCORE', index_key, '-inf', '(' .. cutoff)

return #ids
`

	// clearHistoryScript removes the whole history log
	clearHistoryScript = `
local index_key = KEYS[1]       -- reelfocus:history
local entry_prefix = ARGV[1]    -- reelfocus:history:entry:

local ids = redis.call('ZRANGE', index_key, 0, -1)
for _, id in ipairs(ids) do
  redis.call('DEL', entry_prefix .. id)
end
redis.call('DEL', index_key)

return #ids
`
)
