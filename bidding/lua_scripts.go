package bidding

import "github.com/redis/go-redis/v9"

// LeadingBidScript 更新快取的領先金額並把出價事件寫入stream
//
//	KEYS[1] - 作品領先金額的鍵
//	KEYS[2] - 出價事件的 stream
//	ARGV[1] - 出價金額
//	ARGV[2] - 序列化後的出價事件
//	ARGV[3] - 領先金額的過期秒數
//	ARGV[4] - stream 保留的大約長度，0 表示不修剪
//
// 返回值:
//
//	1 - 已更新並寫入stream
//	0 - 金額未高於快取的領先金額，事件未寫入
//
// 出價本身已經在資料庫中成立，這裡只負責避免重複或倒退的事件
var LeadingBidScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1])) or 0
local amount = tonumber(ARGV[1])
if amount <= current then
    return 0
end

redis.call('SET', KEYS[1], ARGV[1], 'EX', tonumber(ARGV[3]))

local maxlen = tonumber(ARGV[4]) or 0
if maxlen > 0 then
    redis.call('XADD', KEYS[2], 'MAXLEN', '~', maxlen, '*', 'data', ARGV[2])
else
    redis.call('XADD', KEYS[2], '*', 'data', ARGV[2])
end
return 1
`)
