package util

// 领取结果
const (
	ClaimOK             = "ok"
	ClaimAlreadyClaimed = "alreadyClaimed"
)

// 排行榜条数
const (
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 100
)
