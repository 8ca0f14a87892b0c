package errcode

// WebSocket error 帧使用的错误码：
// - 4xxx：客户端可修正的问题（帧格式、未认证、超频）
// - 5xxx：服务端故障
const (
	OK             = 0
	MalformedFrame = 4000
	Unauthorized   = 4001
	UnknownEvent   = 4002
	InvalidTarget  = 4004
	RateLimited    = 4029
	SystemError    = 5000
)
