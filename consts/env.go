package consts

const (
	Env     = "EGGIE_REACTOR_ENV"     // 运行环境，test 时使用开发模式日志
	Host    = "EGGIE_REACTOR_HOST"    // 主机名，目前只支持ipv4
	Port    = "EGGIE_REACTOR_PORT"    // 端口
	SetSize = "EGGIE_REACTOR_SETSIZE" // 事件循环初始容量
	Durable = "EGGIE_REACTOR_DURABLE" // 开启aof持久化
)
