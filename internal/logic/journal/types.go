package journal

import "context"

// State envelope 的生命周期状态（Redis 与内存实现统一编码）
type State int

const (
	StateUnknown   State = 0 // 不存在
	StateSigned    State = 1 // 已签名，尚未发送
	StateSubmitted State = 2 // 已被节点接受，等待确认
	StateCommitted State = 3 // ✅ 达到指定 commitment 且执行成功
	StateRejected  State = 4 // ❌ 已上链但程序执行失败 / 预检失败
	StateTimedOut  State = 5 // 🕒 等待超时，结果未知，可重新轮询
	StateExpired   State = 6 // ⌛ blockhash 已过期且节点不认识该签名，永远不会上链
)

func (s State) String() string {
	switch s {
	case StateSigned:
		return "Signed"
	case StateSubmitted:
		return "Submitted"
	case StateCommitted:
		return "Committed"
	case StateRejected:
		return "Rejected"
	case StateTimedOut:
		return "TimedOut"
	case StateExpired:
		return "Expired"
	default:
		return "Unknown"
	}
}

// Terminal 结果已确定（不会再变化）
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateRejected || s == StateExpired
}

// Replaceable 该 envelope 不会再产生效果，同一意图可以由新的 envelope 接管
func (s State) Replaceable() bool {
	return s == StateRejected || s == StateExpired
}

// Pending 已发送但结果未知，需要继续轮询
func (s State) Pending() bool {
	return s == StateSubmitted || s == StateTimedOut
}

// Journal 记录 envelope 状态与「意图 → envelope」的归属，
// 用来阻止为同一个意图构造第二个不同的 envelope 并提交
type Journal interface {
	// Claim 为 intentKey 登记 signature，返回当前持有者。
	// 持有者不等于 signature 时说明已有另一个 envelope 在途或已成功。
	// 原持有者状态为 Rejected / Expired 时允许被替换。
	Claim(ctx context.Context, intentKey, signature string) (holder string, err error)

	// Track 记录 envelope 使用的 blockhash，用于之后判断它是否已不可能上链
	Track(ctx context.Context, signature, blockhash string) error
	// Blockhash 未记录时返回空串
	Blockhash(ctx context.Context, signature string) (string, error)

	MarkState(ctx context.Context, signature string, state State) error
	State(ctx context.Context, signature string) (State, error)

	// Pending 返回所有 Submitted / TimedOut 的 signature
	Pending(ctx context.Context) ([]string, error)
}
