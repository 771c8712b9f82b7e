package submit

import (
	"fmt"
	"time"
)

// Outcome 提交的终态
type Outcome int

const (
	OutcomeCommitted Outcome = iota + 1 // 达到目标 commitment，执行成功
	OutcomeRejected                     // 已上链，但程序执行失败（语义拒绝，不重试）
	OutcomeTimedOut                     // 等待超时，结果未知，可以继续轮询同一个签名
	OutcomeExpired                      // blockhash 已失效且从未上链，同一意图可以重新签名提交
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCommitted:
		return "Committed"
	case OutcomeRejected:
		return "Rejected"
	case OutcomeTimedOut:
		return "TimedOut"
	case OutcomeExpired:
		return "Expired"
	default:
		return "Unknown"
	}
}

// Handle Submit 返回的句柄
type Handle struct {
	Signature   string
	SubmittedAt time.Time
}

// Receipt 确认结果。Success=false 且 Outcome=Rejected 是正常终态，不是传输错误
type Receipt struct {
	Signature     string
	Slot          uint64
	Commitment    Commitment // 实际达到的确认程度
	Outcome       Outcome
	Success       bool
	FailureReason string
}

// Reason 可直接写日志的描述
func (r Receipt) Reason() string {
	switch r.Outcome {
	case OutcomeCommitted:
		return fmt.Sprintf("committed at slot %d (%s)", r.Slot, r.Commitment)
	case OutcomeRejected:
		return fmt.Sprintf("rejected at slot %d: %s", r.Slot, r.FailureReason)
	case OutcomeTimedOut:
		return fmt.Sprintf("timed out: %s", r.FailureReason)
	case OutcomeExpired:
		return fmt.Sprintf("expired: %s", r.FailureReason)
	default:
		return "unknown"
	}
}

func formatProgramError(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
