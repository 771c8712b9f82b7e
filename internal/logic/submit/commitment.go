package submit

import (
	"fmt"
	"strings"
)

// Commitment 节点对交易确认程度的描述：processed < confirmed < finalized
type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

func (c Commitment) rank() int {
	switch c {
	case CommitmentProcessed:
		return 1
	case CommitmentConfirmed:
		return 2
	case CommitmentFinalized:
		return 3
	default:
		return 0
	}
}

// Reached 当前确认程度是否已达到 target
func (c Commitment) Reached(target Commitment) bool {
	return c.rank() > 0 && c.rank() >= target.rank()
}

func ParseCommitment(s string) (Commitment, error) {
	c := Commitment(strings.ToLower(strings.TrimSpace(s)))
	if c.rank() == 0 {
		return "", fmt.Errorf("unknown commitment %q", s)
	}
	return c, nil
}
