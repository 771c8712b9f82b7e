package domain

import "registry-client-sol/internal/types"

// Operation 对应链上程序的指令种类
type Operation string

const (
	OperationInitialize Operation = "initialize"
	OperationRegister   Operation = "register"
	OperationUnknown    Operation = "" // 由 ConfirmWatcher 补发时无法得知原始操作
)

// ReceiptEvent 一笔交易进入终态后对外发布的事件。
type ReceiptEvent struct {
	EventID       string       // uuid，消费方去重使用
	Operation     Operation    // initialize / register
	Program       types.Pubkey // registry 程序地址
	Owner         types.Pubkey // storagePool 的 owner
	Model         string       // 写入的 model（Initialize 时为初始化参数）
	Signature     string       // 交易签名（base58）
	Slot          uint64       // 确认时的 slot
	Commitment    string       // 实际达到的 commitment
	Outcome       string       // Committed / Rejected / TimedOut
	Success       bool         // 程序执行是否成功
	FailureReason string       // 失败原因（成功时为空）
	Timestamp     int64        // 事件生成时间（Unix 毫秒）
}
