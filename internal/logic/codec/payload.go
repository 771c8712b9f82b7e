package codec

import "fmt"

// Variant 指令数据第 0 字节的变体标签
type Variant uint8

const (
	VariantInitialize Variant = 0 // 初始化 storagePool 根账户
	VariantRegister   Variant = 1 // 写入一条 Entry
)

func (v Variant) String() string {
	switch v {
	case VariantInitialize:
		return "Initialize"
	case VariantRegister:
		return "Register"
	default:
		return fmt.Sprintf("Variant(%d)", uint8(v))
	}
}

// Payload 封闭的变体集合，只有本包内的类型可以实现
type Payload interface {
	Variant() Variant
	isPayload()
}

// InitializePayload 变体 0
type InitializePayload struct {
	Model string
}

func (InitializePayload) Variant() Variant { return VariantInitialize }
func (InitializePayload) isPayload()       {}

// RegisterPayload 变体 1，Model 同时是 Entry 地址派生用的 key
type RegisterPayload struct {
	Model string
}

func (RegisterPayload) Variant() Variant { return VariantRegister }
func (RegisterPayload) isPayload()       {}

// ModelOf 取出任意变体的 model 字段
func ModelOf(p Payload) string {
	switch p := p.(type) {
	case InitializePayload:
		return p.Model
	case RegisterPayload:
		return p.Model
	default:
		return ""
	}
}
