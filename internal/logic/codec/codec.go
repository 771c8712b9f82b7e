package codec

import (
	"math"

	"github.com/near/borsh-go"

	"registry-client-sol/internal/logic/core"
)

// maxStringLen 4 字节长度前缀能表示的最大字节数
var maxStringLen uint64 = math.MaxUint32

// modelWire 链上程序按 borsh 反序列化的结构：{variant: u8, model: String}
type modelWire struct {
	Variant uint8
	Model   string
}

// Encode 编码为指令数据：第 0 字节为 tag，随后按 schema 顺序写字段。
// 字符串超过长度前缀上限时返回 EncodingOverflow，不产生任何字节。
func Encode(p Payload) ([]byte, error) {
	var wire modelWire
	switch p := p.(type) {
	case InitializePayload:
		wire = modelWire{Variant: uint8(VariantInitialize), Model: p.Model}
	case RegisterPayload:
		wire = modelWire{Variant: uint8(VariantRegister), Model: p.Model}
	default:
		return nil, core.Errorf(core.KindUnknownVariant, "unsupported payload type %T", p)
	}

	if uint64(len(wire.Model)) > maxStringLen {
		return nil, core.Errorf(core.KindEncodingOverflow,
			"field \"model\" is %d bytes, max %d", len(wire.Model), maxStringLen)
	}

	data, err := borsh.Serialize(wire)
	if err != nil {
		return nil, core.Wrap(core.KindEncodingOverflow, err, "borsh serialize %s", p.Variant())
	}
	return data, nil
}

// Decode 解码指令数据。先按 schema 校验完整布局，校验通过后才反序列化，
// 不存在部分成功的结果。
func Decode(data []byte) (Payload, error) {
	if len(data) == 0 {
		return nil, core.Errorf(core.KindSchemaMismatch, "empty payload, missing variant tag")
	}

	v := Variant(data[0])
	fields, ok := Schema(v)
	if !ok {
		return nil, core.Errorf(core.KindUnknownVariant, "no schema registered for tag %d", data[0])
	}
	if err := checkLayout(v, fields, data[1:]); err != nil {
		return nil, err
	}

	var wire modelWire
	if err := borsh.Deserialize(&wire, data); err != nil {
		return nil, core.Wrap(core.KindSchemaMismatch, err, "borsh deserialize %s", v)
	}

	switch v {
	case VariantInitialize:
		return InitializePayload{Model: wire.Model}, nil
	case VariantRegister:
		return RegisterPayload{Model: wire.Model}, nil
	default:
		return nil, core.Errorf(core.KindUnknownVariant, "no schema registered for tag %d", data[0])
	}
}
