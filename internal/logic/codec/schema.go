package codec

import (
	"encoding/binary"
	"unicode/utf8"

	"registry-client-sol/internal/logic/core"
)

// FieldKind 字段的基础类型
type FieldKind uint8

const (
	KindU8 FieldKind = iota
	KindU16
	KindU32
	KindU64
	KindString // 4 字节小端长度 + UTF-8 字节
)

func (k FieldKind) fixedSize() int {
	switch k {
	case KindU8:
		return 1
	case KindU16:
		return 2
	case KindU32:
		return 4
	case KindU64:
		return 8
	default:
		return -1
	}
}

type Field struct {
	Name string
	Kind FieldKind
}

// 两个变体共用同一个 schema：tag 之后只有 model
var modelSchema = []Field{
	{Name: "model", Kind: KindString},
}

// Schema 返回变体 tag 之后的字段布局
func Schema(v Variant) ([]Field, bool) {
	switch v {
	case VariantInitialize, VariantRegister:
		return modelSchema, true
	default:
		return nil, false
	}
}

// checkLayout 按 schema 检查 body（不含 tag）是否恰好完整覆盖，
// 长度不足、多余字节、非法 UTF-8 都视为 SchemaMismatch
func checkLayout(v Variant, fields []Field, body []byte) error {
	offset := 0
	for _, f := range fields {
		rest := len(body) - offset
		if size := f.Kind.fixedSize(); size > 0 {
			if rest < size {
				return core.Errorf(core.KindSchemaMismatch,
					"variant %s field %q needs %d bytes, have %d", v, f.Name, size, rest)
			}
			offset += size
			continue
		}

		// KindString
		if rest < 4 {
			return core.Errorf(core.KindSchemaMismatch,
				"variant %s field %q length prefix needs 4 bytes, have %d", v, f.Name, rest)
		}
		n := uint64(binary.LittleEndian.Uint32(body[offset : offset+4]))
		offset += 4
		if uint64(len(body)-offset) < n {
			return core.Errorf(core.KindSchemaMismatch,
				"variant %s field %q declares %d bytes, have %d", v, f.Name, n, len(body)-offset)
		}
		if !utf8.Valid(body[offset : offset+int(n)]) {
			return core.Errorf(core.KindSchemaMismatch, "variant %s field %q is not valid utf-8", v, f.Name)
		}
		offset += int(n)
	}

	if offset != len(body) {
		return core.Errorf(core.KindSchemaMismatch,
			"variant %s has %d trailing bytes", v, len(body)-offset)
	}
	return nil
}

// EncodedSize 计算编码后的总字节数（含 tag）
func EncodedSize(p Payload) int {
	return 1 + 4 + len(ModelOf(p))
}
