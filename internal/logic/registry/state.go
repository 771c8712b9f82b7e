package registry

import (
	"encoding/binary"
	"unicode/utf8"

	"github.com/near/borsh-go"

	"registry-client-sol/internal/consts"
	"registry-client-sol/internal/logic/core"
	"registry-client-sol/internal/types"
)

// Entry 链上 Entry 记录（borsh 布局：storage, owner, model）
type Entry struct {
	Storage types.Pubkey
	Owner   types.Pubkey
	Model   string
}

// Storage storagePool 根账户（borsh 布局：authority, bump, entries）
type Storage struct {
	Authority types.Pubkey
	Bump      uint8
	Entries   []Entry
}

// EntryAccountSize 单条 Entry 账户需要的空间
func EntryAccountSize(model string) uint64 {
	return uint64(consts.EntryAccountSpace + len(model))
}

// StorageAccountSize 根账户写入 entries 条记录后的空间（与程序端 realloc 的计算一致）
func StorageAccountSize(entries int, model string) uint64 {
	return uint64(consts.StorageBaseSpace + entries*(consts.StorageEntrySpace+len(model)))
}

// DecodeEntry 账户数据可能比实际内容长（预分配空间），尾部多余字节忽略
func DecodeEntry(data []byte) (*Entry, error) {
	if len(data) < consts.EntryAccountSpace {
		return nil, core.Errorf(core.KindSchemaMismatch, "entry account too short: %d bytes", len(data))
	}
	if _, err := entryEnd(data, 0); err != nil {
		return nil, err
	}
	var e Entry
	if err := borsh.Deserialize(&e, data); err != nil {
		return nil, core.Wrap(core.KindSchemaMismatch, err, "decode entry")
	}
	if !utf8.ValidString(e.Model) {
		return nil, core.Errorf(core.KindSchemaMismatch, "entry model is not valid utf-8")
	}
	return &e, nil
}

func DecodeStorage(data []byte) (*Storage, error) {
	if len(data) < consts.StorageBaseSpace {
		return nil, core.Errorf(core.KindSchemaMismatch, "storage account too short: %d bytes", len(data))
	}
	n := binary.LittleEndian.Uint32(data[33:37])
	if uint64(n)*consts.EntryAccountSpace > uint64(len(data)-consts.StorageBaseSpace) {
		return nil, core.Errorf(core.KindSchemaMismatch, "storage declares %d entries in %d bytes", n, len(data))
	}
	off := consts.StorageBaseSpace
	for i := uint32(0); i < n; i++ {
		end, err := entryEnd(data, off)
		if err != nil {
			return nil, core.Wrap(core.KindSchemaMismatch, err, "storage entry #%d", i)
		}
		off = end
	}

	var s Storage
	if err := borsh.Deserialize(&s, data); err != nil {
		return nil, core.Wrap(core.KindSchemaMismatch, err, "decode storage")
	}
	return &s, nil
}

// entryEnd 校验从 off 开始的一条 entry 完整存在，返回其结束位置。
// 长度前缀先于 borsh 解码检查，避免截断的字符串被静默接受。
func entryEnd(data []byte, off int) (int, error) {
	if len(data)-off < consts.EntryAccountSpace {
		return 0, core.Errorf(core.KindSchemaMismatch, "entry at %d: need %d bytes, have %d", off, consts.EntryAccountSpace, len(data)-off)
	}
	l := binary.LittleEndian.Uint32(data[off+64 : off+68])
	end := uint64(off) + consts.EntryAccountSpace + uint64(l)
	if end > uint64(len(data)) {
		return 0, core.Errorf(core.KindSchemaMismatch, "entry at %d: model length %d exceeds account data", off, l)
	}
	return int(end), nil
}
