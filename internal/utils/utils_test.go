package utils

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"registry-client-sol/internal/types"
)

func TestEncodeEvent(t *testing.T) {
	msg, err := structpb.NewStruct(map[string]any{"b": "2", "a": 1, "c": true})
	require.NoError(t, err)

	data, err := EncodeEvent(7, msg)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(data[:4]))

	// map 字段顺序不影响编码结果
	again, err := EncodeEvent(7, msg)
	require.NoError(t, err)
	assert.Equal(t, data, again)

	var out structpb.Struct
	eventType, err := DecodeEvent(data, &out)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), eventType)
	assert.Equal(t, "2", out.GetFields()["b"].GetStringValue())
	assert.True(t, out.GetFields()["c"].GetBoolValue())

	_, err = DecodeEvent([]byte{1, 0}, &out)
	assert.Error(t, err)
}

func TestOwnerPartition(t *testing.T) {
	owner := types.PubkeyFromBase58("7MyWqb1JDgHGfkbuyGFvFaPQwLDKJyX2hymhj9NMSYuh")

	p := OwnerPartition(owner, 8)
	assert.GreaterOrEqual(t, p, int32(0))
	assert.Less(t, p, int32(8))
	assert.Equal(t, p, OwnerPartition(owner, 8), "同一 owner 结果稳定")

	assert.Equal(t, int32(0), OwnerPartition(owner, 0))
	assert.Equal(t, int32(0), OwnerPartition(owner, 1))

	// 不同 owner 应当分散到多个分区
	seen := make(map[int32]bool)
	for i := 0; i < 64; i++ {
		var pk types.Pubkey
		pk[0], pk[31] = byte(i), byte(i*7)
		seen[OwnerPartition(pk, 4)] = true
	}
	assert.Len(t, seen, 4)
}
