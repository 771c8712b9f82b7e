package utils

import (
	"github.com/cespare/xxhash/v2"

	"registry-client-sol/internal/types"
)

// OwnerPartition 同一 owner 的回执总是落在同一个分区
func OwnerPartition(owner types.Pubkey, partitions uint32) int32 {
	if partitions <= 1 {
		return 0
	}
	return int32(xxhash.Sum64(owner[:]) % uint64(partitions))
}
