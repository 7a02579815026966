package sharding

import (
	"fmt"
	"hash/crc32"
)

// ShardCount is the fixed number of partitions for the activity stream.
const ShardCount = 256

// GetShardID calculates the deterministic shard ID for a given list ID.
func GetShardID(listID string) int {
	checksum := crc32.ChecksumIEEE([]byte(listID))
	return int(checksum % ShardCount)
}

// EventSubject returns the NATS subject for a list activity event.
// Format: tudu.event.{shard_id}.list.{list_id}
func EventSubject(listID string) string {
	return fmt.Sprintf("tudu.event.%d.list.%s", GetShardID(listID), listID)
}
