// Package shard deterministically partitions the work-unit universe so that
// independent processes can split it without any coordination beyond agreeing
// on a shard index. The assignment is sha256(id) reduced modulo the shard
// count, stable across runs, processes and languages.
package shard

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
)

var ErrInvalidShard = errors.New("invalid shard")

// Validate fails fast on a bad shard configuration, before any network
// activity happens.
func Validate(index, total int) error {
	if total < 1 {
		return fmt.Errorf("%w: shard total %d must be >= 1", ErrInvalidShard, total)
	}
	if index < 0 || index >= total {
		return fmt.Errorf("%w: shard index %d must be in [0, %d)", ErrInvalidShard, index, total)
	}
	return nil
}

// Of returns the shard assignment for a unit id: sha256(id) mod total.
// The full 256-bit digest is reduced, matching what prior collection runs
// recorded, so existing ledgers stay valid across reruns.
func Of(unitID string, total int) int {
	if total <= 1 {
		return 0
	}
	sum := sha256.Sum256([]byte(unitID))
	n := new(big.Int).SetBytes(sum[:])
	return int(new(big.Int).Mod(n, big.NewInt(int64(total))).Int64())
}

// Select filters ids down to the given shard. The input order is preserved.
func Select(ids []string, index, total int) ([]string, error) {
	if err := Validate(index, total); err != nil {
		return nil, err
	}
	if total == 1 {
		return ids, nil
	}
	var out []string
	for _, id := range ids {
		if Of(id, total) == index {
			out = append(out, id)
		}
	}
	return out, nil
}
