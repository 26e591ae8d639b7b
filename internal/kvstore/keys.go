package kvstore

import (
	"encoding/binary"
	"math"

	"github.com/ethereum/go-ethereum/common"

	"voting-escrow/internal/escrow"
)

// Key layout. Periods are big-endian so byte order equals period order.
//
//	c                      config
//	k                      slope catch-up cursor
//	l <addr>               lock
//	b <addr>               blacklist membership
//	h 0x00 <period>        global point
//	h 0x01 <addr> <period> account point
//	s <period>             scheduled slope change
var (
	keyConfig       = []byte("c")
	keyCursor       = []byte("k")
	prefixLock      = []byte("l")
	prefixBlacklist = []byte("b")
	prefixHistory   = []byte("h")
	prefixSlope     = []byte("s")
)

const (
	entityGlobal  byte = 0x00
	entityAccount byte = 0x01
)

func join(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func periodBytes(p escrow.Period) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(p))
	return b[:]
}

func lockKey(addr common.Address) []byte {
	return join(prefixLock, addr.Bytes())
}

func blacklistKey(addr common.Address) []byte {
	return join(prefixBlacklist, addr.Bytes())
}

func historyPrefix(e escrow.Entity) []byte {
	if e.Global {
		return join(prefixHistory, []byte{entityGlobal})
	}
	return join(prefixHistory, []byte{entityAccount}, e.Account.Bytes())
}

func historyKey(e escrow.Entity, p escrow.Period) []byte {
	return join(historyPrefix(e), periodBytes(p))
}

func slopeKey(p escrow.Period) []byte {
	return join(prefixSlope, periodBytes(p))
}

// upperBound returns the exclusive limit that covers every period <= p
// under prefix.
func upperBound(prefix []byte, p escrow.Period) []byte {
	if uint64(p) == math.MaxUint64 {
		return prefixEnd(prefix)
	}
	return join(prefix, periodBytes(p+1))
}

// prefixEnd returns the smallest key greater than every key with the prefix.
func prefixEnd(prefix []byte) []byte {
	end := copyBytes(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

func addrFromKey(key, prefix []byte) common.Address {
	return common.BytesToAddress(key[len(prefix):])
}

func beUint64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}
