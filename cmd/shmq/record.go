package main

import (
	"encoding/binary"
	"math/rand/v2"
	"time"
)

// recordSize is the encoded size of a record value; the rest of an element
// is padding.
const recordSize = 8

func putRecord(elem []byte, v int64) {
	binary.LittleEndian.PutUint64(elem, uint64(v))
}

func record(elem []byte) int64 {
	return int64(binary.LittleEndian.Uint64(elem))
}

// recordValue draws the next demo value in [0, 5).
func recordValue(r *rand.Rand) int64 {
	return r.Int64N(5)
}

func newRand() *rand.Rand {
	return rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5348_4d51))
}
