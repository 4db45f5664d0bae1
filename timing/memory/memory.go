// Package memory implements the latency-modeled single-port main memory
// described by the backend's memory hierarchy: one outstanding request,
// fixed latency with seeded jitter, and a streaming fast path for
// sequential or repeated access.
package memory

import "math/rand"

// DataBase is the physical base address of the data region.
const DataBase uint32 = 0x80400000

// DataSize is the size in bytes of the data region.
const DataSize uint32 = 0x400000

// WordCount is the number of 32-bit words backing the data region.
const WordCount = DataSize / 4

// Memory is a word-addressed array with a single outstanding request and a
// fixed latency plus ±1 cycle of jitter drawn from a seeded PRNG.
type Memory struct {
	words [WordCount]uint32

	latency uint64
	rng     *rand.Rand

	saveAddress   uint32
	saveValid     bool
	saveWriteFlag bool
	remainingTime uint64
}

// New creates a Memory with the given base latency (in cycles) and PRNG
// seed. The wait after the first call is latency-1 plus jitter, clamped at
// zero: latency 0 always completes on the first call, and latency 1
// completes on the first or the second call depending on the jitter.
func New(latency uint64, seed int64) *Memory {
	return &Memory{
		latency: latency,
		rng:     rand.New(rand.NewSource(seed)),
		saveWriteFlag: false,
	}
}

func wordIndex(addr uint32) (uint32, bool) {
	if addr < DataBase || addr >= DataBase+DataSize {
		return 0, false
	}
	return (addr - DataBase) / 4, true
}

func (m *Memory) jitter() int64 {
	return int64(m.rng.Intn(3)) - 1 // uniform in [-1, 1]
}

// Read requests a word at addr. ok is false when the request is still
// in flight (or a different request currently occupies the port); once ok
// is true, value holds the word.
func (m *Memory) Read(addr uint32) (value uint32, ok bool) {
	idx, inRange := wordIndex(addr)
	if !inRange {
		return 0, false
	}

	if m.remainingTime != 0 {
		if !m.saveValid || m.saveAddress != idx || m.saveWriteFlag {
			return 0, false
		}
		m.remainingTime--
		if m.remainingTime == 0 {
			return m.words[idx], true
		}
		return 0, false
	}

	if m.saveValid && !m.saveWriteFlag && (idx == m.saveAddress || idx == m.saveAddress+1) {
		m.saveAddress = idx
		return m.words[idx], true
	}

	m.saveAddress = idx
	m.saveValid = true
	m.saveWriteFlag = false
	rt := m.jitter() + int64(m.latency) - 1
	if rt < 0 {
		rt = 0
	}
	m.remainingTime = uint64(rt)

	if m.remainingTime == 0 {
		return m.words[idx], true
	}
	return 0, false
}

// Write requests a byte-enabled merge of data into the word at addr.
// byteEnable bit i gates byte i of data. ok is false while the request is
// still in flight.
func (m *Memory) Write(addr uint32, data uint32, byteEnable uint8) (ok bool) {
	idx, inRange := wordIndex(addr)
	if !inRange {
		return false
	}

	if m.remainingTime != 0 {
		if !m.saveValid || m.saveAddress != idx || !m.saveWriteFlag {
			return false
		}
		m.remainingTime--
		if m.remainingTime == 0 {
			m.words[idx] = mergeBytes(m.words[idx], data, byteEnable)
			return true
		}
		return false
	}

	m.saveAddress = idx
	m.saveValid = true
	m.saveWriteFlag = true
	rt := m.jitter() + int64(m.latency) - 1
	if rt < 0 {
		rt = 0
	}
	m.remainingTime = uint64(rt)

	if m.remainingTime == 0 {
		m.words[idx] = mergeBytes(m.words[idx], data, byteEnable)
		return true
	}
	return false
}

func mergeBytes(old, data uint32, byteEnable uint8) uint32 {
	var result uint32
	for i := uint(0); i < 4; i++ {
		if byteEnable&(1<<i) != 0 {
			result |= ((data >> (i * 8)) & 0xff) << (i * 8)
		} else {
			result |= ((old >> (i * 8)) & 0xff) << (i * 8)
		}
	}
	return result
}

// FunctionalRead bypasses timing; used by the harness for verification.
func (m *Memory) FunctionalRead(addr uint32, length int) []uint32 {
	out := make([]uint32, length)
	for i := 0; i < length; i++ {
		idx, inRange := wordIndex(addr + uint32(i)*4)
		if inRange {
			out[i] = m.words[idx]
		}
	}
	return out
}

// FunctionalWrite bypasses timing; used by the harness for program load.
func (m *Memory) FunctionalWrite(addr uint32, data []uint32) {
	for i, d := range data {
		if idx, inRange := wordIndex(addr + uint32(i)*4); inRange {
			m.words[idx] = d
		}
	}
}

// ResetState clears the in-flight request without touching memory contents.
// Used at pipeline flush.
func (m *Memory) ResetState() {
	m.remainingTime = 0
	m.saveValid = false
}

// Reset reinitializes the data memory from data, zero-filling the rest.
func (m *Memory) Reset(data []uint32) {
	for i := range m.words {
		m.words[i] = 0
	}
	copy(m.words[:], data)
	m.ResetState()
}
