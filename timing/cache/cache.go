// Package cache implements the optional L1 data cache: a configurable
// set-associative cache with FIFO/LRU/Random replacement and a
// write-through or write-back policy, sitting in front of the latency
// modeled main memory.
//
// A miss is serviced word-by-word over multiple cycles rather than as a
// single atomic transfer, mirroring how the backing memory itself only
// ever completes one word per step. At most one miss may be in flight;
// Read/Write called with a different (address, isWrite) pair while one is
// pending return "not yet" without disturbing the in-flight request.
package cache

import (
	"math/rand"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/sarchlab/rvtomasulo/timing/memory"
)

// Replace selects the victim-selection policy for a set.
type Replace uint8

const (
	LRU Replace = iota
	FIFO
	Random
)

// Config describes the cache's geometry and policy.
type Config struct {
	Size          int     `json:"size"`          // total bytes
	Associativity int     `json:"associativity"` // ways per set
	BlockSize     int     `json:"block_size"`    // bytes per block
	WriteThrough  bool    `json:"write_through"`
	Replace       Replace `json:"replace"`
}

// phase names the cache's in-flight multi-cycle request state.
type phase uint8

const (
	idle phase = iota
	writeback
	fill
	writeThrough
)

// Cache is a set-associative cache backed by Memory. Tag/valid/dirty
// bookkeeping rides on akita's cache directory; FIFO and Random victim
// selection are implemented directly against the directory's sets since
// only an LRU victim finder is exposed by that package.
type Cache struct {
	config    Config
	numSets   int
	directory *akitacache.DirectoryImpl
	dataStore [][]uint32 // one []uint32 per (setID*associativity+wayID) block
	fifoPtr   []int      // next-victim way index, per set
	rng       *rand.Rand

	// in-flight request state
	state           phase
	occupyAddress   uint32
	occupyWriteFlag bool
	writeData       uint32
	byteEnable      uint8
	throughHit      bool // hit flag reported when a write-through completes
	saveOffset      uint32
	setID, wayID    int
	blockAddr       uint32

	stats Statistics
}

// Statistics counts cache events for diagnostics and the cache-geometry
// checker tool.
type Statistics struct {
	Reads      uint64
	Writes     uint64
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	Writebacks uint64
}

// New returns a Cache with the given geometry and policy. The backing
// Memory is passed to each Read and Write call rather than held here.
func New(config Config, seed int64) *Cache {
	numSets := config.Size / (config.Associativity * config.BlockSize)
	totalBlocks := numSets * config.Associativity

	dataStore := make([][]uint32, totalBlocks)
	for i := range dataStore {
		dataStore[i] = make([]uint32, config.BlockSize/4)
	}

	return &Cache{
		config:  config,
		numSets: numSets,
		directory: akitacache.NewDirectory(
			numSets,
			config.Associativity,
			config.BlockSize,
			akitacache.NewLRUVictimFinder(),
		),
		dataStore: dataStore,
		fifoPtr:   make([]int, numSets),
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// Config returns the cache's geometry and policy.
func (c *Cache) Config() Config { return c.config }

// Stats returns a snapshot of the cache's access counters.
func (c *Cache) Stats() Statistics { return c.stats }

func (c *Cache) blockAddrOf(addr uint32) uint32 {
	return (addr / uint32(c.config.BlockSize)) * uint32(c.config.BlockSize)
}

func (c *Cache) blockIndex(block *akitacache.Block) int {
	return block.SetID*c.config.Associativity + block.WayID
}

// pickVictim selects a replacement way in the set addressed by blockAddr,
// using akita's LRU victim finder for LRU and direct set inspection for
// FIFO/Random (akita exposes no victim-finder constructor for either).
func (c *Cache) pickVictim(blockAddr uint32) *akitacache.Block {
	switch c.config.Replace {
	case LRU:
		return c.directory.FindVictim(uint64(blockAddr))
	case FIFO:
		setID := int(blockAddr/uint32(c.config.BlockSize)) % c.numSets
		set := c.directory.GetSets()[setID]
		way := c.fifoPtr[setID]
		for _, b := range set.Blocks {
			if !b.IsValid {
				return b
			}
		}
		return set.Blocks[way]
	case Random:
		setID := int(blockAddr/uint32(c.config.BlockSize)) % c.numSets
		set := c.directory.GetSets()[setID]
		for _, b := range set.Blocks {
			if !b.IsValid {
				return b
			}
		}
		return set.Blocks[c.rng.Intn(len(set.Blocks))]
	default:
		return c.directory.FindVictim(uint64(blockAddr))
	}
}

func (c *Cache) advanceFIFO(blockAddr uint32) {
	setID := int(blockAddr/uint32(c.config.BlockSize)) % c.numSets
	c.fifoPtr[setID] = (c.fifoPtr[setID] + 1) % c.config.Associativity
}

// beginMiss pins the in-flight request and picks a victim, deciding
// whether a writeback phase precedes the fill.
func (c *Cache) beginMiss(addr uint32, isWrite bool, data uint32, byteEnable uint8) {
	blockAddr := c.blockAddrOf(addr)
	victim := c.pickVictim(blockAddr)

	c.occupyAddress = addr
	c.occupyWriteFlag = isWrite
	c.writeData = data
	c.byteEnable = byteEnable
	c.blockAddr = blockAddr
	c.setID = victim.SetID
	c.wayID = victim.WayID
	c.saveOffset = 0

	if victim.IsValid && victim.IsDirty {
		c.state = writeback
		c.stats.Evictions++
	} else {
		if victim.IsValid {
			c.stats.Evictions++
			victim.IsValid = false
		}
		c.state = fill
	}
}

func (c *Cache) victimBlock() *akitacache.Block {
	return c.directory.GetSets()[c.setID].Blocks[c.wayID]
}

// Read attempts a cache read for addr (must be word-aligned by the
// caller). It returns (value, ok, hit); ok is false while a miss is still
// being serviced or the request conflicts with one already in flight.
func (c *Cache) Read(addr uint32, mem *memory.Memory) (uint32, bool, bool) {
	if c.state != idle {
		if c.occupyAddress != addr || c.occupyWriteFlag {
			return 0, false, false
		}
		return c.continueMiss(mem)
	}

	c.stats.Reads++
	blockAddr := c.blockAddrOf(addr)
	block := c.directory.Lookup(0, uint64(blockAddr))
	if block != nil && block.IsValid {
		c.stats.Hits++
		if c.config.Replace == LRU {
			c.directory.Visit(block)
		}
		offset := (addr - blockAddr) / 4
		return c.dataStore[c.blockIndex(block)][offset], true, true
	}

	c.stats.Misses++
	c.beginMiss(addr, false, 0, 0)
	return c.continueMiss(mem)
}

// Write attempts a cache write of data (byteEnable-gated) to addr. It
// returns (ok, hit). Under write-through, ok is only true once the
// matching memory write has also completed.
func (c *Cache) Write(addr uint32, data uint32, byteEnable uint8, mem *memory.Memory) (bool, bool) {
	if c.state != idle {
		if c.occupyAddress != addr || !c.occupyWriteFlag {
			return false, false
		}
		ok, _, hit := c.continueMissWrite(mem)
		return ok, hit
	}

	c.stats.Writes++
	blockAddr := c.blockAddrOf(addr)
	block := c.directory.Lookup(0, uint64(blockAddr))
	if block != nil && block.IsValid {
		c.stats.Hits++
		if c.config.Replace == LRU {
			c.directory.Visit(block)
		}
		offset := (addr - blockAddr) / 4
		c.mergeWord(c.blockIndex(block), offset, data, byteEnable)

		if c.config.WriteThrough {
			c.setID, c.wayID = block.SetID, block.WayID
			c.blockAddr = blockAddr
			c.occupyAddress = addr
			c.occupyWriteFlag = true
			c.writeData = data
			c.byteEnable = byteEnable
			c.throughHit = true
			c.state = writeThrough
			ok, _, hit := c.continueMissWrite(mem)
			return ok, hit
		}
		block.IsDirty = true
		return true, true
	}

	c.stats.Misses++
	c.beginMiss(addr, true, data, byteEnable)
	ok, _, hit := c.continueMissWrite(mem)
	return ok, hit
}

func (c *Cache) mergeWord(blockIdx int, wordOffset uint32, data uint32, byteEnable uint8) {
	old := c.dataStore[blockIdx][wordOffset]
	var merged uint32
	for i := 0; i < 4; i++ {
		shift := uint(i * 8)
		if byteEnable&(1<<uint(i)) != 0 {
			merged |= (data >> shift & 0xff) << shift
		} else {
			merged |= (old >> shift & 0xff) << shift
		}
	}
	c.dataStore[blockIdx][wordOffset] = merged
}

// continueMiss advances a read-triggered fill/writeback by one cycle.
func (c *Cache) continueMiss(mem *memory.Memory) (uint32, bool, bool) {
	if c.state == writeback {
		victim := c.victimBlock()
		victimData := c.dataStore[c.blockIndex(victim)]
		word := victimData[c.saveOffset/4]
		if !mem.Write(c.blockAddr+c.saveOffset, word, 0xf) {
			return 0, false, false
		}
		c.saveOffset += 4
		if c.saveOffset == uint32(c.config.BlockSize) {
			victim.IsValid = false
			victim.IsDirty = false
			c.saveOffset = 0
			c.state = fill
			c.stats.Writebacks++
		}
		return 0, false, false
	}

	if c.state == fill {
		victim := c.victimBlock()
		victimData := c.dataStore[c.blockIndex(victim)]
		word, ok := mem.Read(c.blockAddr + c.saveOffset)
		if !ok {
			return 0, false, false
		}
		victimData[c.saveOffset/4] = word
		c.saveOffset += 4
		if c.saveOffset == uint32(c.config.BlockSize) {
			victim.Tag = uint64(c.blockAddr)
			victim.IsValid = true
			victim.IsDirty = false
			if c.config.Replace == LRU {
				c.directory.Visit(victim)
			} else if c.config.Replace == FIFO {
				c.advanceFIFO(c.blockAddr)
			}
			offset := (c.occupyAddress - c.blockAddr) / 4
			value := victimData[offset]
			if c.occupyWriteFlag {
				c.mergeWord(c.blockIndex(victim), offset, c.writeData, c.byteEnable)
				victim.IsDirty = !c.config.WriteThrough
			}
			c.state = idle
			return value, true, false
		}
		return 0, false, false
	}

	return 0, false, false
}

// continueMissWrite drives the same fill/writeback state machine for a
// write and also handles the write-through completion phase.
func (c *Cache) continueMissWrite(mem *memory.Memory) (uint32, bool, bool) {
	if c.state == writeThrough {
		if !mem.Write(c.occupyAddress, c.writeData, c.byteEnable) {
			return 0, false, false
		}
		c.state = idle
		return 0, true, c.throughHit
	}
	_, ok, hit := c.continueMiss(mem)
	if !ok {
		return 0, false, false
	}
	if c.config.WriteThrough {
		c.throughHit = false
		c.state = writeThrough
		return c.continueMissWrite(mem)
	}
	return 0, true, hit
}

// Invalidate marks a resident block as invalid without writeback, so the
// next access to it refetches from memory.
func (c *Cache) Invalidate(addr uint32) {
	blockAddr := c.blockAddrOf(addr)
	block := c.directory.Lookup(0, uint64(blockAddr))
	if block != nil && block.IsValid {
		block.IsValid = false
		block.IsDirty = false
	}
}

// ResetState discards any in-flight miss without touching resident
// blocks, used at a pipeline flush where contents committed to the
// cache survive a branch misprediction's re-steer.
func (c *Cache) ResetState() {
	c.state = idle
}

// Reset invalidates every block and clears the in-flight request and
// statistics, used when the harness reloads a program image.
func (c *Cache) Reset() {
	c.directory.Reset()
	for i := range c.fifoPtr {
		c.fifoPtr[i] = 0
	}
	c.stats = Statistics{}
	c.state = idle
}
