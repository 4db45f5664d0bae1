package cache

import "github.com/sarchlab/rvtomasulo/timing/memory"

// Adapter binds a Cache to the Memory behind it, presenting the
// pipeline.Hierarchy shape the execute pipeline probes.
type Adapter struct {
	Cache *Cache
	Mem   *memory.Memory
}

// Read probes the cache, transparently servicing a miss against Mem.
func (a *Adapter) Read(addr uint32) (uint32, bool, bool) {
	return a.Cache.Read(addr, a.Mem)
}

// Write probes the cache, transparently servicing a miss or write-through
// completion against Mem.
func (a *Adapter) Write(addr uint32, data uint32, byteEnable uint8) (bool, bool) {
	return a.Cache.Write(addr, data, byteEnable, a.Mem)
}

// MemoryAdapter presents a bare Memory (no cache configured) as a
// pipeline.Hierarchy. Every access is necessarily a "hit" in the sense
// that there is no cache layer to miss.
type MemoryAdapter struct {
	Mem *memory.Memory
}

// Read reads a word directly from memory.
func (a *MemoryAdapter) Read(addr uint32) (uint32, bool, bool) {
	v, ok := a.Mem.Read(addr)
	return v, ok, true
}

// Write writes a word directly to memory.
func (a *MemoryAdapter) Write(addr uint32, data uint32, byteEnable uint8) (bool, bool) {
	ok := a.Mem.Write(addr, data, byteEnable)
	return ok, true
}
