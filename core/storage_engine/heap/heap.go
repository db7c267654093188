// Package heap implements an in-memory heap file of fixed-size records laid
// out in fixed-size blocks. Records are addressed by RecordHandle
// (block, slot) and every block starts with a small header describing it.
//
// The heap is not safe for concurrent use.
package heap

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// BlockHeaderSize is the space reserved at the start of every block:
// block id (uint32), used slot count (uint16), flags (uint8), one spare byte.
const BlockHeaderSize = 8

const (
	flagInUse uint8 = 1 << iota
	flagFull
)

// --- Error Definitions ---

var (
	ErrInvalidConfig = errors.New("invalid heap configuration")
	ErrStorageFull   = errors.New("storage is full")
	ErrInvalidHandle = errors.New("invalid record handle")
	ErrTConstTooLong = errors.New("tconst exceeds 10 bytes")
)

// Config describes the memory pool backing the heap.
type Config struct {
	// Capacity is the total pool size in bytes.
	Capacity int `yaml:"capacity"`
	// BlockSize is the size of a block in bytes, header included.
	BlockSize int `yaml:"block_size"`
	// RecordSize is the slot width in bytes; at least EncodedRecordSize.
	RecordSize int `yaml:"record_size"`
	// CacheBlocks is the number of decoded blocks kept by readers.
	// Zero disables the block cache.
	CacheBlocks int `yaml:"cache_blocks"`
}

// DefaultConfig returns a 100 MB pool of 200 byte blocks holding 18 byte
// records.
func DefaultConfig() Config {
	return Config{
		Capacity:    100_000_000,
		BlockSize:   200,
		RecordSize:  EncodedRecordSize,
		CacheBlocks: 1024,
	}
}

// Validate checks that the configuration describes a usable pool.
func (c Config) Validate() error {
	switch {
	case c.RecordSize < EncodedRecordSize:
		return fmt.Errorf("%w: record size %d, need at least %d", ErrInvalidConfig, c.RecordSize, EncodedRecordSize)
	case c.BlockSize < BlockHeaderSize+c.RecordSize:
		return fmt.Errorf("%w: block size %d cannot hold a %d byte record", ErrInvalidConfig, c.BlockSize, c.RecordSize)
	case c.Capacity < c.BlockSize:
		return fmt.Errorf("%w: capacity %d smaller than one block", ErrInvalidConfig, c.Capacity)
	case c.CacheBlocks < 0:
		return fmt.Errorf("%w: negative cache size %d", ErrInvalidConfig, c.CacheBlocks)
	case (c.BlockSize-BlockHeaderSize)/c.RecordSize > math.MaxUint16:
		return fmt.Errorf("%w: more than %d slots per block", ErrInvalidConfig, math.MaxUint16)
	case uint64(c.Capacity/c.BlockSize) > math.MaxUint32:
		return fmt.Errorf("%w: more than %d blocks", ErrInvalidConfig, uint32(math.MaxUint32))
	}
	return nil
}

// RecordsPerBlock is the number of record slots in one block.
func (c Config) RecordsPerBlock() int {
	return (c.BlockSize - BlockHeaderSize) / c.RecordSize
}

// block is one allocated block. data mirrors the on-block layout; occupied
// tracks which slots hold a record.
type block struct {
	data     []byte
	occupied []bool
	used     int
}

// blockView is a decoded snapshot of a block, as held by the block cache.
type blockView struct {
	records []Record
}

// Heap is a fixed-capacity pool of blocks holding records.
type Heap struct {
	cfg           Config
	logger        *zap.Logger
	slotsPerBlock int
	totalBlocks   int

	// blocks is indexed by block id; nil until a block is first written.
	blocks []*block
	// free holds released slot numbers in ascending order; slots at or
	// beyond highWater have never been used.
	free      []uint32
	highWater uint32

	records    int
	usedBlocks int

	cache       *lru.TwoQueueCache[uint32, *blockView]
	cacheHits   int
	cacheMisses int
}

// New creates an empty heap. Blocks are materialized lazily on first write.
func New(cfg Config, logger *zap.Logger) (*Heap, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	h := &Heap{
		cfg:           cfg,
		logger:        logger,
		slotsPerBlock: cfg.RecordsPerBlock(),
		totalBlocks:   cfg.Capacity / cfg.BlockSize,
	}
	h.blocks = make([]*block, h.totalBlocks)

	if cfg.CacheBlocks > 0 {
		cache, err := lru.New2Q[uint32, *blockView](cfg.CacheBlocks)
		if err != nil {
			return nil, fmt.Errorf("failed to create block cache: %w", err)
		}
		h.cache = cache
	}

	logger.Info("Heap initialized",
		zap.Int("capacity", cfg.Capacity),
		zap.Int("block_size", cfg.BlockSize),
		zap.Int("record_size", cfg.RecordSize),
		zap.Int("records_per_block", h.slotsPerBlock),
		zap.Int("total_blocks", h.totalBlocks),
	)
	return h, nil
}

// Config returns the configuration the heap was created with.
func (h *Heap) Config() Config { return h.cfg }

// InsertRecord stores r in the lowest free slot.
func (h *Heap) InsertRecord(r Record) (RecordHandle, error) {
	slotNo, ok := h.allocate()
	if !ok {
		return RecordHandle{}, fmt.Errorf("%w: %d records in %d blocks", ErrStorageFull, h.records, h.totalBlocks)
	}
	handle := h.handleFor(slotNo)
	b := h.blockFor(handle.Block)

	if err := encodeRecord(b.data[h.slotOffset(handle.Slot):], r); err != nil {
		h.release(slotNo)
		return RecordHandle{}, err
	}
	b.occupied[handle.Slot] = true
	b.used++
	if b.used == 1 {
		h.usedBlocks++
	}
	h.records++
	h.writeHeader(handle.Block, b)
	h.invalidate(handle.Block)
	return handle, nil
}

// GetRecord decodes the record at handle.
func (h *Heap) GetRecord(handle RecordHandle) (Record, error) {
	b, err := h.lookup(handle)
	if err != nil {
		return Record{}, err
	}
	return decodeRecord(b.data[h.slotOffset(handle.Slot):]), nil
}

// DeleteRecord frees the slot at handle for reuse.
func (h *Heap) DeleteRecord(handle RecordHandle) error {
	b, err := h.lookup(handle)
	if err != nil {
		return err
	}
	off := h.slotOffset(handle.Slot)
	clear(b.data[off : off+h.cfg.RecordSize])
	b.occupied[handle.Slot] = false
	b.used--
	if b.used == 0 {
		h.usedBlocks--
	}
	h.records--
	h.writeHeader(handle.Block, b)
	h.invalidate(handle.Block)

	h.release(handle.Block*uint32(h.slotsPerBlock) + uint32(handle.Slot))
	return nil
}

// DeleteRecords frees every slot in handles, or none of them: all handles are
// checked before the first slot is freed. A handle listed twice is invalid.
func (h *Heap) DeleteRecords(handles []RecordHandle) error {
	seen := make(map[RecordHandle]struct{}, len(handles))
	for _, handle := range handles {
		if _, dup := seen[handle]; dup {
			return fmt.Errorf("%w: %s listed twice", ErrInvalidHandle, handle)
		}
		seen[handle] = struct{}{}
		if _, err := h.lookup(handle); err != nil {
			return err
		}
	}
	for _, handle := range handles {
		if err := h.DeleteRecord(handle); err != nil {
			return err
		}
	}
	return nil
}

// Scan visits every record in block order and returns the number of blocks
// read. fn returning false stops the scan early.
func (h *Heap) Scan(fn func(RecordHandle, Record) bool) int {
	accessed := 0
	for id, b := range h.blocks {
		if b == nil || b.used == 0 {
			continue
		}
		accessed++
		for slot, occ := range b.occupied {
			if !occ {
				continue
			}
			handle := RecordHandle{Block: uint32(id), Slot: uint16(slot)}
			if !fn(handle, decodeRecord(b.data[h.slotOffset(handle.Slot):])) {
				return accessed
			}
		}
	}
	return accessed
}

// Stats summarizes heap occupancy.
type Stats struct {
	BlockSize       int
	RecordSize      int
	RecordsPerBlock int
	TotalBlocks     int
	UsedBlocks      int
	Records         int
	UsedBytes       int
	CacheHits       int
	CacheMisses     int
}

// Stats returns the current occupancy figures.
func (h *Heap) Stats() Stats {
	return Stats{
		BlockSize:       h.cfg.BlockSize,
		RecordSize:      h.cfg.RecordSize,
		RecordsPerBlock: h.slotsPerBlock,
		TotalBlocks:     h.totalBlocks,
		UsedBlocks:      h.usedBlocks,
		Records:         h.records,
		UsedBytes:       h.usedBlocks * h.cfg.BlockSize,
		CacheHits:       h.cacheHits,
		CacheMisses:     h.cacheMisses,
	}
}

func (h *Heap) allocate() (uint32, bool) {
	if len(h.free) > 0 {
		slotNo := h.free[0]
		h.free = h.free[1:]
		return slotNo, true
	}
	if int(h.highWater) >= h.totalBlocks*h.slotsPerBlock {
		return 0, false
	}
	slotNo := h.highWater
	h.highWater++
	return slotNo, true
}

func (h *Heap) release(slotNo uint32) {
	pos, _ := slices.BinarySearch(h.free, slotNo)
	h.free = slices.Insert(h.free, pos, slotNo)
}

func (h *Heap) handleFor(slotNo uint32) RecordHandle {
	spb := uint32(h.slotsPerBlock)
	return RecordHandle{Block: slotNo / spb, Slot: uint16(slotNo % spb)}
}

func (h *Heap) slotOffset(slot uint16) int {
	return BlockHeaderSize + int(slot)*h.cfg.RecordSize
}

func (h *Heap) blockFor(id uint32) *block {
	if b := h.blocks[id]; b != nil {
		return b
	}
	b := &block{
		data:     make([]byte, h.cfg.BlockSize),
		occupied: make([]bool, h.slotsPerBlock),
	}
	h.blocks[id] = b
	h.writeHeader(id, b)
	h.logger.Debug("Allocated block", zap.Uint32("block_id", id))
	return b
}

func (h *Heap) lookup(handle RecordHandle) (*block, error) {
	if int(handle.Block) >= h.totalBlocks || int(handle.Slot) >= h.slotsPerBlock {
		return nil, fmt.Errorf("%w: %s out of range", ErrInvalidHandle, handle)
	}
	b := h.blocks[handle.Block]
	if b == nil || !b.occupied[handle.Slot] {
		return nil, fmt.Errorf("%w: %s is not occupied", ErrInvalidHandle, handle)
	}
	return b, nil
}

func (h *Heap) writeHeader(id uint32, b *block) {
	binary.LittleEndian.PutUint32(b.data[0:], id)
	binary.LittleEndian.PutUint16(b.data[4:], uint16(b.used))
	var flags uint8
	if b.used > 0 {
		flags |= flagInUse
	}
	if b.used == h.slotsPerBlock {
		flags |= flagFull
	}
	b.data[6] = flags
}

func (h *Heap) invalidate(id uint32) {
	if h.cache != nil {
		h.cache.Remove(id)
	}
}

// view returns the decoded contents of block id, going through the block
// cache when one is configured.
func (h *Heap) view(id uint32) *blockView {
	if h.cache != nil {
		if v, ok := h.cache.Get(id); ok {
			h.cacheHits++
			return v
		}
		h.cacheMisses++
	}

	b := h.blocks[id]
	v := &blockView{records: make([]Record, h.slotsPerBlock)}
	for slot, occ := range b.occupied {
		if occ {
			v.records[slot] = decodeRecord(b.data[h.slotOffset(uint16(slot)):])
		}
	}
	if h.cache != nil {
		h.cache.Add(id, v)
	}
	return v
}
