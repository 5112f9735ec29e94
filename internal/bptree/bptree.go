// Package bptree implements spec.md §4.8's chromosome B+-tree writer:
// the lookup structure mapping chromosome name to (id, length) that
// sits right after the bigWig file header.
//
// Like the original implementation this is grounded on, this writer
// only ever emits a single leaf block -- chrom lists for genome
// assemblies comfortably fit the block_size = max(256, item_count)
// convention below, and a real multi-level chrom B+-tree would need a
// reader to ever exist in this write-only module.
package bptree

import (
	"encoding/binary"
	"io"
	"sort"

	"github.com/genomekit/bigwig/internal/bwerr"
	"github.com/genomekit/bigwig/internal/model"
)

// Magic is the chromosome B+-tree header's on-disk magic number.
const Magic uint32 = 0x78CA8C91

const headerSize = 32
const valSize = 8 // chrom id (u32) + chrom length (u32)

// Write serializes chroms as a single-level B+-tree leaf block, sorted
// by name (readers binary-search the leaf by key, so keys must be in
// sorted order).
func Write(w io.Writer, chroms []model.Chrom) error {
	sorted := make([]model.Chrom, len(chroms))
	copy(sorted, chroms)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	var keySize uint32
	for _, c := range sorted {
		if n := uint32(len(c.Name)); n > keySize {
			keySize = n
		}
	}

	itemCount := uint64(len(sorted))
	blockSize := uint32(256)
	if itemCount > uint64(blockSize) {
		blockSize = uint32(itemCount)
	}

	var hdr [headerSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], Magic)
	binary.LittleEndian.PutUint32(hdr[4:8], blockSize)
	binary.LittleEndian.PutUint32(hdr[8:12], keySize)
	binary.LittleEndian.PutUint32(hdr[12:16], valSize)
	binary.LittleEndian.PutUint64(hdr[16:24], itemCount)
	binary.LittleEndian.PutUint64(hdr[24:32], 0) // reserved
	if _, err := w.Write(hdr[:]); err != nil {
		return bwerr.Wrap(bwerr.IoError, err, "bptree: write header")
	}

	var nodeHdr [4]byte
	nodeHdr[0] = 1 // isLeaf
	nodeHdr[1] = 0
	binary.LittleEndian.PutUint16(nodeHdr[2:4], uint16(itemCount))
	if _, err := w.Write(nodeHdr[:]); err != nil {
		return bwerr.Wrap(bwerr.IoError, err, "bptree: write node header")
	}

	key := make([]byte, keySize)
	for _, c := range sorted {
		for i := range key {
			key[i] = 0
		}
		copy(key, c.Name)
		if _, err := w.Write(key); err != nil {
			return bwerr.Wrap(bwerr.IoError, err, "bptree: write key")
		}
		var val [valSize]byte
		binary.LittleEndian.PutUint32(val[0:4], c.ID)
		binary.LittleEndian.PutUint32(val[4:8], c.Length)
		if _, err := w.Write(val[:]); err != nil {
			return bwerr.Wrap(bwerr.IoError, err, "bptree: write value")
		}
	}
	return nil
}
