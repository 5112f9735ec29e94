// Package rtree implements spec.md §4.7's R-tree (cirTree) index
// builder: a bottom-up spatial index over the sections recorded in an
// internal/sectionidx stream, fanned out at a configurable block size
// and serialized with the two-pass layout UCSC's cirTree format uses --
// every non-root level laid out at a fixed per-block stride so that a
// parent's child pointer can be computed before that child is written.
package rtree

import (
	"encoding/binary"
	"io"

	"github.com/genomekit/bigwig/internal/bwerr"
	"github.com/genomekit/bigwig/internal/sectionidx"
)

// Magic is the cirTree header's on-disk magic number.
const Magic uint32 = 0x2468ACE0

const (
	nodeHeaderSize   = 4  // isLeaf(1) + reserved(1) + count(2)
	leafEntrySize    = 32 // interval(16) + offset(8) + size(8)
	nonLeafEntrySize = 24 // interval(16) + child_offset(8)
	headerSize       = 48
)

// Interval is the chromosome/base span a node's subtree covers.
type Interval struct {
	StartChromIdx uint32
	StartBase     uint32
	EndChromIdx   uint32
	EndBase       uint32
}

type leafData struct {
	offset uint64
	size   uint64
}

type node struct {
	interval Interval
	isLeaf   bool
	leaf     leafData
	children []*node
}

// Tree is a bottom-up R-tree built over one chromosome-ordered section
// stream. Build it with Build, serialize it with Write.
type Tree struct {
	root         []*node
	levels       int
	sectionCount uint64
	blockSize    uint32
}

// Build consumes it in commit order and constructs the tree, grouping
// blockSize siblings under each parent. Every node but the last at a
// given level has exactly blockSize children; the final one may have
// fewer. it must yield entries in strictly increasing output-file
// offset order (sectionidx.Recorder guarantees this as long as callers
// append in commit order, per spec.md §5).
func Build(it *sectionidx.Iterator, blockSize uint32) (*Tree, error) {
	if blockSize < 2 {
		return nil, bwerr.Invalidf("rtree: block size %d must be >= 2", blockSize)
	}

	var current []*node
	var total uint64
	for {
		e, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		current = append(current, &node{
			isLeaf: true,
			interval: Interval{
				StartChromIdx: e.ChromID,
				StartBase:     e.Start,
				EndChromIdx:   e.ChromID,
				EndBase:       e.End,
			},
			leaf: leafData{offset: e.Offset, size: e.Size},
		})
		total++
	}

	levels := 0
	for {
		next, grouped := groupOnce(current, blockSize)
		if grouped {
			levels++
		}
		if uint32(len(next)) < blockSize {
			return &Tree{root: next, levels: levels, sectionCount: total, blockSize: blockSize}, nil
		}
		current = next
	}
}

// groupOnce folds currentNodes into parents of up to blockSize children
// each. A trailing group smaller than blockSize is either promoted
// directly into nextNodes (if it is the only group this pass produced)
// or wrapped as one final, under-full parent.
func groupOnce(currentNodes []*node, blockSize uint32) (nextNodes []*node, grouped bool) {
	var group []*node
	var agg Interval

	for _, n := range currentNodes {
		if len(group) == 0 {
			agg = n.interval
		} else {
			if agg.EndChromIdx == n.interval.EndChromIdx {
				if n.interval.EndBase > agg.EndBase {
					agg.EndBase = n.interval.EndBase
				}
			} else {
				agg.EndBase = n.interval.EndBase
			}
			if n.interval.EndChromIdx > agg.EndChromIdx {
				agg.EndChromIdx = n.interval.EndChromIdx
			}
		}
		group = append(group, n)
		if uint32(len(group)) >= blockSize {
			grouped = true
			nextNodes = append(nextNodes, &node{interval: agg, children: group})
			group = nil
		}
	}
	if len(group) > 0 {
		if len(nextNodes) == 0 {
			nextNodes = group
		} else {
			nextNodes = append(nextNodes, &node{interval: agg, children: group})
		}
	}
	return nextNodes, grouped
}

// Write serializes the tree to w: a 48-byte cirTree header followed by
// every level's blocks, root first, in the exact layout readers expect.
// baseOffset is the absolute offset in the destination file at which
// this call begins writing -- callers must pass w positioned there, and
// baseOffset is also recorded as the header's end-of-data marker. That
// is the index's own start; it equals the end of the indexed data only
// when nothing is written between the two (writer.go writes the
// chromosome B+-tree between the primary data and the primary index).
func (t *Tree) Write(w io.Writer, baseOffset uint64, itemsPerSlot uint32) error {
	var hdr [headerSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], Magic)
	binary.LittleEndian.PutUint32(hdr[4:8], t.blockSize)
	binary.LittleEndian.PutUint64(hdr[8:16], t.sectionCount)
	if len(t.root) > 0 {
		first := t.root[0].interval
		last := t.root[len(t.root)-1].interval
		binary.LittleEndian.PutUint32(hdr[16:20], first.StartChromIdx)
		binary.LittleEndian.PutUint32(hdr[20:24], first.StartBase)
		binary.LittleEndian.PutUint32(hdr[24:28], last.EndChromIdx)
		binary.LittleEndian.PutUint32(hdr[28:32], last.EndBase)
	}
	binary.LittleEndian.PutUint64(hdr[32:40], baseOffset)
	binary.LittleEndian.PutUint32(hdr[40:44], itemsPerSlot)
	binary.LittleEndian.PutUint32(hdr[44:48], 0)
	if _, err := w.Write(hdr[:]); err != nil {
		return bwerr.Wrap(bwerr.IoError, err, "rtree: write header")
	}

	if len(t.root) == 0 {
		return nil
	}

	sizes := make([]uint64, t.levels)
	calcSizes(t.root, t.levels, sizes)

	nextOffset := baseOffset + headerSize
	for level := t.levels; level >= 0; level-- {
		if level > 0 {
			nextOffset += sizes[level-1]
		}
		if _, err := writeLevel(w, t.root, t.levels, level, nextOffset, t.blockSize); err != nil {
			return err
		}
	}
	return nil
}

// calcSizes computes, for each index level above the leaves, the total
// serialized byte size of every block at that level -- needed so a
// parent's child_offset field can point at a level that has not been
// written yet.
func calcSizes(nodes []*node, level int, sizes []uint64) {
	if level == 0 {
		return
	}
	sizes[level-1] += nodeHeaderSize
	for _, n := range nodes {
		sizes[level-1] += nonLeafEntrySize
		calcSizes(n.children, level-1, sizes)
	}
}

// writeLevel walks down from currLevel to destLevel, writing nodes only
// once destLevel is reached. childOffset is the absolute file offset at
// which the child blocks of destLevel's first block (among nodes'
// descendants) begin. It returns how far those child blocks extend --
// one full block per entry written at destLevel -- so the next block's
// children start that much further on.
func writeLevel(w io.Writer, nodes []*node, currLevel, destLevel int, childOffset uint64, blockSize uint32) (uint64, error) {
	if currLevel != destLevel {
		var total uint64
		offset := childOffset
		for _, n := range nodes {
			written, err := writeLevel(w, n.children, currLevel-1, destLevel, offset, blockSize)
			if err != nil {
				return 0, err
			}
			offset += written
			total += written
		}
		return total, nil
	}

	isLeaf := byte(0)
	if len(nodes) > 0 && nodes[0].isLeaf {
		isLeaf = 1
	}
	var hdr [nodeHeaderSize]byte
	hdr[0] = isLeaf
	hdr[1] = 0
	binary.LittleEndian.PutUint16(hdr[2:4], uint16(len(nodes)))
	if _, err := w.Write(hdr[:]); err != nil {
		return 0, bwerr.Wrap(bwerr.IoError, err, "rtree: write node header")
	}
	full := uint64(nodeHeaderSize) + uint64(nonLeafEntrySize)*uint64(blockSize)
	if currLevel-1 == 0 {
		full = uint64(nodeHeaderSize) + uint64(leafEntrySize)*uint64(blockSize)
	}

	for idx, n := range nodes {
		var interval [16]byte
		binary.LittleEndian.PutUint32(interval[0:4], n.interval.StartChromIdx)
		binary.LittleEndian.PutUint32(interval[4:8], n.interval.StartBase)
		binary.LittleEndian.PutUint32(interval[8:12], n.interval.EndChromIdx)
		binary.LittleEndian.PutUint32(interval[12:16], n.interval.EndBase)
		if _, err := w.Write(interval[:]); err != nil {
			return 0, bwerr.Wrap(bwerr.IoError, err, "rtree: write node interval")
		}

		if n.isLeaf {
			var rest [16]byte
			binary.LittleEndian.PutUint64(rest[0:8], n.leaf.offset)
			binary.LittleEndian.PutUint64(rest[8:16], n.leaf.size)
			if _, err := w.Write(rest[:]); err != nil {
				return 0, bwerr.Wrap(bwerr.IoError, err, "rtree: write leaf entry")
			}
			continue
		}

		childPtr := childOffset + uint64(idx)*full
		var rest [8]byte
		binary.LittleEndian.PutUint64(rest[:], childPtr)
		if _, err := w.Write(rest[:]); err != nil {
			return 0, bwerr.Wrap(bwerr.IoError, err, "rtree: write child offset")
		}
	}
	return uint64(len(nodes)) * full, nil
}

// SectionCount reports how many leaf entries the tree was built from.
func (t *Tree) SectionCount() uint64 { return t.sectionCount }

// Empty reports whether the tree was built from zero sections.
func (t *Tree) Empty() bool { return len(t.root) == 0 }
