package cmt

import (
	"fmt"
	"sort"
)

const (
	nodeSize       = 32
	treeHeaderSize = 8 + 4 + 4
	// AccountHeaderSize is the size of the header that precedes the tree in
	// account bytes: max depth, max buffer size and the account ID.
	AccountHeaderSize = 4 + 4 + nodeSize
)

// Constants is a supported (max depth, max buffer size) pair.
type Constants struct {
	MaxDepth      uint32
	MaxBufferSize uint32
}

func (c Constants) String() string {
	return fmt.Sprintf("(%d, %d)", c.MaxDepth, c.MaxBufferSize)
}

var supported = map[Constants]struct{}{
	{3, 8}: {},
	{5, 8}: {},

	{14, 64}: {}, {14, 256}: {}, {14, 1024}: {}, {14, 2048}: {},
	{20, 64}: {}, {20, 256}: {}, {20, 1024}: {}, {20, 2048}: {},
	{24, 64}: {}, {24, 256}: {}, {24, 512}: {}, {24, 1024}: {}, {24, 2048}: {},
	{26, 512}: {}, {26, 1024}: {}, {26, 2048}: {},
	{30, 512}: {}, {30, 1024}: {}, {30, 2048}: {},
}

// SupportedConstants lists every supported pair, ordered by depth then buffer size.
func SupportedConstants() []Constants {
	res := make([]Constants, 0, len(supported))
	for c := range supported {
		res = append(res, c)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].MaxDepth != res[j].MaxDepth {
			return res[i].MaxDepth < res[j].MaxDepth
		}
		return res[i].MaxBufferSize < res[j].MaxBufferSize
	})
	return res
}

// ValidateConstants fails with ErrInvalidConstants for pairs outside the whitelist.
func ValidateConstants(maxDepth, maxBufferSize uint32) error {
	if _, ok := supported[Constants{maxDepth, maxBufferSize}]; !ok {
		return fmt.Errorf("%v: %w", Constants{maxDepth, maxBufferSize}, ErrInvalidConstants)
	}
	return nil
}

func changeLogEntrySize(maxDepth uint32) int {
	return nodeSize + nodeSize*int(maxDepth) + 4 + 4
}

func rightmostPathSize(maxDepth uint32) int {
	return nodeSize*int(maxDepth) + nodeSize
}

// TreeSize is the encoded size of a tree: header, change log and rightmost path.
func TreeSize(maxDepth, maxBufferSize uint32) (int, error) {
	if err := ValidateConstants(maxDepth, maxBufferSize); err != nil {
		return 0, err
	}
	return treeHeaderSize +
		int(maxBufferSize)*changeLogEntrySize(maxDepth) +
		rightmostPathSize(maxDepth), nil
}

// CanopySize is the encoded size of a canopy caching canopyDepth levels.
func CanopySize(maxDepth, canopyDepth uint32) (int, error) {
	if canopyDepth > maxDepth {
		return 0, fmt.Errorf("canopy depth %d exceeds max depth %d: %w", canopyDepth, maxDepth, ErrCanopyLengthMismatch)
	}
	return canopyNodeCount(canopyDepth) * nodeSize, nil
}

func canopyNodeCount(canopyDepth uint32) int {
	return (1 << (canopyDepth + 1)) - 2
}

// AccountSize is the encoded size of an account holding a tree and canopy.
func AccountSize(maxDepth, maxBufferSize, canopyDepth uint32) (int, error) {
	tree, err := TreeSize(maxDepth, maxBufferSize)
	if err != nil {
		return 0, err
	}
	canopy, err := CanopySize(maxDepth, canopyDepth)
	if err != nil {
		return 0, err
	}
	return AccountHeaderSize + tree + canopy, nil
}
