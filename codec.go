package cmt

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var errShortBuffer = errors.New("buffer too short")

func appendNode(buf []byte, n Node) []byte {
	return append(buf, n[:]...)
}

func appendNodes(buf []byte, nodes []Node) []byte {
	for _, n := range nodes {
		buf = appendNode(buf, n)
	}
	return buf
}

func decodeUint32(buf []byte, v *uint32) ([]byte, error) {
	if len(buf) < 4 {
		return nil, errShortBuffer
	}
	*v = binary.LittleEndian.Uint32(buf)
	return buf[4:], nil
}

func decodeUint64(buf []byte, v *uint64) ([]byte, error) {
	if len(buf) < 8 {
		return nil, errShortBuffer
	}
	*v = binary.LittleEndian.Uint64(buf)
	return buf[8:], nil
}

func decodeNode(buf []byte, n *Node) ([]byte, error) {
	if len(buf) < nodeSize {
		return nil, errShortBuffer
	}
	copy(n[:], buf[:nodeSize])
	return buf[nodeSize:], nil
}

func decodeNodes(buf []byte, nodes []Node) ([]byte, error) {
	var err error
	for i := range nodes {
		buf, err = decodeNode(buf, &nodes[i])
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// MarshalBinary encodes the tree in its fixed little-endian layout: header,
// change log slots, then the rightmost path.
func (t *Tree) MarshalBinary() ([]byte, error) {
	size, err := TreeSize(t.maxDepth, t.maxBufferSize)
	if err != nil {
		return nil, err
	}
	return t.appendBinary(make([]byte, 0, size)), nil
}

func (t *Tree) appendBinary(buf []byte) []byte {
	buf = binary.LittleEndian.AppendUint64(buf, t.sequenceNumber)
	buf = binary.LittleEndian.AppendUint32(buf, t.activeIndex)
	buf = binary.LittleEndian.AppendUint32(buf, t.rightmostProof.Index)
	for i := range t.changeLogs {
		e := &t.changeLogs[i]
		buf = appendNode(buf, e.Root)
		buf = appendNodes(buf, e.Path)
		buf = binary.LittleEndian.AppendUint32(buf, e.Index)
		buf = binary.LittleEndian.AppendUint32(buf, 0)
	}
	buf = appendNodes(buf, t.rightmostProof.Proof)
	return appendNode(buf, t.rightmostProof.Leaf)
}

// UnmarshalTree decodes bytes produced by MarshalBinary. The constants are
// validated before any byte is read.
func UnmarshalTree(buf []byte, maxDepth, maxBufferSize uint32, config *Config) (*Tree, error) {
	size, err := TreeSize(maxDepth, maxBufferSize)
	if err != nil {
		return nil, err
	}
	if len(buf) != size {
		return nil, fmt.Errorf("tree %v: want %d bytes, got %d", Constants{maxDepth, maxBufferSize}, size, len(buf))
	}
	t, err := Prepare(maxDepth, maxBufferSize, config)
	if err != nil {
		return nil, err
	}
	if err := t.decode(buf); err != nil {
		return nil, fmt.Errorf("decode tree: %w", err)
	}
	return t, nil
}

func (t *Tree) decode(buf []byte) error {
	var err error
	if buf, err = decodeUint64(buf, &t.sequenceNumber); err != nil {
		return err
	}
	if buf, err = decodeUint32(buf, &t.activeIndex); err != nil {
		return err
	}
	if buf, err = decodeUint32(buf, &t.rightmostProof.Index); err != nil {
		return err
	}
	for i := range t.changeLogs {
		e := &t.changeLogs[i]
		if buf, err = decodeNode(buf, &e.Root); err != nil {
			return err
		}
		if buf, err = decodeNodes(buf, e.Path); err != nil {
			return err
		}
		if buf, err = decodeUint32(buf, &e.Index); err != nil {
			return err
		}
		var padding uint32
		if buf, err = decodeUint32(buf, &padding); err != nil {
			return err
		}
	}
	if buf, err = decodeNodes(buf, t.rightmostProof.Proof); err != nil {
		return err
	}
	if _, err = decodeNode(buf, &t.rightmostProof.Leaf); err != nil {
		return err
	}
	if uint64(t.activeIndex) != t.sequenceNumber&t.mask() {
		return fmt.Errorf("active index %d does not match sequence number %d", t.activeIndex, t.sequenceNumber)
	}
	if uint64(t.rightmostProof.Index) > t.capacity() {
		return fmt.Errorf("rightmost index %d beyond capacity %d", t.rightmostProof.Index, t.capacity())
	}
	for i := range t.changeLogs {
		if uint64(t.changeLogs[i].Index) >= t.capacity() {
			return fmt.Errorf("change log slot %d: leaf index %d beyond capacity %d", i, t.changeLogs[i].Index, t.capacity())
		}
	}
	if t.sequenceNumber > 0 || t.changeLogs[t.activeIndex].Root != Empty {
		t.bufferSize = t.maxBufferSize
		if t.sequenceNumber < uint64(t.maxBufferSize) {
			t.bufferSize = uint32(t.sequenceNumber) + 1
		}
	}
	return nil
}
