package cmt

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// PathNode is a node on an updated path together with its heap index: the
// root is 1 and the children of k are 2k and 2k+1.
type PathNode struct {
	Node  Node
	Index uint32
}

// ChangeLogEvent is what an update emits for observers replicating the tree:
// the whole updated path from the leaf up to and including the root.
type ChangeLogEvent struct {
	ID    Node
	Path  []PathNode
	Seq   uint64
	Index uint32
}

// NewChangeLogEvent describes entry, which was written at seq in a tree of
// maxDepth, for the tree identified by id.
func NewChangeLogEvent(id Node, entry *ChangeLogEntry, maxDepth uint32, seq uint64) *ChangeLogEvent {
	path := make([]PathNode, 0, maxDepth+1)
	base := (uint64(1) << maxDepth) + uint64(entry.Index)
	for level, node := range entry.Path {
		path = append(path, PathNode{Node: node, Index: uint32(base >> uint(level))})
	}
	path = append(path, PathNode{Node: entry.Root, Index: 1})
	return &ChangeLogEvent{ID: id, Path: path, Seq: seq, Index: entry.Index}
}

// Root returns the root the update produced.
func (e *ChangeLogEvent) Root() Node {
	if len(e.Path) == 0 {
		return Empty
	}
	return e.Path[len(e.Path)-1].Node
}

// Leaf returns the leaf the update wrote.
func (e *ChangeLogEvent) Leaf() Node {
	if len(e.Path) == 0 {
		return Empty
	}
	return e.Path[0].Node
}

// MaxDepth is the depth of the tree that emitted the event.
func (e *ChangeLogEvent) MaxDepth() uint32 {
	if len(e.Path) == 0 {
		return 0
	}
	return uint32(len(e.Path) - 1)
}

const (
	eventFieldID    protowire.Number = 1
	eventFieldPath  protowire.Number = 2
	eventFieldSeq   protowire.Number = 3
	eventFieldIndex protowire.Number = 4

	pathNodeFieldNode  protowire.Number = 1
	pathNodeFieldIndex protowire.Number = 2
)

// MarshalBinary encodes the event in protobuf wire format.
func (e *ChangeLogEvent) MarshalBinary() ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, eventFieldID, protowire.BytesType)
	b = protowire.AppendBytes(b, e.ID[:])
	for _, pn := range e.Path {
		var m []byte
		m = protowire.AppendTag(m, pathNodeFieldNode, protowire.BytesType)
		m = protowire.AppendBytes(m, pn.Node[:])
		m = protowire.AppendTag(m, pathNodeFieldIndex, protowire.VarintType)
		m = protowire.AppendVarint(m, uint64(pn.Index))
		b = protowire.AppendTag(b, eventFieldPath, protowire.BytesType)
		b = protowire.AppendBytes(b, m)
	}
	b = protowire.AppendTag(b, eventFieldSeq, protowire.VarintType)
	b = protowire.AppendVarint(b, e.Seq)
	b = protowire.AppendTag(b, eventFieldIndex, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Index))
	return b, nil
}

// UnmarshalBinary decodes an event encoded by MarshalBinary. Unknown fields
// are skipped.
func (e *ChangeLogEvent) UnmarshalBinary(b []byte) error {
	*e = ChangeLogEvent{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("event tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == eventFieldID && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("event id: %w", protowire.ParseError(n))
			}
			if err := copyNode(&e.ID, v); err != nil {
				return fmt.Errorf("event id: %w", err)
			}
			b = b[n:]
		case num == eventFieldPath && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("event path: %w", protowire.ParseError(n))
			}
			pn, err := unmarshalPathNode(v)
			if err != nil {
				return fmt.Errorf("event path[%d]: %w", len(e.Path), err)
			}
			e.Path = append(e.Path, pn)
			b = b[n:]
		case num == eventFieldSeq && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("event seq: %w", protowire.ParseError(n))
			}
			e.Seq = v
			b = b[n:]
		case num == eventFieldIndex && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("event index: %w", protowire.ParseError(n))
			}
			e.Index = uint32(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("event field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return nil
}

func unmarshalPathNode(b []byte) (PathNode, error) {
	var pn PathNode
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return pn, protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == pathNodeFieldNode && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return pn, protowire.ParseError(n)
			}
			if err := copyNode(&pn.Node, v); err != nil {
				return pn, err
			}
			b = b[n:]
		case num == pathNodeFieldIndex && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return pn, protowire.ParseError(n)
			}
			pn.Index = uint32(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return pn, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return pn, nil
}

func copyNode(dst *Node, v []byte) error {
	if len(v) != len(dst) {
		return errors.New("node must be 32 bytes")
	}
	copy(dst[:], v)
	return nil
}

type jsonPathNode struct {
	Node  string `json:"node"`
	Index uint32 `json:"index"`
}

type jsonEvent struct {
	ID    string         `json:"id"`
	Path  []jsonPathNode `json:"path"`
	Seq   uint64         `json:"seq"`
	Index uint32         `json:"index"`
}

// MarshalJSON renders nodes as hex strings.
func (e *ChangeLogEvent) MarshalJSON() ([]byte, error) {
	j := jsonEvent{
		ID:    hex.EncodeToString(e.ID[:]),
		Path:  make([]jsonPathNode, len(e.Path)),
		Seq:   e.Seq,
		Index: e.Index,
	}
	for i, pn := range e.Path {
		j.Path[i] = jsonPathNode{Node: hex.EncodeToString(pn.Node[:]), Index: pn.Index}
	}
	return json.Marshal(j)
}

// UnmarshalJSON reads the form written by MarshalJSON.
func (e *ChangeLogEvent) UnmarshalJSON(b []byte) error {
	var j jsonEvent
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	id, err := ParseNode(j.ID)
	if err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*e = ChangeLogEvent{ID: id, Seq: j.Seq, Index: j.Index, Path: make([]PathNode, len(j.Path))}
	for i, pn := range j.Path {
		n, err := ParseNode(pn.Node)
		if err != nil {
			return fmt.Errorf("path[%d]: %w", i, err)
		}
		e.Path[i] = PathNode{Node: n, Index: pn.Index}
	}
	return nil
}
