package cmt

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/sha3"
)

func TestEmptyNodes(t *testing.T) {
	t.Parallel()
	for _, h := range []Hasher{Keccak256, Blake2b256, SHA256} {
		assert.Equal(t, Empty, h.EmptyNode(0), h.Name())
		for level := uint32(1); level <= MaxSupportedDepth; level++ {
			below := h.EmptyNode(level - 1)
			assert.Equal(t, h.HashPair(below, below), h.EmptyNode(level), "%s level %d", h.Name(), level)
		}
		assert.Panics(t, func() { h.EmptyNode(MaxSupportedDepth + 1) })
	}
}

func TestKeccakMatchesLegacyKeccak(t *testing.T) {
	t.Parallel()
	left, right := Node{1}, Node{2}
	d := sha3.NewLegacyKeccak256()
	d.Write(left[:])
	d.Write(right[:])
	got := Keccak256.HashPair(left, right)
	assert.Equal(t, d.Sum(nil), got[:])
	// keccak256 of 64 zero bytes
	e1 := Keccak256.EmptyNode(1)
	assert.Equal(t, "ad3228b676f7d3cd4284a5443f17f1962b36e491b30a40b2405849e597ba5fb5", hex.EncodeToString(e1[:]))
}

func TestSHA256MatchesStdlib(t *testing.T) {
	t.Parallel()
	left, right := Node{3}, Node{4}
	want := sha256.Sum256(append(left[:], right[:]...))
	assert.Equal(t, Node(want), SHA256.HashPair(left, right))
}

func TestHashLevel(t *testing.T) {
	t.Parallel()
	children := make([]Node, 16)
	for i := range children {
		children[i] = Node{byte(i), 0xaa}
	}
	for _, h := range []Hasher{Keccak256, Blake2b256, SHA256} {
		dst := make([]Node, 8)
		require.NoError(t, h.HashLevel(dst, children))
		for i := range dst {
			assert.Equal(t, h.HashPair(children[2*i], children[2*i+1]), dst[i], h.Name())
		}
		assert.Error(t, h.HashLevel(dst, children[:3]))
		assert.Error(t, h.HashLevel(dst[:1], children))
		assert.NoError(t, h.HashLevel(nil, nil))
	}
}

func TestHasherByName(t *testing.T) {
	t.Parallel()
	for _, name := range HasherNames() {
		h, err := HasherByName(name)
		require.NoError(t, err)
		assert.Equal(t, name, h.Name())
	}
	_, err := HasherByName("md5")
	assert.Error(t, err)
	assert.Equal(t, []string{"blake2b256", "keccak256", "sha256"}, HasherNames())
}

func TestParseNode(t *testing.T) {
	t.Parallel()
	want := Node{0xde, 0xad}
	s := hex.EncodeToString(want[:])
	n, err := ParseNode(s)
	require.NoError(t, err)
	assert.Equal(t, want, n)
	n, err = ParseNode("0x" + s)
	require.NoError(t, err)
	assert.Equal(t, want, n)
	_, err = ParseNode("dead")
	assert.Error(t, err)
	_, err = ParseNode("zz")
	assert.Error(t, err)
}

func TestCritbit(t *testing.T) {
	t.Parallel()
	cases := []struct {
		depth, a, b, want uint32
	}{
		{3, 0, 1, 0},
		{3, 1, 0, 0},
		{3, 1, 2, 1},
		{3, 1, 4, 2},
		{3, 0, 7, 2},
		{3, 6, 7, 0},
		{14, 0, 1 << 13, 13},
		{30, 5, 4, 0},
		{30, 0, 1<<30 - 1, 29},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, critbit(c.depth, c.a, c.b), "depth %d: %d vs %d", c.depth, c.a, c.b)
	}
}

func TestUpdateProofOrLeaf(t *testing.T) {
	t.Parallel()
	e := ChangeLogEntry{Path: []Node{{10}, {11}, {12}}, Index: 4}
	proof := []Node{{1}, {2}, {3}}
	leaf := Node{9}
	e.updateProofOrLeaf(1, proof, &leaf)
	assert.Equal(t, []Node{{1}, {2}, {12}}, proof)
	assert.Equal(t, Node{9}, leaf)

	e.updateProofOrLeaf(4, proof, &leaf)
	assert.Equal(t, Node{10}, leaf)
	assert.Equal(t, []Node{{1}, {2}, {12}}, proof)
}

func TestFillInProof(t *testing.T) {
	t.Parallel()
	short := []Node{{1}}
	full, err := fillInProof(Keccak256, short, 3)
	require.NoError(t, err)
	assert.Equal(t, []Node{{1}, Keccak256.EmptyNode(1), Keccak256.EmptyNode(2)}, full)
	full[0] = Node{2}
	assert.Equal(t, Node{1}, short[0], "caller's proof must not be aliased")

	_, err = fillInProof(Keccak256, make([]Node, 4), 3)
	assert.ErrorIs(t, err, ErrCorruptProof)
}

func TestRecompute(t *testing.T) {
	t.Parallel()
	h := Keccak256
	leaf := Node{5}
	proof := []Node{{1}, {2}}
	// index 2 = 0b10: left at level 0, right at level 1
	want := h.HashPair(proof[1], h.HashPair(leaf, proof[0]))
	assert.Equal(t, want, Recompute(nil, leaf, proof, 2))
}
