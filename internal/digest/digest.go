// Package digest provides the fixed-size hash value used to identify MAST nodes
// and the domain-separated merge used to combine child digests.
//
// The underlying permutation is SHA3-256. Callers must treat it as opaque: only
// determinism, collision resistance and domain separation are relied upon.
package digest

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"

	"golang.org/x/crypto/sha3"
)

// Size is the length of a Digest in bytes.
const Size = 32

// Digest is a 256-bit hash value.
type Digest [Size]byte

// Zero is the all-zero digest used as padding for single-child nodes.
var Zero Digest

// Domain is a tag mixed into a merge so that structurally different uses of the
// hash can never collide.
type Domain uint64

// IsZero reports whether d is the all-zero digest.
func (d Digest) IsZero() bool { return d == Zero }

// String returns d as lowercase hex.
func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// Short returns the first 8 hex characters, handy for listings.
func (d Digest) Short() string { return hex.EncodeToString(d[:4]) }

// Bytes returns a copy of the digest bytes.
func (d Digest) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, d[:])
	return out
}

// MarshalText encodes d as hex.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText decodes a hex digest, with or without a 0x prefix.
func (d *Digest) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Parse decodes a 64 character hex string.
func Parse(s string) (Digest, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	var out Digest
	if hex.DecodedLen(len(s)) != Size {
		return out, fmt.Errorf("digest: expected %d hex characters, got %d", 2*Size, len(s))
	}
	if _, err := hex.Decode(out[:], []byte(s)); err != nil {
		return out, fmt.Errorf("digest: %w", err)
	}
	return out, nil
}

// FromBytes copies b into a Digest. b must be exactly Size bytes long.
func FromBytes(b []byte) (Digest, error) {
	var out Digest
	if len(b) != Size {
		return out, fmt.Errorf("digest: expected %d bytes, got %d", Size, len(b))
	}
	copy(out[:], b)
	return out, nil
}

// MergeInDomain hashes two digests together under the given domain tag.
//
// H( domain_le64 || values[0] || values[1] )
func MergeInDomain(values [2]Digest, domain Domain) Digest {
	h := NewHasher(domain)
	h.WriteDigest(values[0])
	h.WriteDigest(values[1])
	return h.Sum()
}

// Merge is MergeInDomain with the zero domain.
func Merge(values [2]Digest) Digest {
	return MergeInDomain(values, 0)
}

// Hash hashes an arbitrary byte sequence in the zero domain.
func Hash(data []byte) Digest {
	h := NewHasher(0)
	h.Write(data)
	return h.Sum()
}

// Combine builds an aggregate digest: H( content || dep1 || dep2 ... ).
// deps must already be in a deterministic order.
func Combine(content Digest, deps ...Digest) Digest {
	h := NewHasher(0)
	h.WriteDigest(content)
	for _, d := range deps {
		h.WriteDigest(d)
	}
	return h.Sum()
}

// Hasher is a sequential hasher bound to a domain.
type Hasher struct {
	h hash.Hash
}

// NewHasher starts a hasher with domain already absorbed.
func NewHasher(domain Domain) *Hasher {
	h := &Hasher{h: sha3.New256()}
	var tag [8]byte
	binary.LittleEndian.PutUint64(tag[:], uint64(domain))
	_, _ = h.h.Write(tag[:])
	return h
}

// Write absorbs raw bytes. It never fails.
func (h *Hasher) Write(p []byte) (int, error) {
	return h.h.Write(p)
}

// WriteDigest absorbs a digest.
func (h *Hasher) WriteDigest(d Digest) {
	_, _ = h.h.Write(d[:])
}

// WriteUint64 absorbs v in little-endian order.
func (h *Hasher) WriteUint64(v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, _ = h.h.Write(buf[:])
}

// Sum returns the digest of everything written so far.
func (h *Hasher) Sum() Digest {
	var out Digest
	copy(out[:], h.h.Sum(nil))
	return out
}
