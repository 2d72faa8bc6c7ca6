package fuzztests

import (
	"bytes"
	"math/rand/v2"
	"testing"

	"github.com/obellish/vmm-sub002/internal/mast"
	"github.com/obellish/vmm-sub002/internal/mastbin"
	"github.com/obellish/vmm-sub002/internal/testkit"
)

// FuzzDecode feeds arbitrary bytes to the decoder. Whatever decodes must be a
// valid forest whose re-encoding is stable.
func FuzzDecode(f *testing.F) {
	addArtifactSeeds(f)
	f.Fuzz(func(t *testing.T, input []byte) {
		input = clampInput(input)
		a, err := mastbin.Decode(input)
		if err != nil {
			return
		}
		if err := testkit.CheckForestInvariants(a.Forest); err != nil {
			t.Fatalf("decoded forest breaks invariants: %v", err)
		}

		var again []byte
		if a.Program != nil {
			again, err = mastbin.MarshalProgram(a.Program)
		} else {
			again, err = mastbin.MarshalForest(a.Forest)
		}
		if err != nil {
			t.Fatalf("re-encode: %v", err)
		}
		b, err := mastbin.Decode(again)
		if err != nil {
			t.Fatalf("decode of re-encoded artifact: %v", err)
		}
		if !b.Forest.Equal(a.Forest) {
			t.Fatalf("re-encoded forest differs")
		}
	})
}

// FuzzMergeRoundTrip merges two random forests and checks that the result
// survives encoding.
func FuzzMergeRoundTrip(f *testing.F) {
	f.Add(uint64(1), uint64(2), uint8(10))
	f.Add(uint64(7), uint64(7), uint8(40))
	f.Fuzz(func(t *testing.T, seedA, seedB uint64, size uint8) {
		opts := testkit.RandomOptions{Nodes: int(size%64) + 1, Decorators: 3, DecorateRate: 0.2, RootRate: 0.25}
		a, err := testkit.RandomForest(rand.New(rand.NewPCG(seedA, 1)), opts, nil)
		if err != nil {
			t.Fatal(err)
		}
		b, err := testkit.RandomForest(rand.New(rand.NewPCG(seedB, 2)), opts, nil)
		if err != nil {
			t.Fatal(err)
		}
		merged, roots, err := mast.Merge(a, b)
		if err != nil {
			t.Fatalf("Merge: %v", err)
		}
		if err := testkit.CheckRootMap([]*mast.Forest{a, b}, merged, roots); err != nil {
			t.Fatal(err)
		}
		data, err := mastbin.MarshalForest(merged)
		if err != nil {
			t.Fatal(err)
		}
		back, err := mastbin.DecodeForest(data)
		if err != nil {
			t.Fatalf("decode merged: %v", err)
		}
		again, err := mastbin.MarshalForest(back)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(data, again) {
			t.Fatalf("merged forest encoding is not stable")
		}
	})
}
