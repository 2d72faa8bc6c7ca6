package fuzztests

import (
	"math/rand/v2"
	"testing"

	"github.com/obellish/vmm-sub002/internal/digest"
	"github.com/obellish/vmm-sub002/internal/mastbin"
	"github.com/obellish/vmm-sub002/internal/testkit"
)

const (
	maxFuzzInput = 64 << 10
	seedForests  = 8
)

// addArtifactSeeds adds encoded random forests and a few broken headers.
func addArtifactSeeds(f *testing.F) {
	for i := range seedForests {
		rng := rand.New(rand.NewPCG(uint64(i), 0x6d617374))
		forest, err := testkit.RandomForest(rng, testkit.RandomOptions{
			Nodes:        4 + i*3,
			Decorators:   i % 4,
			DecorateRate: 0.3,
			RootRate:     0.3,
			Externals:    externals(i % 3),
		}, nil)
		if err != nil {
			f.Fatalf("seed forest %d: %v", i, err)
		}
		data, err := mastbin.MarshalForest(forest)
		if err != nil {
			f.Fatalf("seed forest %d: %v", i, err)
		}
		f.Add(data)
	}
	f.Add([]byte{})
	f.Add([]byte("MAST"))
	f.Add(append(mastbin.Magic[:], mastbin.Version[0], mastbin.Version[1], mastbin.Version[2], 0))
	f.Add(append(mastbin.Magic[:], 9, 9, 9, 1))
}

func externals(n int) []digest.Digest {
	out := make([]digest.Digest, n)
	for i := range out {
		out[i] = digest.Hash([]byte{byte(i)})
	}
	return out
}

func clampInput(input []byte) []byte {
	if len(input) > maxFuzzInput {
		input = input[:maxFuzzInput]
	}
	return append([]byte(nil), input...)
}
