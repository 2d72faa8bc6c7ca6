// Package pipeline links MAST artifacts: it reads and decodes the inputs in
// parallel, merges them sequentially and writes the linked artifact.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/obellish/vmm-sub002/internal/digest"
	"github.com/obellish/vmm-sub002/internal/mast"
	"github.com/obellish/vmm-sub002/internal/mastbin"
	"github.com/obellish/vmm-sub002/internal/mastcache"
	"github.com/obellish/vmm-sub002/internal/observ"
	"github.com/obellish/vmm-sub002/internal/program"
	"github.com/obellish/vmm-sub002/internal/trace"
)

// LinkRequest describes one link.
type LinkRequest struct {
	Name   string
	Inputs []string
	Output string

	// Entrypoint, when set, makes the output a program whose entrypoint is
	// the procedure with this MAST root.
	Entrypoint *digest.Digest
	Kernel     []digest.Digest

	// Jobs bounds decode parallelism; <= 0 means GOMAXPROCS.
	Jobs int

	Cache    *mastcache.Cache
	Progress ProgressSink
	Timer    *observ.Timer
}

// LinkResult describes a finished link.
type LinkResult struct {
	Kind    mastbin.Kind
	Output  string
	Forest  *mast.Forest
	Program *program.Program

	// Roots and Stats are empty when the result came from the cache.
	Roots mast.RootMap
	Stats mast.MergeStats

	InputHashes  []digest.Digest
	ArtifactHash digest.Digest
	Bytes        int
	Cached       bool
	Timings      Timings

	// Warnings collects failures that did not stop the link, such as an
	// unwritable cache.
	Warnings []string
}

// Procedures returns the MAST roots of the linked forest.
func (r *LinkResult) Procedures() []digest.Digest { return r.Forest.ProcedureDigests() }

type linker struct {
	req   LinkRequest
	res   *LinkResult
	timer *observ.Timer

	data    [][]byte
	forests []*mast.Forest
	payload []byte
}

// Link runs the whole pipeline. On error nothing is written to Output.
func Link(ctx context.Context, req LinkRequest) (*LinkResult, error) {
	if len(req.Inputs) == 0 {
		return nil, errors.New("link: no input artifacts")
	}
	if req.Output == "" {
		return nil, errors.New("link: no output path")
	}
	if req.Entrypoint == nil && len(req.Kernel) > 0 {
		return nil, errors.New("link: a kernel requires an entrypoint")
	}

	ctx, span := trace.StartSpan(ctx, trace.ScopeDriver, "link")
	span.WithExtra("name", req.Name).WithExtra("inputs", strconv.Itoa(len(req.Inputs)))

	l := &linker{
		req:   req,
		res:   &LinkResult{Kind: mastbin.KindForest, Output: req.Output},
		timer: req.Timer,
	}
	if req.Entrypoint != nil {
		l.res.Kind = mastbin.KindProgram
	}
	if l.timer == nil {
		l.timer = observ.NewTimer()
	}

	if err := l.run(ctx); err != nil {
		span.End(err.Error())
		return nil, err
	}
	span.WithExtra("cached", strconv.FormatBool(l.res.Cached)).
		WithExtra("bytes", strconv.Itoa(l.res.Bytes))
	span.End("")
	return l.res, nil
}

func (l *linker) run(ctx context.Context) error {
	emitQueued(l.req.Progress, l.req.Inputs)

	if err := l.stage(ctx, StageRead, l.read); err != nil {
		return err
	}

	key := mastcache.Key(l.optionsDigest(), l.res.InputHashes...)
	hit, err := l.fromCache(ctx, key)
	if err != nil {
		return err
	}
	if !hit {
		if err := l.stage(ctx, StageDecode, l.decode); err != nil {
			return err
		}
		if err := l.stage(ctx, StageMerge, l.merge); err != nil {
			return err
		}
		if err := l.stage(ctx, StageEncode, l.encode); err != nil {
			return err
		}
	}

	if err := l.stage(ctx, StageWrite, func(context.Context) error {
		return mastbin.WriteFile(l.req.Output, l.payload)
	}); err != nil {
		return err
	}

	if !hit {
		l.toCache(ctx, key)
	}
	return nil
}

// stage runs fn as one pipeline stage: progress events, a timer phase and a
// trace span.
func (l *linker) stage(ctx context.Context, stage Stage, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	emit(l.req.Progress, Event{Stage: stage, Status: StatusWorking})
	ctx, span := trace.StartSpan(ctx, trace.ScopePass, string(stage))
	idx := l.timer.Begin(string(stage))
	start := time.Now()

	err := fn(ctx)

	elapsed := time.Since(start)
	l.res.Timings.Set(stage, elapsed)
	if err != nil {
		l.timer.End(idx, "failed")
		span.End(err.Error())
		emit(l.req.Progress, Event{Stage: stage, Status: StatusError, Err: err, Elapsed: elapsed})
		return err
	}
	l.timer.End(idx, "")
	span.End("")
	emit(l.req.Progress, Event{Stage: stage, Status: StatusDone, Elapsed: elapsed})
	return nil
}

// forEachInput runs fn for every input with bounded parallelism. Each call
// owns index i of any per-input slice, so no locking is needed.
func (l *linker) forEachInput(ctx context.Context, stage Stage, fn func(ctx context.Context, i int, path string) error) error {
	jobs := l.req.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(l.req.Inputs)))

	for i, path := range l.req.Inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			emit(l.req.Progress, Event{File: path, Stage: stage, Status: StatusWorking})
			actx, span := trace.StartSpan(gctx, trace.ScopeArtifact, string(stage))
			span.WithExtra("file", path)
			start := time.Now()

			err := fn(actx, i, path)

			elapsed := time.Since(start)
			if err != nil {
				span.End(err.Error())
				emit(l.req.Progress, Event{File: path, Stage: stage, Status: StatusError, Err: err, Elapsed: elapsed})
				return err
			}
			span.End("")
			emit(l.req.Progress, Event{File: path, Stage: stage, Status: StatusDone, Elapsed: elapsed})
			return nil
		})
	}
	return g.Wait()
}

func (l *linker) read(ctx context.Context) error {
	l.data = make([][]byte, len(l.req.Inputs))
	l.res.InputHashes = make([]digest.Digest, len(l.req.Inputs))
	return l.forEachInput(ctx, StageRead, func(_ context.Context, i int, path string) error {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		l.data[i] = data
		l.res.InputHashes[i] = digest.Hash(data)
		return nil
	})
}

func (l *linker) decode(ctx context.Context) error {
	l.forests = make([]*mast.Forest, len(l.req.Inputs))
	return l.forEachInput(ctx, StageDecode, func(_ context.Context, i int, path string) error {
		f, err := mastbin.DecodeForest(l.data[i])
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		l.forests[i] = f
		// the raw bytes are no longer needed
		l.data[i] = nil
		return nil
	})
}

func (l *linker) merge(ctx context.Context) error {
	m := mast.NewMerger(l.forests)
	out, roots, err := m.Run(ctx)
	if err != nil {
		return err
	}
	l.res.Forest = out
	l.res.Roots = roots
	l.res.Stats = m.Stats()
	l.forests = nil

	if l.req.Entrypoint == nil {
		return nil
	}
	kernel, err := program.NewKernel(l.req.Kernel)
	if err != nil {
		return err
	}
	p, err := program.FromDigest(out, *l.req.Entrypoint, kernel)
	if err != nil {
		return err
	}
	l.res.Program = p
	return nil
}

func (l *linker) encode(context.Context) error {
	var (
		data []byte
		err  error
	)
	if l.res.Program != nil {
		data, err = mastbin.MarshalProgram(l.res.Program)
	} else {
		data, err = mastbin.MarshalForest(l.res.Forest)
	}
	if err != nil {
		return err
	}
	l.setPayload(data)
	return nil
}

func (l *linker) setPayload(data []byte) {
	l.payload = data
	l.res.Bytes = len(data)
	l.res.ArtifactHash = digest.Hash(data)
}

// optionsDigest covers everything besides the inputs that changes the output
// bytes.
func (l *linker) optionsDigest() digest.Digest {
	h := digest.NewHasher(0)
	_, _ = h.Write(mastbin.Magic[:])
	_, _ = h.Write(mastbin.Version[:])
	_, _ = h.Write([]byte{byte(l.res.Kind)})
	if l.req.Entrypoint != nil {
		h.WriteDigest(*l.req.Entrypoint)
	}
	// the kernel is stored sorted and deduplicated, but hashing it as given
	// only costs a spurious miss
	h.WriteUint64(uint64(len(l.req.Kernel)))
	for _, k := range l.req.Kernel {
		h.WriteDigest(k)
	}
	return h.Sum()
}

func (l *linker) fromCache(ctx context.Context, key digest.Digest) (bool, error) {
	if l.req.Cache == nil {
		return false, nil
	}
	tracer := trace.FromContext(ctx)
	var p mastcache.Payload
	ok, err := l.req.Cache.Get(key, &p)
	if err != nil {
		l.res.Warnings = append(l.res.Warnings, fmt.Sprintf("cache read: %v", err))
		trace.Point(tracer, trace.ScopeDriver, "cache.error", err.Error())
		return false, nil
	}
	if !ok || mastbin.Kind(p.Kind) != l.res.Kind {
		trace.Point(tracer, trace.ScopeDriver, "cache.miss", key.Short())
		return false, nil
	}

	a, err := mastbin.Decode(p.Artifact)
	if err != nil {
		// a corrupt entry is dropped and rebuilt
		l.res.Warnings = append(l.res.Warnings, fmt.Sprintf("cache entry %s: %v", key.Short(), err))
		_ = l.req.Cache.Remove(key)
		return false, nil
	}
	trace.Point(tracer, trace.ScopeDriver, "cache.hit", key.Short())
	l.res.Forest = a.Forest
	l.res.Program = a.Program
	l.res.Cached = true
	l.setPayload(p.Artifact)
	l.data = nil
	for _, s := range []Stage{StageDecode, StageMerge, StageEncode} {
		emit(l.req.Progress, Event{Stage: s, Status: StatusCached})
		for _, file := range l.req.Inputs {
			emit(l.req.Progress, Event{File: file, Stage: s, Status: StatusCached})
		}
	}
	return true, ctx.Err()
}

func (l *linker) toCache(ctx context.Context, key digest.Digest) {
	if l.req.Cache == nil {
		return
	}
	p := &mastcache.Payload{
		Name:        l.req.Name,
		Kind:        uint8(l.res.Kind),
		Inputs:      l.req.Inputs,
		InputHashes: l.res.InputHashes,
		Nodes:       l.res.Forest.NumNodes(),
		Decorators:  l.res.Forest.NumDecorators(),
		Procedures:  l.res.Forest.ProcedureDigests(),
		Artifact:    l.payload,
	}
	if l.res.Program != nil {
		p.ProgramHash = l.res.Program.Hash()
	}
	if err := l.req.Cache.Put(key, p); err != nil {
		l.res.Warnings = append(l.res.Warnings, fmt.Sprintf("cache write: %v", err))
		trace.Point(trace.FromContext(ctx), trace.ScopeDriver, "cache.error", err.Error())
	}
}
