package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/obellish/vmm-sub002/internal/observ"
	"github.com/obellish/vmm-sub002/internal/pipeline"
)

func printStageTimings(out io.Writer, timings pipeline.Timings) {
	if out == nil {
		return
	}
	for _, stage := range pipeline.Stages {
		if !timings.Has(stage) {
			continue
		}
		fmt.Fprintf(out, "%s %.1f ms\n", stage, toMillis(timings.Duration(stage)))
	}
	fmt.Fprintf(out, "total %.1f ms\n", toMillis(timings.Sum()))
}

func printTimerReport(out io.Writer, timer *observ.Timer) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(timer.Report())
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
