package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/obellish/vmm-sub002/internal/pipeline"
	"github.com/obellish/vmm-sub002/internal/ui"
)

type linkOutcome struct {
	result *pipeline.LinkResult
	err    error
}

func runLinkWithUI(ctx context.Context, title string, req pipeline.LinkRequest) (*pipeline.LinkResult, error) {
	events := make(chan pipeline.Event, 256)
	outcomeCh := make(chan linkOutcome, 1)

	go func() {
		req.Progress = pipeline.ChannelSink{Ch: events}
		res, err := pipeline.Link(ctx, req)
		outcomeCh <- linkOutcome{result: res, err: err}
		close(events)
	}()

	model := ui.NewProgressModel(title, req.Inputs, events)
	prog := tea.NewProgram(model, tea.WithOutput(os.Stdout))
	_, uiErr := prog.Run()
	outcome := <-outcomeCh
	if uiErr != nil {
		return outcome.result, uiErr
	}
	return outcome.result, outcome.err
}
