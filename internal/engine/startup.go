package engine

import (
	"context"
	"fmt"
	"io"
)

// EnsureReady checks that the Engine is reachable and required models are
// available. Missing models are pulled automatically with progress output
// written to w.
func EnsureReady(ctx context.Context, e Engine, chatModel, embedModel string, w io.Writer) error {
	if !e.IsRunning(ctx) {
		return fmt.Errorf("local inference engine is not running; please ensure the backend is started")
	}

	models := make([]string, 0, 2)
	if chatModel != "" {
		models = append(models, chatModel)
	}
	if embedModel != "" && embedModel != chatModel {
		models = append(models, embedModel)
	}

	for _, model := range models {
		if e.HasModel(ctx, model) {
			fmt.Fprintf(w, "model %s: ready\n", model)
			continue
		}

		fmt.Fprintf(w, "model %s: pulling...\n", model)
		// The pull stream repeats the same status line many times with only
		// the byte counters advancing; report each status once, plus coarse
		// progress at 10% steps.
		var lastStatus string
		lastDecile := -1
		err := e.PullModel(ctx, model, func(p PullProgress) {
			if p.Status != lastStatus {
				fmt.Fprintf(w, "  %s\n", p.Status)
				lastStatus = p.Status
				lastDecile = -1
			}
			if p.Total > 0 {
				decile := int(float64(p.Completed) / float64(p.Total) * 10)
				if decile > lastDecile {
					fmt.Fprintf(w, "    %d%%\n", decile*10)
					lastDecile = decile
				}
			}
		})
		if err != nil {
			return fmt.Errorf("pulling model %s: %w", model, err)
		}
		fmt.Fprintf(w, "model %s: ready\n", model)
	}

	return nil
}
