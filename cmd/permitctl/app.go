package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/linesmerrill/commute-permit-api/api/handlers"
	"github.com/linesmerrill/commute-permit-api/config"
)

// openApp loads the environment config and connects the backends
func openApp(ctx context.Context) (*handlers.App, error) {
	a := &handlers.App{Config: *config.New()}
	if err := a.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}
	return a, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
