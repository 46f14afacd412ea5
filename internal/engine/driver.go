package engine

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/dwsmith1983/gwaspull/internal/table"
)

// DriverScript replays a HailPlan on the cluster. It is staged to the
// workspace when engine.hail.driverUri is not set.
//
//go:embed driver/export_plan.py
var DriverScript []byte

// DriverObject is the staged driver location relative to the workspace bucket.
const DriverObject = "gwaspull/driver/export_plan.py"

// stageDriver uploads DriverScript and returns its URI.
func (r *HailReader) stageDriver(ctx context.Context) (string, error) {
	uri := strings.TrimRight(r.workspace, "/") + "/" + DriverObject
	w, err := r.store.Create(ctx, uri)
	if err != nil {
		return "", fmt.Errorf("staging driver: %w", err)
	}
	if _, err := w.Write(DriverScript); err != nil {
		table.Abort(w)
		return "", fmt.Errorf("staging driver: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("staging driver: %w", err)
	}
	return uri, nil
}
