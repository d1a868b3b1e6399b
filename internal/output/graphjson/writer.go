package graphjson

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"hostwatch/internal/graph"
	"hostwatch/internal/logger"
)

// Write serializes a graph export to an indented JSON file, creating parent
// directories as needed.
func Write(path string, export *graph.Export) error {
	if export == nil {
		return fmt.Errorf("nil graph export")
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode graph export: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write graph export: %w", err)
	}

	logger.Infof("Attack graph exported to %s (%d nodes, %d edges)",
		path, export.Metadata.NodeCount, export.Metadata.EdgeCount)
	return nil
}
