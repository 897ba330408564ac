package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/vango-dev/domcore/pkg/dom"
)

// Exporter writes tree snapshots of managers to a Store.
type Exporter struct {
	store  Store
	logger *slog.Logger
}

// NewExporter creates an Exporter. logger may be nil.
func NewExporter(store Store, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{store: store, logger: logger.With("component", "snapshot_exporter")}
}

// Key returns the storage key for a snapshot: manager-<id>/<unix-nanos>.json.
// The nanosecond count is zero-padded so keys sort by capture time.
func Key(snap *dom.TreeSnapshot) string {
	return fmt.Sprintf("manager-%d/%019d.json", snap.ManagerID, snap.CapturedAt.UnixNano())
}

// Export captures m's committed tree and stores it. It returns the key.
func (e *Exporter) Export(ctx context.Context, m *dom.Manager) (string, error) {
	snap, err := m.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("snapshot: encode: %w", err)
	}

	key := Key(snap)
	if err := e.store.Put(ctx, key, data); err != nil {
		return "", err
	}
	e.logger.Info("snapshot exported",
		"manager_id", snap.ManagerID,
		"nodes", len(snap.Nodes),
		"key", key,
		"bytes", len(data))
	return key, nil
}

// Load reads and decodes the snapshot stored under key.
func (e *Exporter) Load(ctx context.Context, key string) (*dom.TreeSnapshot, error) {
	data, err := e.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var snap dom.TreeSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("snapshot: decode %s: %w", key, err)
	}
	return &snap, nil
}

// Latest returns the most recent snapshot key for a manager id.
func (e *Exporter) Latest(ctx context.Context, managerID int32) (string, error) {
	keys, err := e.store.List(ctx, fmt.Sprintf("manager-%d/", managerID))
	if err != nil {
		return "", err
	}
	if len(keys) == 0 {
		return "", ErrNotFound
	}
	return keys[len(keys)-1], nil
}
