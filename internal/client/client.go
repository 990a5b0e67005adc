package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/driftbox/driftbox/internal/client/config"
	"github.com/driftbox/driftbox/internal/client/sync"
	"github.com/driftbox/driftbox/internal/client/workspace"
	"github.com/driftbox/driftbox/internal/db"
	"github.com/driftbox/driftbox/internal/diffmerge"
	"github.com/driftbox/driftbox/internal/remote"
	"github.com/driftbox/driftbox/internal/utils"
)

// Client wires the workspace, the pending queue, the coordinator and the
// filesystem watcher into one offline-first sync client.
type Client struct {
	config  *config.Config
	ws      *workspace.Workspace
	gateway remote.Gateway

	dbc     *sqlx.DB
	queue   *sync.PendingQueue
	coord   *sync.Coordinator
	tracker *sync.StateTracker
	watcher *sync.Watcher
}

func New(cfg *config.Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ws, err := workspace.NewWorkspace(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	gateway, err := remote.NewHTTPGateway(remote.HTTPGatewayConfig{
		BaseURL:   cfg.ServerURL,
		AuthToken: cfg.AuthToken,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}

	return &Client{
		config:  cfg,
		ws:      ws,
		gateway: gateway,
	}, nil
}

// Start locks the workspace, restores persisted state, begins watching for
// local edits and runs periodic syncs until the context is cancelled.
func (c *Client) Start(ctx context.Context) error {
	slog.Info("driftbox client start", "datadir", c.config.DataDir, "server", c.config.ServerURL)

	if err := c.ws.Setup(); err != nil {
		return fmt.Errorf("failed to setup workspace: %w", err)
	}
	defer c.ws.Unlock()

	dbc, err := db.NewSqliteDB(db.WithPath(c.ws.DBPath), db.WithMaxOpenConns(1))
	if err != nil {
		return fmt.Errorf("failed to open workspace db: %w", err)
	}
	defer dbc.Close()
	c.dbc = dbc

	store, err := sync.NewSqliteStore(dbc)
	if err != nil {
		return err
	}
	c.queue, err = sync.NewPendingQueue(store)
	if err != nil {
		return err
	}
	journal, err := sync.NewSyncJournal(dbc)
	if err != nil {
		return err
	}

	c.tracker = sync.NewStateTracker()
	defer c.tracker.Close()
	c.coord = sync.NewCoordinator(c.gateway, c.queue, journal, c.tracker)

	c.watcher = sync.NewWatcher(c.ws.ContentDir, c.ws.ContentRelPath, c.ws.IsMetadataPath, c.onLocalChange)
	if err := c.watcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer c.watcher.Stop()

	c.syncOnce(ctx)
	c.runLoop(ctx)

	slog.Info("driftbox client stop")
	return nil
}

// onLocalChange turns a watcher event into a queue entry. The action comes
// from the raw fs event; queue coalescing reconciles a stale create or
// update against the live entry for the path.
func (c *Client) onLocalChange(relPath string, action sync.ChangeAction, payload []byte) {
	if err := c.coord.EnqueueChange(relPath, action, payload); err != nil {
		slog.Error("failed to enqueue local change", "path", relPath, "error", err)
	}
}

// runLoop drives periodic syncs. A fresh timer per cycle, so a slow pass
// never stacks a backlog of fires.
func (c *Client) runLoop(ctx context.Context) {
	timer := time.NewTimer(c.config.SyncInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			c.syncOnce(ctx)
			timer.Reset(c.config.SyncInterval)
		}
	}
}

func (c *Client) syncOnce(ctx context.Context) {
	err := c.coord.Sync(ctx)
	switch {
	case err == nil:
	case errors.Is(err, sync.ErrSyncAlreadyRunning), errors.Is(err, sync.ErrConflictsPending):
		slog.Debug("sync skipped", "reason", err)
	default:
		slog.Error("sync failed", "error", err)
	}
}

// Sync runs one sync pass on demand.
func (c *Client) Sync(ctx context.Context) error {
	return c.coord.Sync(ctx)
}

// EnqueueChange records a local mutation outside the watcher path.
func (c *Client) EnqueueChange(path string, action sync.ChangeAction, payload []byte) error {
	return c.coord.EnqueueChange(path, action, payload)
}

// OpenConflict starts resolving an active conflict and returns its hunks.
func (c *Client) OpenConflict(path string) ([]diffmerge.Hunk, error) {
	return c.coord.OpenConflict(path)
}

func (c *Client) ChooseSide(path string, hunkID int, side diffmerge.Side) error {
	return c.coord.ChooseSide(path, hunkID, side)
}

func (c *Client) AcceptAll(path string, side diffmerge.Side) error {
	return c.coord.AcceptAll(path, side)
}

func (c *Client) EditResolved(path, text string) error {
	return c.coord.EditResolved(path, text)
}

func (c *Client) KeepExisting(path string) error {
	return c.coord.KeepExisting(path)
}

func (c *Client) MarkDeleted(path string) error {
	return c.coord.MarkDeleted(path)
}

// ResolveConflict commits the finalized resolution for a path and mirrors
// the committed outcome back into the workspace tree.
func (c *Client) ResolveConflict(ctx context.Context, path string) error {
	outcome, err := c.coord.ResolveConflict(ctx, path)
	if err != nil {
		return err
	}

	abs := c.ws.ContentAbsPath(path)
	if outcome.Delete {
		if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
			slog.Error("failed to remove resolved file", "path", path, "error", err)
		}
		return nil
	}

	if err := utils.EnsureParent(abs); err != nil {
		slog.Error("failed to create parent for resolved file", "path", path, "error", err)
		return nil
	}
	if err := os.WriteFile(abs, outcome.Content, 0o644); err != nil {
		slog.Error("failed to write resolved file", "path", path, "error", err)
	}
	return nil
}

// DiscardConflict drops the local change for a conflicted path.
func (c *Client) DiscardConflict(path string) error {
	return c.coord.DiscardConflict(path)
}

// State returns the current sync state snapshot.
func (c *Client) State() sync.State {
	return c.coord.State()
}

// Subscribe returns a channel of sync state snapshots.
func (c *Client) Subscribe() <-chan sync.State {
	return c.coord.Subscribe()
}

// Unsubscribe removes a state subscription.
func (c *Client) Unsubscribe(ch <-chan sync.State) {
	c.coord.Unsubscribe(ch)
}
