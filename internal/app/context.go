package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"laneboard/internal/config"
	"laneboard/internal/repo"
)

// ResolveBoardAndConfig picks the active board and ensures a board + config
// exist in DB, seeding defaults if missing. It prefers overrides, then the
// workspace config file, then a single-board DB. If the board does not
// exist, it is created on the fly and the calling actor becomes its first
// admin.
func ResolveBoardAndConfig(ctx context.Context, workspace, boardOverride, actorID string, r repo.Repo) (string, *config.Config, error) {
	boardID := boardOverride
	fileCfg, err := config.LoadOptional(workspace)
	if err != nil {
		return "", nil, err
	}
	if boardID == "" && fileCfg != nil {
		boardID = fileCfg.Board.ID
	}
	if boardID == "" {
		if id, err := r.SingleBoard(ctx); err == nil {
			boardID = id
		} else {
			return "", nil, fmt.Errorf("board not specified; use --board or create laneboard.yml")
		}
	}
	seedCfg := fileCfg
	if seedCfg == nil {
		seedCfg = config.Default(boardID)
	}
	seedCfg.Board.ID = boardID

	if _, err := r.GetBoard(ctx, boardID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		if err := createBoard(ctx, r, boardID, seedCfg, actorID); err != nil {
			return "", nil, err
		}
	}
	cfg, err := r.GetBoardConfig(ctx, boardID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			if err := r.UpsertBoardConfig(ctx, boardID, seedCfg); err != nil {
				return "", nil, fmt.Errorf("seed board config: %w", err)
			}
			cfg = seedCfg
		} else {
			return "", nil, err
		}
	}
	cfg.Board.ID = boardID
	return boardID, cfg, nil
}

// createBoard inserts a minimal board/rbac footprint using the seed config.
func createBoard(ctx context.Context, r repo.Repo, boardID string, seedCfg *config.Config, actorID string) error {
	if seedCfg == nil {
		seedCfg = config.Default(boardID)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := r.EnsureBoard(ctx, tx, boardID, seedCfg.Board.Title, now); err != nil {
		return fmt.Errorf("ensure board: %w", err)
	}
	if err := r.UpsertBoardConfigTx(ctx, tx, boardID, seedCfg); err != nil {
		return fmt.Errorf("insert board config: %w", err)
	}
	if actorID == "" {
		actorID = "local-user"
	}
	if err := r.EnsureActor(ctx, tx, actorID, now); err != nil {
		return fmt.Errorf("ensure actor: %w", err)
	}
	for id, role := range seedCfg.RBAC.Roles {
		if err := r.InsertRole(ctx, tx, id, role.Description); err != nil {
			return fmt.Errorf("insert role: %w", err)
		}
	}
	if err := r.InsertRole(ctx, tx, "admin", "Full board control"); err != nil {
		return fmt.Errorf("insert role: %w", err)
	}
	if err := r.AssignRole(ctx, tx, boardID, actorID, "admin"); err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return nil
}
