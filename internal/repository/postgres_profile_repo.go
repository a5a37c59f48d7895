package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/ideafeed/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
// フォロー関係もプロフィールに従属するためここで扱う。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

// ListProfiles はプロフィールの全件を返す。
func (r *PostgresProfileRepo) ListProfiles(ctx context.Context) ([]model.Profile, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, display_name FROM profiles ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("プロフィール一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var profiles []model.Profile
	for rows.Next() {
		var p model.Profile
		if err := rows.Scan(&p.ID, &p.Name, &p.DisplayName); err != nil {
			return nil, fmt.Errorf("プロフィールのスキャンに失敗しました: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("プロフィール一覧の読み込みに失敗しました: %w", err)
	}

	return profiles, nil
}

// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	p := &model.Profile{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, display_name FROM profiles WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.DisplayName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	return p, nil
}

// Upsert はプロフィールを作成または更新する。
func (r *PostgresProfileRepo) Upsert(ctx context.Context, p model.Profile) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (id, name, display_name)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, display_name = EXCLUDED.display_name`,
		p.ID, p.Name, p.DisplayName,
	)
	if err != nil {
		return fmt.Errorf("プロフィールの保存に失敗しました: %w", err)
	}
	return nil
}

// ListFollowing はfollowerIDがフォローしているプロフィールIDを返す。
func (r *PostgresProfileRepo) ListFollowing(ctx context.Context, followerID string) ([]string, error) {
	return queryIDs(ctx, r.db,
		`SELECT followee_id FROM follows WHERE follower_id = $1 ORDER BY created_at`,
		followerID,
	)
}

// Follow はフォロー関係を冪等に作成する。
// フォローする側のプロフィールがなければIDを名前として作成する。
func (r *PostgresProfileRepo) Follow(ctx context.Context, followerID, followeeID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO profiles (id, name) VALUES ($1, $1) ON CONFLICT (id) DO NOTHING`,
		followerID,
	)
	if err != nil {
		return fmt.Errorf("プロフィールの作成に失敗しました: %w", err)
	}

	var exists bool
	err = tx.QueryRowContext(ctx,
		`SELECT true FROM profiles WHERE id = $1`, followeeID,
	).Scan(&exists)
	if err == sql.ErrNoRows {
		return model.NewProfileNotFoundError(followeeID)
	}
	if err != nil {
		return fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO follows (follower_id, followee_id) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`,
		followerID, followeeID,
	)
	if err != nil {
		return fmt.Errorf("フォローの作成に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// PostgresSavedIdeaRepo はPostgreSQLを使用した保存済みアイデアリポジトリ。
type PostgresSavedIdeaRepo struct {
	db *sql.DB
}

// NewPostgresSavedIdeaRepo はPostgresSavedIdeaRepoを生成する。
func NewPostgresSavedIdeaRepo(db *sql.DB) *PostgresSavedIdeaRepo {
	return &PostgresSavedIdeaRepo{db: db}
}

// ListSaved はactorIDが保存したアイデアIDを返す。
func (r *PostgresSavedIdeaRepo) ListSaved(ctx context.Context, actorID string) ([]string, error) {
	return queryIDs(ctx, r.db,
		`SELECT idea_id FROM saved_ideas WHERE actor_id = $1 ORDER BY created_at`,
		actorID,
	)
}

// Save はアイデアを冪等に保存する。
func (r *PostgresSavedIdeaRepo) Save(ctx context.Context, actorID, ideaID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO saved_ideas (actor_id, idea_id) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`,
		actorID, ideaID,
	)
	if isForeignKeyViolation(err) {
		return model.NewIdeaNotFoundError(ideaID)
	}
	if err != nil {
		return fmt.Errorf("アイデアの保存に失敗しました: %w", err)
	}
	return nil
}

// isForeignKeyViolation は外部キー制約違反かどうかを判定する。
func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

// queryIDs は1カラムの文字列IDを返すクエリを実行する。
func queryIDs(ctx context.Context, db *sql.DB, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ID一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("IDのスキャンに失敗しました: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ID一覧の読み込みに失敗しました: %w", err)
	}
	return ids, nil
}
