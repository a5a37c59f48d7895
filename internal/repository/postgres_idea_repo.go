package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitoshi/ideafeed/internal/model"
)

// ideaColumns はアイデアのSELECT句。scanIdeaの引数順と一致させる。
const ideaColumns = `id, title, description, category, tags, author_id, author_name,
	votes, summary, body, pitch, created_at`

// PostgresIdeaRepo はPostgreSQLを使用したアイデアリポジトリ。
type PostgresIdeaRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresIdeaRepo はPostgresIdeaRepoを生成する。
func NewPostgresIdeaRepo(db *sql.DB) *PostgresIdeaRepo {
	return &PostgresIdeaRepo{db: db, now: time.Now}
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdea(row rowScanner) (model.Idea, error) {
	var idea model.Idea
	var authorID, summary, body, pitch sql.NullString
	var tags pq.StringArray

	err := row.Scan(
		&idea.ID, &idea.Title, &idea.Description, &idea.Category, &tags,
		&authorID, &idea.AuthorName, &idea.Votes,
		&summary, &body, &pitch, &idea.CreatedAt,
	)
	if err != nil {
		return model.Idea{}, err
	}

	idea.Tags = []string(tags)
	idea.AuthorID = nullStringValue(authorID)
	idea.Summary = nullStringValue(summary)
	idea.Body = nullStringValue(body)
	idea.Pitch = nullStringValue(pitch)
	return idea, nil
}

// ListIdeas はアイデアの全件を作成日時の降順で返す。
func (r *PostgresIdeaRepo) ListIdeas(ctx context.Context) ([]model.Idea, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ideaColumns+` FROM ideas ORDER BY created_at DESC, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("アイデア一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var ideas []model.Idea
	for rows.Next() {
		idea, err := scanIdea(rows)
		if err != nil {
			return nil, fmt.Errorf("アイデアのスキャンに失敗しました: %w", err)
		}
		ideas = append(ideas, idea)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("アイデア一覧の読み込みに失敗しました: %w", err)
	}

	return ideas, nil
}

// FindByID は指定IDのアイデアを取得する。見つからない場合はnilを返す。
func (r *PostgresIdeaRepo) FindByID(ctx context.Context, id string) (*model.Idea, error) {
	idea, err := scanIdea(r.db.QueryRowContext(ctx,
		`SELECT `+ideaColumns+` FROM ideas WHERE id = $1`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("アイデアの取得に失敗しました: %w", err)
	}
	return &idea, nil
}

// Create はアイデアを作成する。IDと作成日時はリポジトリ側で確定する。
// プロフィールのない作者はauthor_idをNULLとして保存する。
func (r *PostgresIdeaRepo) Create(ctx context.Context, in model.NewIdea) (*model.Idea, error) {
	idea := newIdeaRecord(in, uuid.NewString(), r.now())

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO ideas (id, title, description, category, tags, author_id, author_name,
		                    votes, summary, body, pitch, created_at)
		 VALUES ($1, $2, $3, $4, $5, (SELECT id FROM profiles WHERE id = $6), $7, 0, $8, $9, $10, $11)`,
		idea.ID, idea.Title, idea.Description, idea.Category, pq.Array(idea.Tags),
		nullString(idea.AuthorID), idea.AuthorName,
		nullString(idea.Summary), nullString(idea.Body), nullString(idea.Pitch),
		idea.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("アイデアの作成に失敗しました: %w", err)
	}

	return &idea, nil
}

// newIdeaRecord は投稿データから保存するアイデアを組み立てる。
func newIdeaRecord(in model.NewIdea, id string, now time.Time) model.Idea {
	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}
	return model.Idea{
		ID:          id,
		Title:       in.Title,
		Description: in.Description,
		Category:    in.Category,
		Tags:        tags,
		AuthorID:    in.AuthorID,
		AuthorName:  in.AuthorName,
		Summary:     in.Summary,
		Body:        in.Body,
		Pitch:       in.Pitch,
		// DBの精度に合わせる
		CreatedAt: now.UTC().Truncate(time.Microsecond),
	}
}

// Vote はactorIDの投票を記録し、反映後の投票数を返す。
// 投票の記録と集計値の更新は同一トランザクションで行う。
func (r *PostgresIdeaRepo) Vote(ctx context.Context, actorID, ideaID string, dir model.VoteDirection) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 同時投票で集計がずれないよう行ロックを取る
	var exists bool
	err = tx.QueryRowContext(ctx,
		`SELECT true FROM ideas WHERE id = $1 FOR UPDATE`, ideaID,
	).Scan(&exists)
	if err == sql.ErrNoRows {
		return 0, model.NewIdeaNotFoundError(ideaID)
	}
	if err != nil {
		return 0, fmt.Errorf("アイデアのロックに失敗しました: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO idea_votes (idea_id, actor_id, direction, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (idea_id, actor_id) DO UPDATE SET direction = EXCLUDED.direction, updated_at = now()`,
		ideaID, actorID, int(dir),
	)
	if err != nil {
		return 0, fmt.Errorf("投票の記録に失敗しました: %w", err)
	}

	var votes int
	err = tx.QueryRowContext(ctx,
		`UPDATE ideas
		 SET votes = (SELECT COALESCE(SUM(direction), 0) FROM idea_votes WHERE idea_id = $1)
		 WHERE id = $1
		 RETURNING votes`,
		ideaID,
	).Scan(&votes)
	if err != nil {
		return 0, fmt.Errorf("投票数の更新に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return votes, nil
}

// nullString は空文字列をNULLとして扱うsql.NullStringを返す。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}
