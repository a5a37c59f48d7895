package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/ideafeed/internal/model"
)

// PostgresChannelRepo はPostgreSQLを使用した会話リポジトリ。
type PostgresChannelRepo struct {
	db *sql.DB
}

// NewPostgresChannelRepo はPostgresChannelRepoを生成する。
func NewPostgresChannelRepo(db *sql.DB) *PostgresChannelRepo {
	return &PostgresChannelRepo{db: db}
}

// Create は会話を参加者と同一トランザクションで作成する。既に存在する場合は何もしない。
func (r *PostgresChannelRepo) Create(ctx context.Context, ch model.Channel) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO channels (id, is_group, created_at, updated_at)
		 VALUES ($1, $2, now(), now())
		 ON CONFLICT (id) DO NOTHING`,
		ch.ID, ch.IsGroup,
	)
	if err != nil {
		return fmt.Errorf("会話の作成に失敗しました: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// 並行して作成済み
		return nil
	}

	for _, p := range ch.Participants {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO channel_participants (channel_id, participant_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`,
			ch.ID, p,
		)
		if err != nil {
			return fmt.Errorf("参加者の登録に失敗しました: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// FindByID は会話を参加者とメッセージ付きで取得する。見つからない場合はnilを返す。
// メッセージは送信日時の昇順で返す。
func (r *PostgresChannelRepo) FindByID(ctx context.Context, id string) (*model.Channel, error) {
	ch := &model.Channel{ID: id}
	err := r.db.QueryRowContext(ctx,
		`SELECT is_group, updated_at FROM channels WHERE id = $1`, id,
	).Scan(&ch.IsGroup, &ch.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("会話の取得に失敗しました: %w", err)
	}

	ch.Participants, err = queryIDs(ctx, r.db,
		`SELECT participant_id FROM channel_participants WHERE channel_id = $1 ORDER BY participant_id`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("参加者の取得に失敗しました: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, client_id, sender_id, body, sent_at
		 FROM messages WHERE channel_id = $1 ORDER BY sent_at, id`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("メッセージ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		msg := model.Message{ChannelID: id, Status: model.MessageStatusSent}
		if err := rows.Scan(&msg.ID, &msg.ClientID, &msg.SenderID, &msg.Body, &msg.SentAt); err != nil {
			return nil, fmt.Errorf("メッセージのスキャンに失敗しました: %w", err)
		}
		ch.Messages = append(ch.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("メッセージ一覧の読み込みに失敗しました: %w", err)
	}

	return ch, nil
}

// InsertMessage はメッセージを保存する。
// 同じ会話で同じClientIDのメッセージが既にある場合は、保存済みのメッセージを返す。
// 会話が存在しない場合はChannelNotFoundエラーを返す。
func (r *PostgresChannelRepo) InsertMessage(ctx context.Context, msg model.Message) (*model.Message, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE channels SET updated_at = $2 WHERE id = $1`,
		msg.ChannelID, msg.SentAt,
	)
	if err != nil {
		return nil, fmt.Errorf("会話の更新に失敗しました: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, model.NewChannelNotFoundError(msg.ChannelID)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (id, channel_id, sender_id, client_id, body, sent_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (channel_id, client_id) DO NOTHING`,
		msg.ID, msg.ChannelID, msg.SenderID, msg.ClientID, msg.Body, msg.SentAt,
	)
	if err != nil {
		return nil, fmt.Errorf("メッセージの保存に失敗しました: %w", err)
	}

	// 再送時は先に保存されたメッセージを正とする
	stored := model.Message{ChannelID: msg.ChannelID, ClientID: msg.ClientID, Status: model.MessageStatusSent}
	err = tx.QueryRowContext(ctx,
		`SELECT id, sender_id, body, sent_at FROM messages WHERE channel_id = $1 AND client_id = $2`,
		msg.ChannelID, msg.ClientID,
	).Scan(&stored.ID, &stored.SenderID, &stored.Body, &stored.SentAt)
	if err != nil {
		return nil, fmt.Errorf("保存済みメッセージの取得に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &stored, nil
}
