package mysql

import (
	"context"
	"fmt"
	"strings"

	"github.com/usememos/saaskit/store"
)

func (d *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		"CREATE TABLE IF NOT EXISTS `chat_session` (" +
			"`id` INT NOT NULL AUTO_INCREMENT PRIMARY KEY," +
			"`uid` VARCHAR(256) NOT NULL UNIQUE," +
			"`creator_id` VARCHAR(256) NOT NULL," +
			"`title` TEXT NOT NULL," +
			"`summary` TEXT NOT NULL," +
			"`provider` VARCHAR(64) NOT NULL DEFAULT ''," +
			"`model` VARCHAR(256) NOT NULL DEFAULT ''," +
			"`created_ts` TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP," +
			"`updated_ts` TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP," +
			"INDEX `idx_chat_session_creator` (`creator_id`)" +
			")",
		"CREATE TABLE IF NOT EXISTS `chat_message` (" +
			"`id` INT NOT NULL AUTO_INCREMENT PRIMARY KEY," +
			"`session_id` INT NOT NULL," +
			"`role` VARCHAR(256) NOT NULL," +
			"`content` TEXT NOT NULL," +
			"`token_count` INT NOT NULL DEFAULT 0," +
			"`created_ts` TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP," +
			"INDEX `idx_chat_message_session` (`session_id`)," +
			"CONSTRAINT `fk_chat_message_session` FOREIGN KEY (`session_id`) REFERENCES `chat_session`(`id`) ON DELETE CASCADE" +
			")",
	}
	for _, s := range stmts {
		if _, err := d.db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

const sessionColumns = "`id`, `uid`, `creator_id`, `title`, `summary`, `provider`, `model`, UNIX_TIMESTAMP(`created_ts`), UNIX_TIMESTAMP(`updated_ts`)"

func (d *DB) CreateChatSession(ctx context.Context, create *store.ChatSession) (*store.ChatSession, error) {
	stmt := "INSERT INTO `chat_session` (`uid`, `creator_id`, `title`, `summary`, `provider`, `model`) VALUES (?, ?, ?, ?, ?, ?)"
	result, err := d.db.ExecContext(ctx, stmt, create.UID, create.CreatorID, create.Title, create.Summary, create.Provider, create.Model)
	if err != nil {
		return nil, err
	}
	rawID, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	id := int32(rawID)
	return d.getChatSession(ctx, &store.FindChatSession{ID: &id})
}

func (d *DB) ListChatSessions(ctx context.Context, find *store.FindChatSession) ([]*store.ChatSession, error) {
	where, args := []string{"1 = 1"}, []any{}
	if v := find.ID; v != nil {
		where, args = append(where, "`id` = ?"), append(args, *v)
	}
	if v := find.CreatorID; v != nil {
		where, args = append(where, "`creator_id` = ?"), append(args, *v)
	}
	if v := find.UID; v != nil {
		where, args = append(where, "`uid` = ?"), append(args, *v)
	}
	query := fmt.Sprintf(
		"SELECT %s FROM `chat_session` WHERE %s ORDER BY `updated_ts` DESC, `id` DESC",
		sessionColumns, strings.Join(where, " AND "),
	)
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*store.ChatSession
	for rows.Next() {
		s := &store.ChatSession{}
		if err := rows.Scan(&s.ID, &s.UID, &s.CreatorID, &s.Title, &s.Summary, &s.Provider, &s.Model, &s.CreatedTs, &s.UpdatedTs); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

func (d *DB) getChatSession(ctx context.Context, find *store.FindChatSession) (*store.ChatSession, error) {
	list, err := d.ListChatSessions(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (d *DB) UpdateChatSession(ctx context.Context, update *store.UpdateChatSession) (*store.ChatSession, error) {
	set, args := []string{}, []any{}
	if v := update.Title; v != nil {
		set, args = append(set, "`title` = ?"), append(args, *v)
	}
	if v := update.Summary; v != nil {
		set, args = append(set, "`summary` = ?"), append(args, *v)
	}
	if v := update.Provider; v != nil {
		set, args = append(set, "`provider` = ?"), append(args, *v)
	}
	if v := update.Model; v != nil {
		set, args = append(set, "`model` = ?"), append(args, *v)
	}
	set = append(set, "`updated_ts` = CURRENT_TIMESTAMP")
	args = append(args, update.UID)
	stmt := fmt.Sprintf("UPDATE `chat_session` SET %s WHERE `uid` = ?", strings.Join(set, ", "))
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, err
	}
	return d.getChatSession(ctx, &store.FindChatSession{UID: &update.UID})
}

func (d *DB) DeleteChatSession(ctx context.Context, uid string) error {
	_, err := d.db.ExecContext(ctx, "DELETE FROM `chat_session` WHERE `uid` = ?", uid)
	return err
}

func (d *DB) CreateChatMessage(ctx context.Context, create *store.CreateChatMessage) (*store.ChatMessage, error) {
	stmt := "INSERT INTO `chat_message` (`session_id`, `role`, `content`, `token_count`) VALUES (?, ?, ?, ?)"
	result, err := d.db.ExecContext(ctx, stmt, create.SessionID, create.Role, create.Content, create.TokenCount)
	if err != nil {
		return nil, err
	}
	rawID, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	m := &store.ChatMessage{
		ID:         int32(rawID),
		SessionID:  create.SessionID,
		Role:       create.Role,
		Content:    create.Content,
		TokenCount: create.TokenCount,
	}
	if err := d.db.QueryRowContext(ctx, "SELECT UNIX_TIMESTAMP(`created_ts`) FROM `chat_message` WHERE `id` = ?", m.ID).Scan(&m.CreatedTs); err != nil {
		return nil, err
	}
	if _, err := d.db.ExecContext(ctx, "UPDATE `chat_session` SET `updated_ts` = CURRENT_TIMESTAMP WHERE `id` = ?", create.SessionID); err != nil {
		return nil, err
	}
	return m, nil
}

func (d *DB) ListChatMessages(ctx context.Context, find *store.FindChatMessage) ([]*store.ChatMessage, error) {
	query := "SELECT `id`, `session_id`, `role`, `content`, `token_count`, UNIX_TIMESTAMP(`created_ts`) " +
		"FROM `chat_message` WHERE `session_id` = ? ORDER BY `id` ASC"
	rows, err := d.db.QueryContext(ctx, query, find.SessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*store.ChatMessage
	for rows.Next() {
		m := &store.ChatMessage{}
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.TokenCount, &m.CreatedTs); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

func (d *DB) DeleteChatMessages(ctx context.Context, sessionID int32) error {
	_, err := d.db.ExecContext(ctx, "DELETE FROM `chat_message` WHERE `session_id` = ?", sessionID)
	return err
}
