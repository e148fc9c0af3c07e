package database

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/lib/pq"
	"github.com/teris-io/shortid"
)

func (db *PgChatRepository) CreateAccount(params CreateAccountParams) (User, error) {
	res := db.conn.QueryRow(
		"INSERT INTO accounts (username, email, password_hash, created_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING id, username, email, created_at",
		params.Username,
		params.EmailAddress,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.CreatedAt,
	)

	return u, err
}

func (db *PgChatRepository) GetAccountById(accountId int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, created_at FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		accountId,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
		&user.CreatedAt,
	)

	return user, err
}

func (db *PgChatRepository) GetAccountByEmail(email string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, password_hash, created_at FROM accounts "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
		&user.PasswordHash,
		&user.CreatedAt,
	)

	return user, err
}

func (db *PgChatRepository) CreateSession(params CreateSessionParams) (Session, error) {
	res := db.conn.QueryRow(
		"INSERT INTO sessions (account_id, created_at, expires_at) "+
			"VALUES ($1, $2, $3) RETURNING id, account_id, created_at, expires_at",
		params.AccountId,
		time.Now().UTC(),
		params.ExpiresAt.UTC(),
	)

	var s Session
	err := res.Scan(
		&s.Id,
		&s.AccountId,
		&s.CreatedAt,
		&s.ExpiresAt,
	)

	return s, err
}

func (db *PgChatRepository) GetSessionById(sessionId int) (Session, error) {
	row := db.conn.QueryRow(
		"SELECT id, account_id, created_at, expires_at FROM sessions "+
			"WHERE id = $1 LIMIT 1",
		sessionId,
	)

	var s Session
	err := row.Scan(
		&s.Id,
		&s.AccountId,
		&s.CreatedAt,
		&s.ExpiresAt,
	)

	return s, err
}

func (db *PgChatRepository) CreateChat(params CreateChatParams) (Chat, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Chat{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	res := tx.QueryRow(
		"INSERT INTO chats (external_id, name, owner_id, created_at, last_activity_at) "+
			"VALUES ($1, NULLIF($2, ''), $3, $4, $4) "+
			"RETURNING id, external_id, name, owner_id, created_at, last_activity_at",
		params.ExternalId,
		params.Name,
		params.OwnerId,
		now,
	)

	var chat Chat
	err = res.Scan(
		&chat.Id,
		&chat.ExternalId,
		&chat.Name,
		&chat.OwnerId,
		&chat.CreatedAt,
		&chat.LastActivityAt,
	)
	if err != nil {
		return Chat{}, err
	}

	_, err = tx.Exec(
		"INSERT INTO chat_participants (chat_id, account_id, role, joined_at) VALUES ($1, $2, $3, $4)",
		chat.Id,
		params.OwnerId,
		RoleAdmin,
		now,
	)
	if err != nil {
		return Chat{}, err
	}

	for _, memberId := range params.MemberIds {
		_, err = tx.Exec(
			"INSERT INTO chat_participants (chat_id, account_id, role, joined_at) VALUES ($1, $2, $3, $4)",
			chat.Id,
			memberId,
			RoleMember,
			now,
		)
		if err != nil {
			return Chat{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return Chat{}, err
	}

	return chat, nil
}

func (db *PgChatRepository) GetChatById(chatId int) (Chat, error) {
	row := db.conn.QueryRow(
		"SELECT id, external_id, name, owner_id, created_at, last_activity_at FROM chats "+
			"WHERE id = $1 LIMIT 1",
		chatId,
	)

	var chat Chat
	err := row.Scan(
		&chat.Id,
		&chat.ExternalId,
		&chat.Name,
		&chat.OwnerId,
		&chat.CreatedAt,
		&chat.LastActivityAt,
	)

	return chat, err
}

func (db *PgChatRepository) GetChatByExternalId(externalId string) (Chat, error) {
	row := db.conn.QueryRow(
		"SELECT id, external_id, name, owner_id, created_at, last_activity_at FROM chats "+
			"WHERE external_id = $1 LIMIT 1",
		externalId,
	)

	var chat Chat
	err := row.Scan(
		&chat.Id,
		&chat.ExternalId,
		&chat.Name,
		&chat.OwnerId,
		&chat.CreatedAt,
		&chat.LastActivityAt,
	)

	return chat, err
}

// FindDirectChat returns the chat whose participant set is exactly the given
// set: same cardinality, same members, nothing extra. sql.ErrNoRows when no
// such chat exists.
func (db *PgChatRepository) FindDirectChat(participantIds []int) (Chat, error) {
	row := db.conn.QueryRow(
		"SELECT c.id, c.external_id, c.name, c.owner_id, c.created_at, c.last_activity_at "+
			"FROM chats c JOIN chat_participants cp ON cp.chat_id = c.id "+
			"GROUP BY c.id "+
			"HAVING COUNT(*) = $2 AND COUNT(*) FILTER (WHERE cp.account_id = ANY($1)) = $2 "+
			"LIMIT 1",
		pq.Array(participantIds),
		len(participantIds),
	)

	var chat Chat
	err := row.Scan(
		&chat.Id,
		&chat.ExternalId,
		&chat.Name,
		&chat.OwnerId,
		&chat.CreatedAt,
		&chat.LastActivityAt,
	)

	return chat, err
}

func (db *PgChatRepository) IsParticipant(chatId, accountId int) bool {
	row := db.conn.QueryRow(
		"SELECT 1 FROM chat_participants WHERE chat_id = $1 AND account_id = $2 LIMIT 1",
		chatId,
		accountId,
	)

	var one int
	return row.Scan(&one) == nil
}

func (db *PgChatRepository) GetParticipant(chatId, accountId int) (Participant, error) {
	row := db.conn.QueryRow(
		"SELECT cp.chat_id, cp.account_id, a.username, cp.role, cp.joined_at, cp.last_active_at "+
			"FROM chat_participants cp JOIN accounts a ON a.id = cp.account_id "+
			"WHERE cp.chat_id = $1 AND cp.account_id = $2 LIMIT 1",
		chatId,
		accountId,
	)

	var p Participant
	err := row.Scan(
		&p.ChatId,
		&p.AccountId,
		&p.Username,
		&p.Role,
		&p.JoinedAt,
		&p.LastActiveAt,
	)

	return p, err
}

func (db *PgChatRepository) ListParticipants(chatId int) ([]Participant, error) {
	rows, err := db.conn.Query(
		"SELECT cp.chat_id, cp.account_id, a.username, cp.role, cp.joined_at, cp.last_active_at "+
			"FROM chat_participants cp JOIN accounts a ON a.id = cp.account_id "+
			"WHERE cp.chat_id = $1 ORDER BY cp.joined_at, cp.account_id",
		chatId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants = make([]Participant, 0)
	for rows.Next() {
		var p Participant
		if err = rows.Scan(&p.ChatId, &p.AccountId, &p.Username, &p.Role, &p.JoinedAt, &p.LastActiveAt); err != nil {
			break
		}

		participants = append(participants, p)
	}

	return participants, err
}

func (db *PgChatRepository) ListChatsForAccount(accountId int) ([]Chat, error) {
	rows, err := db.conn.Query(
		"SELECT c.id, c.external_id, c.name, c.owner_id, c.created_at, c.last_activity_at, "+
			"(SELECT COUNT(*) FROM messages m WHERE m.chat_id = c.id "+
			"AND m.sender_id <> cp.account_id "+
			"AND cp.last_active_at IS NOT NULL AND m.created_at > cp.last_active_at) "+
			"FROM chats c JOIN chat_participants cp ON cp.chat_id = c.id "+
			"WHERE cp.account_id = $1 ORDER BY c.last_activity_at DESC",
		accountId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats = make([]Chat, 0)
	for rows.Next() {
		var chat Chat
		if err = rows.Scan(&chat.Id, &chat.ExternalId, &chat.Name, &chat.OwnerId,
			&chat.CreatedAt, &chat.LastActivityAt, &chat.UnreadCount); err != nil {
			break
		}

		chats = append(chats, chat)
	}

	return chats, err
}

// CreateMessage persists a message, its attachments and the chat activity
// bump in one transaction. Attachment bytes are handed to upload before the
// attachment row is inserted; any failure rolls back every row of the
// attempt. A blob already uploaded when a later step fails is orphaned, the
// key embeds the message id so orphans can be swept offline.
func (db *PgChatRepository) CreateMessage(params CreateMessageParams, upload AttachmentUploader) (Message, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	res := tx.QueryRow(
		"INSERT INTO messages (chat_id, sender_id, reply_to_id, content, status, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6) "+
			"RETURNING id, chat_id, sender_id, reply_to_id, content, status, created_at",
		params.ChatId,
		params.SenderId,
		nullableInt(params.ReplyToId),
		nullableString(params.Content),
		StatusSent,
		now,
	)

	var msg Message
	err = res.Scan(
		&msg.Id,
		&msg.ChatId,
		&msg.SenderId,
		&msg.ReplyToId,
		&msg.Content,
		&msg.Status,
		&msg.CreatedAt,
	)
	if err != nil {
		return Message{}, err
	}

	for _, payload := range params.Attachments {
		var key string
		key, err = attachmentKey(msg.Id, payload.FileName)
		if err != nil {
			return Message{}, err
		}

		if err = upload(key, payload.Data, payload.MimeType); err != nil {
			err = fmt.Errorf("upload attachment %q: %w", payload.FileName, err)
			return Message{}, err
		}

		attRes := tx.QueryRow(
			"INSERT INTO attachments (message_id, file_name, size_bytes, mime_type, storage_key, created_at) "+
				"VALUES ($1, $2, $3, $4, $5, $6) "+
				"RETURNING id, message_id, file_name, size_bytes, mime_type, storage_key, created_at",
			msg.Id,
			payload.FileName,
			len(payload.Data),
			payload.MimeType,
			key,
			now,
		)

		var att Attachment
		err = attRes.Scan(
			&att.Id,
			&att.MessageId,
			&att.FileName,
			&att.SizeBytes,
			&att.MimeType,
			&att.StorageKey,
			&att.CreatedAt,
		)
		if err != nil {
			return Message{}, err
		}

		msg.Attachments = append(msg.Attachments, att)
	}

	_, err = tx.Exec(
		"UPDATE chats SET last_activity_at = $1 WHERE id = $2",
		now,
		params.ChatId,
	)
	if err != nil {
		return Message{}, err
	}

	_, err = tx.Exec(
		"UPDATE chat_participants SET last_active_at = $1 WHERE chat_id = $2 AND account_id = $3",
		now,
		params.ChatId,
		params.SenderId,
	)
	if err != nil {
		return Message{}, err
	}

	if err = tx.Commit(); err != nil {
		return Message{}, err
	}

	return msg, nil
}

func (db *PgChatRepository) GetMessages(chatId int) ([]Message, error) {
	return db.queryMessages(
		"SELECT id, chat_id, sender_id, reply_to_id, content, status, created_at, edited_at, deleted_at "+
			"FROM messages WHERE chat_id = $1 ORDER BY created_at, id",
		chatId,
	)
}

func (db *PgChatRepository) GetMessagesSince(chatId int, since time.Time) ([]Message, error) {
	return db.queryMessages(
		"SELECT id, chat_id, sender_id, reply_to_id, content, status, created_at, edited_at, deleted_at "+
			"FROM messages WHERE chat_id = $1 AND created_at > $2 ORDER BY created_at, id",
		chatId,
		since,
	)
}

func (db *PgChatRepository) GetLatestMessage(chatId int) (Message, error) {
	msgs, err := db.queryMessages(
		"SELECT id, chat_id, sender_id, reply_to_id, content, status, created_at, edited_at, deleted_at "+
			"FROM messages WHERE chat_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1",
		chatId,
	)
	if err != nil {
		return Message{}, err
	}
	if len(msgs) == 0 {
		return Message{}, sql.ErrNoRows
	}

	return msgs[0], nil
}

func (db *PgChatRepository) UpdateParticipantLastActive(chatId, accountId int, ts time.Time) error {
	_, err := db.conn.Exec(
		"UPDATE chat_participants SET last_active_at = $1 WHERE chat_id = $2 AND account_id = $3",
		ts.UTC(),
		chatId,
		accountId,
	)

	return err
}

func (db *PgChatRepository) queryMessages(query string, args ...any) ([]Message, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages = make([]Message, 0)
	var ids []int
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.Id, &msg.ChatId, &msg.SenderId, &msg.ReplyToId, &msg.Content,
			&msg.Status, &msg.CreatedAt, &msg.EditedAt, &msg.DeletedAt); err != nil {
			return nil, err
		}

		messages = append(messages, msg)
		ids = append(ids, msg.Id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return messages, nil
	}

	attRows, err := db.conn.Query(
		"SELECT id, message_id, file_name, size_bytes, mime_type, storage_key, created_at "+
			"FROM attachments WHERE message_id = ANY($1) ORDER BY id",
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("fetch attachments: %w", err)
	}
	defer attRows.Close()

	byMessage := make(map[int][]Attachment)
	for attRows.Next() {
		var att Attachment
		if err := attRows.Scan(&att.Id, &att.MessageId, &att.FileName, &att.SizeBytes,
			&att.MimeType, &att.StorageKey, &att.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}

		byMessage[att.MessageId] = append(byMessage[att.MessageId], att)
	}
	if err := attRows.Err(); err != nil {
		return nil, err
	}

	for i := range messages {
		messages[i].Attachments = byMessage[messages[i].Id]
	}

	return messages, nil
}

// attachmentKey builds a collision-resistant storage key from the owning
// message id, a random suffix and the original file extension.
func attachmentKey(messageId int, fileName string) (string, error) {
	suffix, err := shortid.Generate()
	if err != nil {
		return "", fmt.Errorf("generate key suffix: %w", err)
	}

	return fmt.Sprintf("%d-%s%s", messageId, suffix, filepath.Ext(fileName)), nil
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullableString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
