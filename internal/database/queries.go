package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	gosqlite3 "github.com/mattn/go-sqlite3"
)

// ErrConflict is returned when an insert violates a unique constraint.
var ErrConflict = errors.New("already exists")

const pqUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}

	var sqliteErr gosqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == gosqlite3.ErrConstraintUnique
	}

	return false
}

const (
	// maxMessageId bounds cursor queries when no cursor is supplied.
	maxMessageId = 1<<31 - 1

	roomColumns = "r.id, r.name, r.description, r.creator_id, r.password_hash, r.last_message_at, " +
		"r.created_at, r.updated_at, (SELECT COUNT(*) FROM memberships mb WHERE mb.room_id = r.id)"

	messageColumns = "m.id, m.room_id, m.user_id, m.body, m.type, m.subtype, m.sent_at, m.edited_at, " +
		"u.username, u.display_name, u.avatar_url"

	createMembershipQuery = "INSERT INTO memberships (room_id, user_id, joined_at) VALUES ($1, $2, $3) " +
		"ON CONFLICT (room_id, user_id) DO NOTHING RETURNING room_id, user_id, joined_at"

	countMembersQuery = "SELECT COUNT(*) FROM memberships WHERE room_id = $1"
)

type scanner interface {
	Scan(dest ...any) error
}

func utc(t time.Time) time.Time {
	return t.UTC()
}

func nullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := utc(nt.Time)
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func (db *SqlGoChatRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (User, error) {
	now := time.Now().UTC()
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO users (username, display_name, email, password_hash, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, username, display_name, avatar_url, email, created_at, updated_at",
		params.Username,
		params.DisplayName,
		params.EmailAddress,
		params.PasswordHash,
		now,
		now,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.DisplayName,
		&u.AvatarUrl,
		&u.EmailAddress,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return User{}, err
	}
	u.CreatedAt, u.UpdatedAt = utc(u.CreatedAt), utc(u.UpdatedAt)

	return u, nil
}

func (db *SqlGoChatRepository) getAccount(ctx context.Context, where string, arg any) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, username, display_name, avatar_url, email, password_hash, created_at, updated_at "+
			"FROM users WHERE "+where+" LIMIT 1",
		arg,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.DisplayName,
		&u.AvatarUrl,
		&u.EmailAddress,
		&u.PasswordHash,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	u.CreatedAt, u.UpdatedAt = utc(u.CreatedAt), utc(u.UpdatedAt)

	return u, err
}

func (db *SqlGoChatRepository) GetAccountById(ctx context.Context, userId int) (User, error) {
	return db.getAccount(ctx, "id = $1", userId)
}

func (db *SqlGoChatRepository) GetAccountByEmail(ctx context.Context, email string) (User, error) {
	return db.getAccount(ctx, "email = $1", email)
}

func scanRoom(row scanner) (Room, error) {
	var (
		room          Room
		passwordHash  sql.NullString
		lastMessageAt sql.NullTime
	)

	err := row.Scan(
		&room.Id,
		&room.Name,
		&room.Description,
		&room.CreatorId,
		&passwordHash,
		&lastMessageAt,
		&room.CreatedAt,
		&room.UpdatedAt,
		&room.MemberCount,
	)
	if err != nil {
		return Room{}, err
	}

	room.PasswordHash = passwordHash.String
	room.LastMessageAt = nullTime(lastMessageAt)
	room.CreatedAt, room.UpdatedAt = utc(room.CreatedAt), utc(room.UpdatedAt)

	return room, nil
}

func (db *SqlGoChatRepository) listRooms(ctx context.Context, query string, args ...any) ([]Room, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rooms := make([]Room, 0)
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}

// CreateRoom inserts the room and its creator's membership atomically.
func (db *SqlGoChatRepository) CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error) {
	createdAt := params.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	room := Room{
		Name:         params.Name,
		Description:  params.Description,
		CreatorId:    params.CreatorId,
		PasswordHash: params.PasswordHash,
		MemberCount:  1,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			"INSERT INTO rooms (name, description, creator_id, password_hash, created_at, updated_at) "+
				"VALUES ($1, $2, $3, $4, $5, $6) RETURNING id",
			params.Name,
			params.Description,
			params.CreatorId,
			nullString(params.PasswordHash),
			createdAt,
			createdAt,
		).Scan(&room.Id)
		if err != nil {
			return fmt.Errorf("insert room: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			"INSERT INTO memberships (room_id, user_id, joined_at) VALUES ($1, $2, $3)",
			room.Id,
			params.CreatorId,
			createdAt,
		)
		if err != nil {
			return fmt.Errorf("insert creator membership: %w", err)
		}

		return nil
	})
	if err != nil {
		return Room{}, err
	}

	return room, nil
}

func (db *SqlGoChatRepository) GetRoom(ctx context.Context, roomId int) (Room, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+roomColumns+" FROM rooms r WHERE r.id = $1 AND r.deleted_at IS NULL",
		roomId,
	)

	return scanRoom(row)
}

func (db *SqlGoChatRepository) ListPublicRooms(ctx context.Context) ([]Room, error) {
	return db.listRooms(ctx,
		"SELECT "+roomColumns+" FROM rooms r "+
			"WHERE r.deleted_at IS NULL AND (r.password_hash IS NULL OR r.password_hash = '') "+
			"ORDER BY COALESCE(r.last_message_at, r.created_at) DESC, r.id DESC",
	)
}

func (db *SqlGoChatRepository) ListJoinedRooms(ctx context.Context, userId int) ([]Room, error) {
	return db.listRooms(ctx,
		"SELECT "+roomColumns+" FROM rooms r JOIN memberships j ON j.room_id = r.id "+
			"WHERE j.user_id = $1 AND r.deleted_at IS NULL "+
			"ORDER BY COALESCE(r.last_message_at, r.created_at) DESC, r.id DESC",
		userId,
	)
}

// DeleteRoom soft-deletes the room. Memberships and messages are retained.
func (db *SqlGoChatRepository) DeleteRoom(ctx context.Context, roomId int, deletedAt time.Time) error {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE rooms SET deleted_at = $1, updated_at = $1 WHERE id = $2 AND deleted_at IS NULL",
		deletedAt,
		roomId,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}

	return nil
}

// CreateMembership adds userId to roomId unless a membership already exists,
// in which case the existing row is returned with Created unset. The member
// count is read inside the same transaction.
func (db *SqlGoChatRepository) CreateMembership(ctx context.Context, roomId, userId int, joinedAt time.Time) (JoinResult, error) {
	var res JoinResult

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		m := &res.Membership
		err := tx.QueryRowContext(ctx, createMembershipQuery, roomId, userId, joinedAt).
			Scan(&m.RoomId, &m.UserId, &m.JoinedAt)
		switch {
		case err == nil:
			res.Created = true
		case errors.Is(err, sql.ErrNoRows):
			err = tx.QueryRowContext(ctx,
				"SELECT room_id, user_id, joined_at FROM memberships WHERE room_id = $1 AND user_id = $2",
				roomId,
				userId,
			).Scan(&m.RoomId, &m.UserId, &m.JoinedAt)
			if err != nil {
				return fmt.Errorf("get existing membership: %w", err)
			}
		default:
			return fmt.Errorf("insert membership: %w", err)
		}
		m.JoinedAt = utc(m.JoinedAt)

		if err := tx.QueryRowContext(ctx, countMembersQuery, roomId).Scan(&res.MemberCount); err != nil {
			return fmt.Errorf("count members: %w", err)
		}

		return nil
	})

	return res, err
}

// DeleteMembership removes the membership row. Removing a missing row is
// not an error; Removed reports whether anything was deleted.
func (db *SqlGoChatRepository) DeleteMembership(ctx context.Context, roomId, userId int) (LeaveResult, error) {
	var res LeaveResult

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		r, err := tx.ExecContext(ctx,
			"DELETE FROM memberships WHERE room_id = $1 AND user_id = $2",
			roomId,
			userId,
		)
		if err != nil {
			return fmt.Errorf("delete membership: %w", err)
		}

		n, err := r.RowsAffected()
		if err != nil {
			return err
		}
		res.Removed = n > 0

		if err := tx.QueryRowContext(ctx, countMembersQuery, roomId).Scan(&res.MemberCount); err != nil {
			return fmt.Errorf("count members: %w", err)
		}

		return nil
	})

	return res, err
}

func (db *SqlGoChatRepository) GetMembership(ctx context.Context, roomId, userId int) (Membership, error) {
	var m Membership
	err := db.conn.QueryRowContext(ctx,
		"SELECT room_id, user_id, joined_at FROM memberships WHERE room_id = $1 AND user_id = $2",
		roomId,
		userId,
	).Scan(&m.RoomId, &m.UserId, &m.JoinedAt)
	m.JoinedAt = utc(m.JoinedAt)

	return m, err
}

func (db *SqlGoChatRepository) CountMembers(ctx context.Context, roomId int) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, countMembersQuery, roomId).Scan(&count)
	return count, err
}

func (db *SqlGoChatRepository) ListMembers(ctx context.Context, roomId int) ([]Member, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT u.id, u.username, u.display_name, u.avatar_url, mb.joined_at FROM memberships mb "+
			"JOIN users u ON u.id = mb.user_id WHERE mb.room_id = $1 ORDER BY mb.joined_at, u.id",
		roomId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make([]Member, 0)
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.User.Id, &m.User.Username, &m.User.DisplayName, &m.User.AvatarUrl, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.JoinedAt = utc(m.JoinedAt)
		members = append(members, m)
	}

	return members, rows.Err()
}

func scanMessage(row scanner) (Message, error) {
	var (
		msg         Message
		userId      sql.NullInt64
		editedAt    sql.NullTime
		username    sql.NullString
		displayName sql.NullString
		avatarUrl   sql.NullString
	)

	err := row.Scan(
		&msg.Id,
		&msg.RoomId,
		&userId,
		&msg.Body,
		&msg.Type,
		&msg.Subtype,
		&msg.SentAt,
		&editedAt,
		&username,
		&displayName,
		&avatarUrl,
	)
	if err != nil {
		return Message{}, err
	}

	msg.SentAt = utc(msg.SentAt)
	msg.EditedAt = nullTime(editedAt)
	if userId.Valid {
		id := int(userId.Int64)
		msg.UserId = &id
		if username.Valid {
			msg.Author = &User{
				Id:          id,
				Username:    username.String,
				DisplayName: displayName.String,
				AvatarUrl:   avatarUrl.String,
			}
		}
	}

	return msg, nil
}

// AppendMessage inserts the message and advances the room's last_message_at
// in one transaction so the room never lags its newest message.
func (db *SqlGoChatRepository) AppendMessage(ctx context.Context, params AppendMessageParams) (Message, error) {
	subtype := params.Subtype
	if subtype == "" {
		subtype = SubtypeGeneric
	}

	msg := Message{
		RoomId:  params.RoomId,
		UserId:  params.UserId,
		Body:    params.Body,
		Type:    params.Type,
		Subtype: subtype,
		SentAt:  params.SentAt,
	}

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			"INSERT INTO messages (room_id, user_id, body, type, subtype, sent_at) "+
				"VALUES ($1, $2, $3, $4, $5, $6) RETURNING id",
			params.RoomId,
			nullInt(params.UserId),
			params.Body,
			params.Type,
			subtype,
			params.SentAt,
		).Scan(&msg.Id)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			"UPDATE rooms SET last_message_at = $1 "+
				"WHERE id = $2 AND (last_message_at IS NULL OR last_message_at < $1)",
			params.SentAt,
			params.RoomId,
		)
		if err != nil {
			return fmt.Errorf("update room last_message_at: %w", err)
		}

		if params.UserId != nil {
			author := User{Id: *params.UserId}
			err := tx.QueryRowContext(ctx,
				"SELECT username, display_name, avatar_url FROM users WHERE id = $1",
				*params.UserId,
			).Scan(&author.Username, &author.DisplayName, &author.AvatarUrl)
			if err != nil {
				return fmt.Errorf("get author: %w", err)
			}
			msg.Author = &author
		}

		return nil
	})
	if err != nil {
		return Message{}, err
	}

	return msg, nil
}

// GetMessage returns a message that has not been soft-deleted.
func (db *SqlGoChatRepository) GetMessage(ctx context.Context, messageId int) (Message, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+messageColumns+" FROM messages m LEFT JOIN users u ON u.id = m.user_id "+
			"WHERE m.id = $1 AND m.deleted_at IS NULL",
		messageId,
	)

	return scanMessage(row)
}

func (db *SqlGoChatRepository) UpdateMessageBody(ctx context.Context, messageId int, body string, editedAt time.Time) (Message, error) {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE messages SET body = $1, edited_at = $2 WHERE id = $3 AND deleted_at IS NULL",
		body,
		editedAt,
		messageId,
	)
	if err != nil {
		return Message{}, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return Message{}, err
	}
	if n == 0 {
		return Message{}, sql.ErrNoRows
	}

	return db.GetMessage(ctx, messageId)
}

// SoftDeleteMessage tombstones the message; the row is kept for audit.
func (db *SqlGoChatRepository) SoftDeleteMessage(ctx context.Context, messageId int, deletedAt time.Time) error {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE messages SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL",
		deletedAt,
		messageId,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}

	return nil
}

// QueryMessages returns up to limit non-deleted messages of the room with
// an id below beforeId, newest first. A beforeId <= 0 means no upper bound.
func (db *SqlGoChatRepository) QueryMessages(ctx context.Context, roomId, beforeId, limit int) ([]Message, error) {
	upper := maxMessageId
	if beforeId > 0 {
		upper = beforeId
	}

	if limit <= 0 {
		limit = 20
	}

	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+messageColumns+" FROM messages m LEFT JOIN users u ON u.id = m.user_id "+
			"WHERE m.room_id = $1 AND m.deleted_at IS NULL AND m.id < $2 ORDER BY m.id DESC LIMIT $3",
		roomId,
		upper,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]Message, 0, limit)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}
