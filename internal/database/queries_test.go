package database_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/npezzotti/go-teahub/internal/database"
	"github.com/npezzotti/go-teahub/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func createRoom(t *testing.T, repo database.GoChatRepository, creatorId int, name, passwordHash string) database.Room {
	t.Helper()
	room, err := repo.CreateRoom(context.Background(), database.CreateRoomParams{
		Name:         name,
		Description:  "a room",
		CreatorId:    creatorId,
		PasswordHash: passwordHash,
		CreatedAt:    baseTime,
	})
	require.NoError(t, err, "create room")
	return room
}

func appendUserMessage(t *testing.T, repo database.GoChatRepository, roomId, userId int, body string, sentAt time.Time) database.Message {
	t.Helper()
	msg, err := repo.AppendMessage(context.Background(), database.AppendMessageParams{
		RoomId: roomId,
		UserId: &userId,
		Body:   body,
		Type:   database.MessageTypeUser,
		SentAt: sentAt,
	})
	require.NoError(t, err, "append message")
	return msg
}

func TestCreateRoom(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, repo, "alice")

	room := createRoom(t, repo, alice.Id, "Tea Talk", "")
	assert.NotZero(t, room.Id)
	assert.Equal(t, 1, room.MemberCount, "expected creator to be the only member")
	assert.False(t, room.IsPrivate())

	got, err := repo.GetRoom(ctx, room.Id)
	require.NoError(t, err)
	assert.Equal(t, "Tea Talk", got.Name)
	assert.Equal(t, alice.Id, got.CreatorId)
	assert.Equal(t, 1, got.MemberCount)
	assert.Nil(t, got.LastMessageAt, "expected no last message yet")

	m, err := repo.GetMembership(ctx, room.Id, alice.Id)
	require.NoError(t, err)
	assert.True(t, baseTime.Equal(m.JoinedAt), "expected creator joined_at to be the creation time")
}

func TestCreateMembership(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, repo, "alice")
	bob := testutil.CreateUser(t, repo, "bob")
	room := createRoom(t, repo, alice.Id, "Tea Talk", "")

	first, err := repo.CreateMembership(ctx, room.Id, bob.Id, baseTime.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, 2, first.MemberCount)

	second, err := repo.CreateMembership(ctx, room.Id, bob.Id, baseTime.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, second.Created, "expected second join to be a no-op")
	assert.Equal(t, 2, second.MemberCount)
	assert.True(t, first.Membership.JoinedAt.Equal(second.Membership.JoinedAt), "expected original joined_at to be kept")

	count, err := repo.CountMembers(ctx, room.Id)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	members, err := repo.ListMembers(ctx, room.Id)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "alice", members[0].User.Username)
	assert.Equal(t, "bob", members[1].User.Username)
}

func TestDeleteMembership(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, repo, "alice")
	bob := testutil.CreateUser(t, repo, "bob")
	room := createRoom(t, repo, alice.Id, "Tea Talk", "")

	_, err := repo.CreateMembership(ctx, room.Id, bob.Id, baseTime.Add(time.Minute))
	require.NoError(t, err)

	res, err := repo.DeleteMembership(ctx, room.Id, bob.Id)
	require.NoError(t, err)
	assert.True(t, res.Removed)
	assert.Equal(t, 1, res.MemberCount)

	_, err = repo.GetMembership(ctx, room.Id, bob.Id)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	res, err = repo.DeleteMembership(ctx, room.Id, bob.Id)
	require.NoError(t, err)
	assert.False(t, res.Removed, "expected leaving twice to be a no-op")

	rejoined, err := repo.CreateMembership(ctx, room.Id, bob.Id, baseTime.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, rejoined.Created)
	assert.True(t, baseTime.Add(time.Hour).Equal(rejoined.Membership.JoinedAt), "expected re-join to set a new horizon")
}

func TestAppendMessage(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, repo, "alice")
	room := createRoom(t, repo, alice.Id, "Tea Talk", "")

	sentAt := baseTime.Add(time.Minute)
	msg := appendUserMessage(t, repo, room.Id, alice.Id, "hi", sentAt)
	assert.NotZero(t, msg.Id)
	assert.Equal(t, database.SubtypeGeneric, msg.Subtype)
	require.NotNil(t, msg.Author)
	assert.Equal(t, "alice", msg.Author.Username)

	got, err := repo.GetRoom(ctx, room.Id)
	require.NoError(t, err)
	require.NotNil(t, got.LastMessageAt)
	assert.False(t, got.LastMessageAt.Before(msg.SentAt), "expected last_message_at >= sent_at")

	page, err := repo.QueryMessages(ctx, room.Id, 0, 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, msg.Id, page[0].Id)
	assert.True(t, sentAt.Equal(page[0].SentAt))

	// an older timestamp must not move last_message_at backwards
	appendUserMessage(t, repo, room.Id, alice.Id, "late", baseTime.Add(time.Second))
	got, err = repo.GetRoom(ctx, room.Id)
	require.NoError(t, err)
	assert.True(t, sentAt.Equal(*got.LastMessageAt))
}

func TestAppendSystemMessageWithoutAuthor(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, repo, "alice")
	room := createRoom(t, repo, alice.Id, "Tea Talk", "")

	msg, err := repo.AppendMessage(ctx, database.AppendMessageParams{
		RoomId:  room.Id,
		Body:    "maintenance at noon",
		Type:    database.MessageTypeSystem,
		Subtype: database.SubtypeGeneric,
		SentAt:  baseTime,
	})
	require.NoError(t, err)
	assert.Nil(t, msg.UserId)
	assert.Nil(t, msg.Author)

	got, err := repo.GetMessage(ctx, msg.Id)
	require.NoError(t, err)
	assert.Nil(t, got.UserId)
	assert.Equal(t, database.MessageTypeSystem, got.Type)
}

func TestQueryMessages(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, repo, "alice")
	room := createRoom(t, repo, alice.Id, "Tea Talk", "")
	other := createRoom(t, repo, alice.Id, "Other", "")

	var ids []int
	for i := 0; i < 5; i++ {
		msg := appendUserMessage(t, repo, room.Id, alice.Id, "msg", baseTime.Add(time.Duration(i)*time.Second))
		ids = append(ids, msg.Id)
		appendUserMessage(t, repo, other.Id, alice.Id, "noise", baseTime)
	}

	require.NoError(t, repo.SoftDeleteMessage(ctx, ids[3], baseTime.Add(time.Hour)))

	tcases := []struct {
		name     string
		beforeId int
		limit    int
		expected []int
	}{
		{
			name:     "no cursor",
			beforeId: 0,
			limit:    10,
			expected: []int{ids[4], ids[2], ids[1], ids[0]},
		},
		{
			name:     "limited",
			beforeId: 0,
			limit:    2,
			expected: []int{ids[4], ids[2]},
		},
		{
			name:     "before cursor",
			beforeId: ids[2],
			limit:    10,
			expected: []int{ids[1], ids[0]},
		},
		{
			name:     "before first",
			beforeId: ids[0],
			limit:    10,
			expected: []int{},
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			msgs, err := repo.QueryMessages(ctx, room.Id, tc.beforeId, tc.limit)
			require.NoError(t, err)

			got := make([]int, 0, len(msgs))
			for _, m := range msgs {
				got = append(got, m.Id)
			}
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestUpdateAndDeleteMessage(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, repo, "alice")
	room := createRoom(t, repo, alice.Id, "Tea Talk", "")
	msg := appendUserMessage(t, repo, room.Id, alice.Id, "hi", baseTime)

	editedAt := baseTime.Add(time.Minute)
	edited, err := repo.UpdateMessageBody(ctx, msg.Id, "hello", editedAt)
	require.NoError(t, err)
	assert.Equal(t, "hello", edited.Body)
	require.NotNil(t, edited.EditedAt)
	assert.True(t, editedAt.Equal(*edited.EditedAt))

	require.NoError(t, repo.SoftDeleteMessage(ctx, msg.Id, baseTime.Add(time.Hour)))

	_, err = repo.GetMessage(ctx, msg.Id)
	assert.ErrorIs(t, err, sql.ErrNoRows, "expected deleted message to be hidden")

	err = repo.SoftDeleteMessage(ctx, msg.Id, baseTime.Add(2*time.Hour))
	assert.ErrorIs(t, err, sql.ErrNoRows, "expected second delete to find nothing")

	_, err = repo.UpdateMessageBody(ctx, msg.Id, "again", editedAt)
	assert.ErrorIs(t, err, sql.ErrNoRows, "expected deleted message to be immutable")
}

func TestListRooms(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, repo, "alice")
	bob := testutil.CreateUser(t, repo, "bob")

	quiet := createRoom(t, repo, alice.Id, "Quiet", "")
	busy := createRoom(t, repo, alice.Id, "Busy", "")
	private := createRoom(t, repo, bob.Id, "Private", "$2a$10$hash")
	appendUserMessage(t, repo, busy.Id, alice.Id, "hi", baseTime.Add(time.Hour))

	public, err := repo.ListPublicRooms(ctx)
	require.NoError(t, err)
	require.Len(t, public, 2)
	assert.Equal(t, busy.Id, public[0].Id, "expected most recently active room first")
	assert.Equal(t, quiet.Id, public[1].Id)

	joined, err := repo.ListJoinedRooms(ctx, bob.Id)
	require.NoError(t, err)
	require.Len(t, joined, 1)
	assert.Equal(t, private.Id, joined[0].Id)
	assert.True(t, joined[0].IsPrivate())

	require.NoError(t, repo.DeleteRoom(ctx, quiet.Id, baseTime.Add(2*time.Hour)))
	_, err = repo.GetRoom(ctx, quiet.Id)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	err = repo.DeleteRoom(ctx, quiet.Id, baseTime.Add(3*time.Hour))
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestAccounts(t *testing.T) {
	repo := testutil.NewTestRepository(t)
	ctx := context.Background()

	u, err := repo.CreateAccount(ctx, database.CreateAccountParams{
		Username:     "carol",
		DisplayName:  "Carol",
		EmailAddress: "carol@example.com",
		PasswordHash: "hash",
	})
	require.NoError(t, err)

	byId, err := repo.GetAccountById(ctx, u.Id)
	require.NoError(t, err)
	assert.Equal(t, "Carol", byId.DisplayName)
	assert.Equal(t, "hash", byId.PasswordHash)

	byEmail, err := repo.GetAccountByEmail(ctx, "carol@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.Id, byEmail.Id)

	_, err = repo.GetAccountByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	_, err = repo.CreateAccount(ctx, database.CreateAccountParams{
		Username:     "carol",
		EmailAddress: "carol2@example.com",
		PasswordHash: "hash",
	})
	assert.ErrorIs(t, err, database.ErrConflict, "duplicate username")

	_, err = repo.CreateAccount(ctx, database.CreateAccountParams{
		Username:     "caroline",
		EmailAddress: "carol@example.com",
		PasswordHash: "hash",
	})
	assert.ErrorIs(t, err, database.ErrConflict, "duplicate email")

	assert.NoError(t, repo.Ping(ctx))
}
