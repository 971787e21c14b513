package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clanforge/realtime/internal/frame"
)

func TestStore_LocalLifecycle(t *testing.T) {
	st := NewStore()

	st.AppendLocal("cm1", "u1", "hello", 100)

	m, ok := st.GetByClientID("cm1")
	require.True(t, ok)
	assert.Equal(t, StateSending, m.State)
	assert.Empty(t, m.ID)

	st.Ack("cm1", "srv-1", 150)

	m, ok = st.Get("srv-1")
	require.True(t, ok)
	assert.Equal(t, StateDelivered, m.State)
	assert.Equal(t, int64(150), m.Timestamp)
	assert.Equal(t, "cm1", m.ClientID)
}

func TestStore_AckForUnknownClientIDIsNoop(t *testing.T) {
	st := NewStore()
	st.Ack("missing", "srv-1", 100)
	assert.Equal(t, 0, st.Len())
}

func TestStore_ExpireThenLateAck(t *testing.T) {
	st := NewStore()
	st.AppendLocal("cm1", "u1", "hello", 100)

	st.Expire("cm1")
	m, _ := st.GetByClientID("cm1")
	assert.Equal(t, StateExpired, m.State)

	st.Ack("cm1", "srv-1", 160)
	m, _ = st.Get("srv-1")
	assert.Equal(t, StateDelivered, m.State)
}

func TestStore_EchoBeforeAckCollapsesToOneEntry(t *testing.T) {
	st := NewStore()
	st.AppendLocal("cm1", "u1", "hello", 100)

	// The server broadcasts our own message back to the room before the
	// ack arrives.
	st.Upsert(frame.Message{ID: "srv-1", UserID: "u1", Content: "hello", Timestamp: 105})
	st.Ack("cm1", "srv-1", 105)

	assert.Equal(t, 1, st.Len(), "echo and ack describe one message")

	msgs := st.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "srv-1", msgs[0].ID)
	assert.Equal(t, "cm1", msgs[0].ClientID)
	assert.Equal(t, StateDelivered, msgs[0].State)
	assert.Equal(t, int64(105), msgs[0].Timestamp)

	m, ok := st.GetByClientID("cm1")
	require.True(t, ok)
	assert.Equal(t, "srv-1", m.ID)
}

func TestStore_EchoBeforeAckKeepsReceipts(t *testing.T) {
	st := NewStore()
	st.AppendLocal("cm1", "u1", "hello", 100)

	// Echo arrives first and picks up a read receipt, then the ack lands.
	st.Upsert(frame.Message{ID: "srv-1", UserID: "u1", Content: "hello", Timestamp: 105})
	st.MarkRead("srv-1", "u2")
	st.Tombstone("srv-1")
	st.Ack("cm1", "srv-1", 105)

	assert.Equal(t, 1, st.Len())
	m, ok := st.Get("srv-1")
	require.True(t, ok)
	assert.Equal(t, StateRead, m.State)
	assert.Equal(t, []string{"u2"}, m.ReadBy)
	assert.True(t, m.Deleted)
	assert.Equal(t, "cm1", m.ClientID)
}

func TestStore_ExpireDoesNotDowngradeDelivered(t *testing.T) {
	st := NewStore()
	st.AppendLocal("cm1", "u1", "hello", 100)
	st.Ack("cm1", "srv-1", 150)

	st.Expire("cm1")

	m, _ := st.Get("srv-1")
	assert.Equal(t, StateDelivered, m.State)
}

func TestStore_UpsertDeduplicatesByServerID(t *testing.T) {
	st := NewStore()

	st.Upsert(frame.Message{ID: "srv-1", UserID: "u2", Content: "a", Timestamp: 100})
	st.Upsert(frame.Message{ID: "srv-1", UserID: "u2", Content: "a (edited)", Timestamp: 120})

	assert.Equal(t, 1, st.Len())
	m, _ := st.Get("srv-1")
	assert.Equal(t, "a (edited)", m.Content)
	assert.Equal(t, int64(120), m.Timestamp)
}

func TestStore_ReceiptsBeforeMessage(t *testing.T) {
	st := NewStore()

	// Receipts race ahead of the message across a reconnect.
	st.ConfirmDelivery("srv-1")
	st.MarkRead("srv-1", "u3")
	st.MarkRead("srv-1", "u4")
	st.Tombstone("srv-1")

	st.Upsert(frame.Message{ID: "srv-1", UserID: "u2", Content: "late", Timestamp: 100})

	m, ok := st.Get("srv-1")
	require.True(t, ok)
	assert.Equal(t, StateRead, m.State)
	assert.ElementsMatch(t, []string{"u3", "u4"}, m.ReadBy)
	assert.True(t, m.Deleted)
}

func TestStore_ReadBeforeAck(t *testing.T) {
	st := NewStore()
	st.AppendLocal("cm1", "u1", "hello", 100)

	// The read receipt for our own message arrives before its ack.
	st.MarkRead("srv-1", "u2")
	st.Ack("cm1", "srv-1", 150)

	m, _ := st.Get("srv-1")
	assert.Equal(t, StateRead, m.State)
	assert.Equal(t, []string{"u2"}, m.ReadBy)
}

func TestStore_MarkReadCollapsesDuplicates(t *testing.T) {
	st := NewStore()
	st.Upsert(frame.Message{ID: "srv-1", UserID: "u2", Content: "a", Timestamp: 100})

	st.MarkRead("srv-1", "u3")
	st.MarkRead("srv-1", "u3")

	m, _ := st.Get("srv-1")
	assert.Equal(t, []string{"u3"}, m.ReadBy)
}

func TestStore_MessagesSortedByTimestamp(t *testing.T) {
	st := NewStore()

	// Arrival order deliberately scrambled; consumers sort by server
	// timestamp when reconstructing the conversation.
	st.Upsert(frame.Message{ID: "srv-2", UserID: "u2", Content: "b", Timestamp: 200})
	st.AppendLocal("cm1", "u1", "d", 400)
	st.Upsert(frame.Message{ID: "srv-1", UserID: "u2", Content: "a", Timestamp: 100})
	st.Upsert(frame.Message{ID: "srv-3", UserID: "u2", Content: "c", Timestamp: 300})

	var contents []string
	for _, m := range st.Messages() {
		contents = append(contents, m.Content)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, contents)
}

func TestStore_SnapshotsAreIsolated(t *testing.T) {
	st := NewStore()
	st.Upsert(frame.Message{ID: "srv-1", UserID: "u2", Content: "a", Timestamp: 100})
	st.MarkRead("srv-1", "u3")

	m, _ := st.Get("srv-1")
	m.ReadBy[0] = "mutated"

	fresh, _ := st.Get("srv-1")
	assert.Equal(t, []string{"u3"}, fresh.ReadBy)
}
