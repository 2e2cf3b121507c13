package maintenance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"ticketchat/pkg/models"
	"ticketchat/pkg/store"
)

func TestStartValidatesCron(t *testing.T) {
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	defer st.Close()

	_, err = Start(context.Background(), st, "not a cron")
	require.Error(t, err)

	cancel, err := Start(context.Background(), st, "")
	require.NoError(t, err)
	cancel()

	cancel, err = Start(context.Background(), st, "*/5 * * * *")
	require.NoError(t, err)
	cancel()
}

func TestRunImmediate(t *testing.T) {
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.CreateConversation(&models.Conversation{
		ID:           "c1",
		ContextType:  models.ContextFree,
		Participants: []string{"a", "b"},
		Active:       true,
	}))

	// Compaction and the usage refresh must not disturb stored data.
	RunImmediate(st)
	got, err := st.GetConversation("c1")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, got.Participants)
}
