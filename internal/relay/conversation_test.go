package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationKeyIsCommutative(t *testing.T) {
	ab, err := ConversationKey("alice", "bob")
	require.NoError(t, err)
	ba, err := ConversationKey("bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, ab, ba)
}

func TestConversationKeyDistinguishesPairs(t *testing.T) {
	ab, err := ConversationKey("a", "b")
	require.NoError(t, err)
	ac, err := ConversationKey("a", "c")
	require.NoError(t, err)
	assert.NotEqual(t, ab, ac)
}

func TestConversationKeyRejectsDegenerateInput(t *testing.T) {
	for _, pair := range [][2]string{{"a", "a"}, {"", "b"}, {"a", ""}, {"", ""}} {
		_, err := ConversationKey(pair[0], pair[1])
		assert.ErrorIs(t, err, ErrInvalidConversation, "pair %v", pair)
	}
}
