package arbor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGreater_TimestampDominates(t *testing.T) {
	older := Operation{PeerID: "z", Timestamp: 1}
	newer := Operation{PeerID: "a", Timestamp: 2}
	assert.True(t, greater(newer, older))
	assert.False(t, greater(older, newer))
}

func TestGreater_TieBrokenByPeerID(t *testing.T) {
	a := Operation{PeerID: "A", Timestamp: 10}
	b := Operation{PeerID: "B", Timestamp: 10}
	assert.True(t, greater(b, a), "B > A lexicographically should win the tie")
	assert.False(t, greater(a, b))
}

func TestOrigin_String(t *testing.T) {
	assert.Equal(t, "local", OriginLocal.String())
	assert.Equal(t, "remote", OriginRemote.String())
}
