package cluster

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgtv-tech/redis-ferry/pkg/errors"
)

const threeMasters = `07c37dfeb235213a872192d90877d0cd55635b91 127.0.0.1:30001@40001 myself,master - 0 1426238317239 1 connected 0-5460
e7d1eecce10fd6bb5eb35b9f99a514335d9ba9ca 127.0.0.1:30002@40002 master - 0 1426238316232 2 connected 5461-10922
824fe116063bc5fcf9f4ffd895bc17aee7731ac3 127.0.0.1:30003@40003 master - 0 1426238318243 3 connected 10923-16383
6ec23923021cf3ffec47632106199cb7f496ce01 127.0.0.1:30004@40004 slave 07c37dfeb235213a872192d90877d0cd55635b91 0 1426238317741 4 connected
vars currentEpoch 6 lastVoteEpoch 0
`

func TestParseNodes(t *testing.T) {
	nodes, err := ParseNodes(strings.NewReader(threeMasters), true)
	require.Nil(t, err)
	require.Len(t, nodes, 4)

	assert.True(t, nodes[0].Master)
	assert.True(t, nodes[0].Self)
	assert.Equal(t, "127.0.0.1:30001", nodes[0].Addr())
	assert.Equal(t, []SlotRange{{0, 5460}}, nodes[0].Ranges)

	assert.False(t, nodes[3].Master)
	assert.Empty(t, nodes[3].Ranges)
}

func TestParseNodesSingleSlot(t *testing.T) {
	line := "e7d1eecce10fd6bb5eb35b9f99a514335d9ba9ca 10.0.0.2:7000@17000 master - 0 0 2 connected 42 100-200\n"
	nodes, err := ParseNodes(strings.NewReader(line), true)
	require.Nil(t, err)
	assert.Equal(t, []SlotRange{{42, 42}, {100, 200}}, nodes[0].Ranges)
}

func TestParseNodesMigrating(t *testing.T) {
	line := "e7d1eecce10fd6bb5eb35b9f99a514335d9ba9ca 10.0.0.2:7000@17000 master - 0 0 2 connected 0-16383 [77->-07c37dfeb235213a872192d90877d0cd55635b91]\n"

	_, err := ParseNodes(strings.NewReader(line), true)
	assert.True(t, errors.Is(err, errors.ErrConfig))

	// non-strict mode skips the unstable marker
	nodes, err := ParseNodes(strings.NewReader(line), false)
	require.Nil(t, err)
	assert.Equal(t, []SlotRange{{0, 16383}}, nodes[0].Ranges)
}

func TestBuildSlotMap(t *testing.T) {
	nodes, err := ParseNodes(strings.NewReader(threeMasters), true)
	require.Nil(t, err)
	m, err := BuildSlotMap(nodes)
	require.Nil(t, err)

	require.Len(t, m.Masters(), 3)
	assert.Equal(t, "127.0.0.1:30001", m.Masters()[0].Addr())

	// foo -> 12182 -> third master
	assert.Equal(t, "127.0.0.1:30003", m.Owner([]byte("foo")).Addr())
	// keys sharing a hash tag land on the same owner
	assert.Equal(t, m.Owner([]byte("{u}:a")), m.Owner([]byte("{u}:b")))
	assert.Equal(t, m.OwnerOfSlot(0).Addr(), "127.0.0.1:30001")
	assert.Equal(t, m.OwnerOfSlot(5461).Addr(), "127.0.0.1:30002")
}

func TestBuildSlotMapGap(t *testing.T) {
	desc := `a 127.0.0.1:30001@40001 master - 0 0 1 connected 0-5460
b 127.0.0.1:30002@40002 master - 0 0 2 connected 5461-10922
`
	nodes, err := ParseNodes(strings.NewReader(desc), true)
	require.Nil(t, err)
	_, err = BuildSlotMap(nodes)
	assert.True(t, errors.Is(err, errors.ErrConfig))
}

func TestBuildSlotMapOverlap(t *testing.T) {
	desc := `a 127.0.0.1:30001@40001 master - 0 0 1 connected 0-8191
b 127.0.0.1:30002@40002 master - 0 0 2 connected 8191-16383
`
	nodes, err := ParseNodes(strings.NewReader(desc), true)
	require.Nil(t, err)
	_, err = BuildSlotMap(nodes)
	assert.True(t, errors.Is(err, errors.ErrConfig))
}
