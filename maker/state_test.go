package maker

import (
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"
)

func TestStoreGetOrInitCreatesZeroValue(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewTestClock(now)
	s := NewStore(clk)

	var seen ExpectedMessage
	s.GetOrInit("1.2.3.4", func(cs *ConnectionState) {
		seen = cs.ExpectedNextMessage
		require.Equal(t, now, cs.LastSeen)
		require.False(t, cs.hasPairedSwapcoin())
	})

	require.Equal(t, ExpectTakerHello, seen)
	require.Equal(t, 1, s.Len())
}

func TestStoreGetOrInitReusesExistingEntry(t *testing.T) {
	clk := clock.NewTestClock(time.Now())
	s := NewStore(clk)

	s.GetOrInit("1.2.3.4", func(cs *ConnectionState) {
		cs.ExpectedNextMessage = ExpectProofOfFunding
		cs.SwapID = 42
	})
	s.GetOrInit("1.2.3.4", func(cs *ConnectionState) {
		require.Equal(t, ExpectProofOfFunding, cs.ExpectedNextMessage)
		require.Equal(t, uint64(42), cs.SwapID)
	})

	require.Equal(t, 1, s.Len())
}

func TestStoreIterMutVisitsEveryPeer(t *testing.T) {
	clk := clock.NewTestClock(time.Now())
	s := NewStore(clk)

	s.GetOrInit("1.1.1.1", func(*ConnectionState) {})
	s.GetOrInit("2.2.2.2", func(*ConnectionState) {})
	s.GetOrInit("3.3.3.3", func(*ConnectionState) {})

	visited := make(map[string]bool)
	s.IterMut(func(ip string, _ *ConnectionState) {
		visited[ip] = true
	})

	require.Len(t, visited, 3)
	require.True(t, visited["1.1.1.1"])
	require.True(t, visited["2.2.2.2"])
	require.True(t, visited["3.3.3.3"])
}

func TestStoreRemove(t *testing.T) {
	clk := clock.NewTestClock(time.Now())
	s := NewStore(clk)

	s.GetOrInit("1.2.3.4", func(*ConnectionState) {})
	require.Equal(t, 1, s.Len())

	s.Remove("1.2.3.4")
	require.Equal(t, 0, s.Len())

	// Removing an absent entry is a no-op, not an error.
	s.Remove("1.2.3.4")
	require.Equal(t, 0, s.Len())
}

func TestStoreLenOnEmptyStore(t *testing.T) {
	s := NewStore(clock.NewTestClock(time.Now()))
	require.Equal(t, 0, s.Len())

	ran := false
	s.IterMut(func(string, *ConnectionState) {
		ran = true
	})
	require.False(t, ran)
}

func TestHasPairedSwapcoin(t *testing.T) {
	cs := &ConnectionState{}
	require.False(t, cs.hasPairedSwapcoin())

	cs.OutgoingSwapcoins = []*OutgoingSwapCoin{{}}
	require.True(t, cs.hasPairedSwapcoin())

	cs2 := &ConnectionState{IncomingSwapcoins: []*IncomingSwapCoin{{}}}
	require.True(t, cs2.hasPairedSwapcoin())
}

func TestExpectedMessageString(t *testing.T) {
	require.Equal(t, "TakerHello", ExpectTakerHello.String())
	require.Equal(t, "PrivateKeyHandover", ExpectPrivateKeyHandover.String())
	require.Equal(t, "Unknown", ExpectedMessage(255).String())
}
