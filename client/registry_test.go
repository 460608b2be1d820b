package client

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-charws/protocol"
)

func TestCallRegistry(t *testing.T) {
	require := require.New(t)

	r := newCallRegistry()

	call, err := r.register("1:a", protocol.CallSubmessage)
	require.NoError(err)
	require.Equal(protocol.CallSubmessage, call.callType)

	_, err = r.register("1:a", protocol.CallHello)
	require.ErrorIs(err, protocol.ErrDuplicateCallID)
	require.Equal(1, r.len())

	require.False(r.resolve(&protocol.Response{CallID: "unknown"}))

	resp := &protocol.Response{Type: "server_submessage", CallID: "1:a"}
	require.True(r.resolve(resp))
	require.False(r.resolve(resp))
	require.Zero(r.len())

	res := <-call.result
	require.NoError(res.err)
	require.Same(resp, res.resp)

	_, err = r.register("1:a", protocol.CallHello)
	require.NoError(err)
	r.remove("1:a")
	require.Zero(r.len())
}

func TestCallRegistry_FailAll(t *testing.T) {
	require := require.New(t)

	r := newCallRegistry()
	calls := make([]*pendingCall, 0, 3)
	for _, id := range []string{"1:a", "1:b", "1:c"} {
		call, err := r.register(id, protocol.CallIntentSend)
		require.NoError(err)
		calls = append(calls, call)
	}

	require.Equal(3, r.failAll(protocol.ErrConnClosed))
	require.Zero(r.len())
	require.Zero(r.failAll(protocol.ErrConnClosed))

	for _, call := range calls {
		res := <-call.result
		require.ErrorIs(res.err, protocol.ErrConnClosed)
		require.Nil(res.resp)
	}
}

func TestCallRegistry_ResolveRace(t *testing.T) {
	require := require.New(t)

	r := newCallRegistry()
	call, err := r.register("1:a", protocol.CallSubmessage)
	require.NoError(err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	delivered := 0
	for range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if r.resolve(&protocol.Response{CallID: "1:a"}) {
				mu.Lock()
				delivered++
				mu.Unlock()
			}
		}()
		go func() {
			defer wg.Done()
			if r.failAll(protocol.ErrConnClosed) > 0 {
				mu.Lock()
				delivered++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(1, delivered)
	require.Len(call.result, 1)
}
