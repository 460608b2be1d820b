package protocol

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeResponse(t *testing.T) {
	t.Run("error envelope", func(t *testing.T) {
		require := require.New(t)

		resp, err := DecodeResponse([]byte(`{"type":"error","call_id":"1:a","error":"busy","errorCode":4001,"errorHandling":"retry"}`))
		require.NoError(err)
		require.True(resp.IsError())
		require.False(resp.IsIntentPush())
		require.Equal("1:a", resp.CallID)
		require.Equal("busy", resp.Error)
		require.Equal(4001, resp.ErrorCode)
		require.Equal(HandlingRetry, resp.ErrorHandling)
	})

	t.Run("intent push", func(t *testing.T) {
		require := require.New(t)

		resp, err := DecodeResponse([]byte(` {"type":"server_intent_receive","intent":"chat","text":"hi"}`))
		require.NoError(err)
		require.True(resp.IsIntentPush())
		require.Equal("chat", resp.Intent)

		var body struct {
			Text string `json:"text"`
		}
		require.NoError(resp.Decode(&body))
		require.Equal("hi", body.Text)
		require.True(strings.HasPrefix(string(resp.Raw()), "{"))
	})

	t.Run("typed bodies", func(t *testing.T) {
		require := require.New(t)

		resp, err := DecodeResponse([]byte(`{"type":"server_hello","call_id":"1:a","keepalive":5}`))
		require.NoError(err)
		var hello HelloResponse
		require.NoError(resp.Decode(&hello))
		require.InDelta(5.0, hello.Keepalive, 0)

		resp, err = DecodeResponse([]byte(`{"type":"server_auth","call_id":"1:b","email":"a@b.c","token":"t","permissions":["x"]}`))
		require.NoError(err)
		var auth AuthResponse
		require.NoError(resp.Decode(&auth))
		ac := auth.AuthContext()
		require.Equal("a@b.c", ac.AuthEmail)
		require.Equal("t", ac.AuthToken)
		require.JSONEq(`["x"]`, string(ac.Permissions))

		resp, err = DecodeResponse([]byte(`{"type":"server_intents","call_id":"1:c","denied_intents":["chat"]}`))
		require.NoError(err)
		var intents IntentsResponse
		require.NoError(resp.Decode(&intents))
		require.Equal([]string{"chat"}, intents.DeniedIntents)
	})

	t.Run("invalid frames", func(t *testing.T) {
		require := require.New(t)

		for _, frame := range []string{"", "  ", "[1,2]", "null", `{"type":`} {
			_, err := DecodeResponse([]byte(frame))
			require.ErrorIs(err, ErrInvalidResponse, frame)
		}

		require.ErrorIs((&Response{}).Decode(&struct{}{}), ErrInvalidResponse)
	})
}

func TestErrorHandling(t *testing.T) {
	require := require.New(t)

	require.True(HandlingRetry.IsKnown())
	require.True(HandlingAttemptVersion.IsKnown())
	require.False(ErrorHandling("panic").IsKnown())
	require.Equal(HandlingFatal, HandlingAttemptVersion.Effective())
	require.Equal(HandlingReconnect, HandlingReconnect.Effective())
}

func TestServerError(t *testing.T) {
	require := require.New(t)

	resp := &Response{Type: TypeError, Error: "busy", ErrorCode: 1001, ErrorHandling: HandlingRetry}
	serr := NewServerError(CallSubmessage, resp)
	require.Equal("client_submessage: server error 1001 (retry): busy", serr.Error())
	require.NotErrorIs(serr, ErrRetriesExhausted)

	serr.Exhausted = true
	var err error = serr
	require.ErrorIs(err, ErrRetriesExhausted)
	require.Contains(err.Error(), "too many retry attempts")

	var target *ServerError
	require.True(errors.As(err, &target))
	require.Equal(1001, target.Code)
}

func TestGenerateCallID(t *testing.T) {
	require := require.New(t)

	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := GenerateCallID()
		parts := strings.SplitN(id, ":", 2)
		require.Len(parts, 2)
		require.NotEmpty(parts[0])
		require.Len(parts[1], 16)

		_, dup := seen[id]
		require.False(dup, id)
		seen[id] = struct{}{}
	}
}
