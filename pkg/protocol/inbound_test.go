package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInboundResponse(t *testing.T) {
	in, err := DecodeInbound([]byte(`{"txn":"aabbccdd","payload":{"token":"tok-1"}}`))
	require.NoError(t, err)
	require.NotNil(t, in.Response)
	assert.Nil(t, in.Event)

	assert.Equal(t, "aabbccdd", in.Response.Txn)
	assert.Nil(t, in.Response.Error)

	var reg RegisterPayload
	require.NoError(t, in.Response.DecodePayload(&reg))
	assert.Equal(t, "tok-1", reg.Token)
}

func TestDecodeInboundErrorCodes(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		code  int
		text  string
		isErr bool
	}{
		{name: "numeric code", frame: `{"txn":"11223344","error":16391}`, code: 0x4007, isErr: true},
		{name: "hex string", frame: `{"txn":"11223344","error":"0x4007"}`, code: 0x4007, isErr: true},
		{name: "free text", frame: `{"txn":"11223344","error":"no such key"}`, text: "no such key", isErr: true},
		{name: "null", frame: `{"txn":"11223344","error":null}`},
		{name: "zero", frame: `{"txn":"11223344","error":0}`},
		{name: "false", frame: `{"txn":"11223344","error":false}`},
		{name: "empty string", frame: `{"txn":"11223344","error":""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := DecodeInbound([]byte(tt.frame))
			require.NoError(t, err)
			require.NotNil(t, in.Response)

			if !tt.isErr {
				assert.Nil(t, in.Response.Error)
				return
			}
			require.NotNil(t, in.Response.Error)
			assert.Equal(t, tt.code, in.Response.Error.Code)
			assert.Equal(t, tt.text, in.Response.Error.Text)
			assert.Equal(t, "11223344", in.Response.Error.Txn)
		})
	}
}

func TestDecodeInboundErrorWithMessage(t *testing.T) {
	in, err := DecodeInbound([]byte(`{"txn":"11223344","error":16391,"msg":"peer offline"}`))
	require.NoError(t, err)

	rerr := in.Response.Error
	require.NotNil(t, rerr)
	assert.True(t, rerr.IsPeerUnreachable())
	assert.Equal(t, "peer offline", rerr.Msg)
	assert.Equal(t, "remote error 0x4007 (peer unreachable): peer offline", rerr.Error())
}

func TestDecodeInboundPeerEvent(t *testing.T) {
	frames := []string{
		`{"type":"PEERMSG","data":"abc"}`,
		`{"txn":null,"type":"PEERMSG"}`,
		`{"txn":"","type":"PEERMSG"}`,
		`{}`,
	}

	for _, frame := range frames {
		in, err := DecodeInbound([]byte(frame))
		require.NoError(t, err, frame)
		require.NotNil(t, in.Event, frame)
		assert.Nil(t, in.Response, frame)
		assert.JSONEq(t, frame, string(in.Event.Raw))
	}
}

func TestDecodeInboundRejectsUnknownShapes(t *testing.T) {
	frames := []string{
		`not json`,
		`[1,2,3]`,
		`"txn"`,
		`null`,
		`{"txn":42}`,
		`{"txn":{"id":"a"}}`,
	}

	for _, frame := range frames {
		_, err := DecodeInbound([]byte(frame))
		var perr *ProtocolError
		assert.ErrorAs(t, err, &perr, frame)
	}
}

func TestPeerEventDecode(t *testing.T) {
	in, err := DecodeInbound([]byte(`{"type":"PEERMSG","sender":"abcd"}`))
	require.NoError(t, err)

	var msg struct {
		Type   string `json:"type"`
		Sender string `json:"sender"`
	}
	require.NoError(t, in.Event.Decode(&msg))
	assert.Equal(t, "PEERMSG", msg.Type)
	assert.Equal(t, "abcd", msg.Sender)
}

func TestResponseWithoutPayload(t *testing.T) {
	in, err := DecodeInbound([]byte(`{"txn":"01"}`))
	require.NoError(t, err)

	var v json.RawMessage
	assert.Error(t, in.Response.DecodePayload(&v))
}
