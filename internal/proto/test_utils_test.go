package proto

import (
	"encoding/hex"
	"fmt"
	"strings"
	"testing"

	"github.com/heyvito/pathtrace/internal/fsm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hex2Bytes(data string) []byte {
	data = strings.ReplaceAll(data, "\n", "")
	data = strings.ReplaceAll(data, " ", "")
	value, err := hex.DecodeString(data)
	if err != nil {
		panic(fmt.Sprintf("Failed reading hex data: %s", err))
	}

	return value
}

func mustParsePacket(t *testing.T, data []byte) *Packet {
	t.Helper()
	dec := PacketDecoder.New()
	idx := 0
	var pkt *Packet
	var err error
	for i, v := range data {
		idx = i
		pkt, err = dec.Feed(v)
		require.NoError(t, err)
		if pkt != nil {
			break
		}
	}

	if idx != len(data)-1 {
		t.Fatalf("Short read reading packet. Read %d of %d bytes.", idx+1, len(data))
	}

	if pkt == nil {
		t.Fatalf("Decode yielded no packet")
	}

	return pkt
}

func assertHeader(t *testing.T, pkt *Packet, code OpCode, sender NodeID) {
	t.Helper()
	assert.Equal(t, protocolMagic, pkt.Header.Magic)
	assert.Equal(t, uint8(1), pkt.Header.Version)
	assert.Equal(t, code, pkt.Header.OpCode)
	assert.Equal(t, sender, pkt.Sender())
}

func encodeEncoder(enc Encoder) []byte {
	buf := make([]byte, enc.RequiredSize())
	enc.Encode(buf)
	return buf
}

func decodeInto[T any, S ~uint8, C any](t *testing.T, decoder fsm.Def[T, S, C], data []byte) *T {
	t.Helper()
	dec := decoder.New()
	idx := 0
	var r *T
	var err error
	for i, v := range data {
		idx = i
		r, err = dec.Feed(v)
		require.NoError(t, err)
		if r != nil {
			break
		}
	}

	if idx != len(data)-1 {
		t.Fatalf("Short read: Expected %d bytes to be consumed, but only %d were", len(data), idx+1)
	}

	if r == nil {
		t.Fatal("Unexpected EOF. All bytes were consumed, but no output was received.")
	}

	return r
}
