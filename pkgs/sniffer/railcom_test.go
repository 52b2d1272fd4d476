package sniffer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUpdateCRCStreamMatchesWireChecksum(t *testing.T) {
	payload := []byte{0x12, 0x34}
	crc := updateCRCStream(payload)

	var got byte
	for _, b := range payload {
		got = updateCRC(got, b)
	}
	require.Equal(t, got, crc)
}

func TestRailComDecoderReportsNoAnswerWhenNeverLocked(t *testing.T) {
	var reply DecoderReply
	d := &RailComDecoder{OnReply: func(r DecoderReply) { reply = r }}
	d.PushEdge(0)
	d.PushEdge(190)
	d.Finish()
	require.Equal(t, ReplyNoAnswer, reply.MessageType)
}
