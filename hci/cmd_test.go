package hci

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpcodeSplit(t *testing.T) {
	cases := []struct {
		op  Opcode
		ogf uint8
		ocf uint16
	}{
		{op: OpReset, ogf: 0x03, ocf: 0x0003},
		{op: OpDisconnect, ogf: 0x01, ocf: 0x0006},
		{op: OpReadBDAddr, ogf: 0x04, ocf: 0x0009},
		{op: OpLECreateConnection, ogf: 0x08, ocf: 0x000D},
	}
	for _, tt := range cases {
		assert.Equal(t, tt.ogf, tt.op.OGF())
		assert.Equal(t, tt.ocf, tt.op.OCF())
	}
}

func TestMarshalCommand(t *testing.T) {
	cases := []struct {
		cmd  Command
		want []byte
	}{
		{
			cmd:  Reset{},
			want: []byte{0x03, 0x0C, 0x00},
		},
		{
			cmd:  Disconnect{ConnectionHandle: 0x0040, Reason: 0x13},
			want: []byte{0x06, 0x04, 0x03, 0x40, 0x00, 0x13},
		},
		{
			cmd:  WriteSimplePairingMode{SimplePairingMode: 1},
			want: []byte{0x56, 0x0C, 0x01, 0x01},
		},
		{
			cmd:  SetEventMask{EventMask: 0x3dbff807fffbffff},
			want: []byte{0x01, 0x0C, 0x08, 0xff, 0xff, 0xfb, 0xff, 0x07, 0xf8, 0xbf, 0x3d},
		},
		{
			cmd: CreateConnectionCancel{
				BDAddr: Address{0x11, 0x22, 0x33, 0x44, 0x55, 0x66},
			},
			want: []byte{0x08, 0x04, 0x06, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11},
		},
	}
	for _, tt := range cases {
		assert.Equal(t, tt.want, MarshalCommand(tt.cmd), "%s", tt.cmd.Opcode())
	}
}

func TestReadBufferSizeRPUnmarshal(t *testing.T) {
	var rp ReadBufferSizeRP
	require.NoError(t, rp.Unmarshal([]byte{0x00, 0x1B, 0x00, 0x40, 0x08, 0x00, 0x0A, 0x00}))
	assert.Equal(t, uint8(0x00), rp.Status)
	assert.Equal(t, uint16(27), rp.ACLDataPacketLength)
	assert.Equal(t, uint8(0x40), rp.SCODataPacketLength)
	assert.Equal(t, uint16(8), rp.TotalNumACLDataPackets)
	assert.Equal(t, uint16(10), rp.TotalNumSCODataPackets)

	assert.Error(t, rp.Unmarshal([]byte{0x00, 0x1B}))
}

func TestReadBDAddrRPUnmarshal(t *testing.T) {
	var rp ReadBDAddrRP
	require.NoError(t, rp.Unmarshal([]byte{0x00, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11}))
	assert.Equal(t, Address{0x11, 0x22, 0x33, 0x44, 0x55, 0x66}, rp.BDAddr)
	assert.Equal(t, "11:22:33:44:55:66", rp.BDAddr.String())
}

func TestLEReadBufferSizeRPUnmarshal(t *testing.T) {
	var rp LEReadBufferSizeRP
	require.NoError(t, rp.Unmarshal([]byte{0x00, 0xFB, 0x00, 0x05}))
	assert.Equal(t, uint16(251), rp.LEACLDataPacketLength)
	assert.Equal(t, uint8(5), rp.TotalNumLEACLDataPackets)
}

func TestEventViewSplit(t *testing.T) {
	ev, err := splitEvent([]byte{0x13, 0x05, 0x01, 0x40, 0x00, 0x02, 0x00})
	require.NoError(t, err)
	assert.Equal(t, EventNumberOfCompletedPackets, ev.Code)
	assert.Len(t, ev.Params, 5)

	_, err = splitEvent([]byte{0x13, 0x06, 0x01})
	assert.Error(t, err)
}

func TestNumberOfCompletedPacketsViewUnmarshal(t *testing.T) {
	var v NumberOfCompletedPacketsView
	require.NoError(t, v.Unmarshal([]byte{
		0x02,
		0x40, 0x00, 0x03, 0x00,
		0x41, 0x10, 0x01, 0x00, // upper handle bits masked off
	}))
	require.Len(t, v.Packets, 2)
	assert.Equal(t, uint16(0x0040), v.Packets[0].ConnectionHandle)
	assert.Equal(t, uint16(3), v.Packets[0].NumCompleted)
	assert.Equal(t, uint16(0x0041), v.Packets[1].ConnectionHandle)
	assert.Equal(t, uint16(1), v.Packets[1].NumCompleted)

	assert.Error(t, v.Unmarshal([]byte{0x02, 0x40, 0x00}))
}

func TestCommandCompleteViewUnmarshal(t *testing.T) {
	var v CommandCompleteView
	require.NoError(t, v.Unmarshal([]byte{0x01, 0x03, 0x0C, 0x00}))
	assert.Equal(t, uint8(1), v.NumHCICommandPackets)
	assert.Equal(t, OpReset, v.CommandOpcode)
	assert.Equal(t, []byte{0x00}, v.ReturnParameters)
}

func TestLEConnectionCompleteViewUnmarshal(t *testing.T) {
	var v LEConnectionCompleteView
	require.NoError(t, v.Unmarshal([]byte{
		0x01,       // subevent
		0x00,       // status
		0x48, 0x00, // handle
		0x01,                               // role
		0x00,                               // peer address type
		0x66, 0x55, 0x44, 0x33, 0x22, 0x11, // peer address
		0x18, 0x00, // interval
		0x00, 0x00, // latency
		0xF4, 0x01, // supervision timeout
		0x00, // clock accuracy
	}))
	assert.Equal(t, uint16(0x0048), v.ConnectionHandle)
	assert.Equal(t, Address{0x11, 0x22, 0x33, 0x44, 0x55, 0x66}, v.PeerAddress)
	assert.Equal(t, uint16(0x01f4), v.SupervisionTimeout)
}
