package utils

import (
	"encoding/binary"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rtpPacket(pt uint8, seq uint16, payload []byte) []byte {
	header := make([]byte, 12)
	header[0] = 0x80
	header[1] = pt
	binary.BigEndian.PutUint16(header[2:], seq)
	binary.BigEndian.PutUint32(header[4:], uint32(seq)*160)
	binary.BigEndian.PutUint32(header[8:], 0xCAFEBABE)
	return append(header, payload...)
}

func udpFrame(t *testing.T, payload []byte) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 6},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IP{10, 0, 0, 1},
		DstIP:    net.IP{10, 0, 0, 2},
	}
	udp := &layers.UDP{SrcPort: 10000, DstPort: 20000}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)))
	return buf.Bytes()
}

func writePCAP(t *testing.T, frames [][]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "call.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	start := time.Unix(1700000000, 0)
	for i, data := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     start.Add(time.Duration(i) * 20 * time.Millisecond),
			CaptureLength: len(data),
			Length:        len(data),
		}
		require.NoError(t, w.WritePacket(ci, data))
	}
	return path
}

func TestParseRTP(t *testing.T) {
	withPadding := rtpPacket(0, 1, []byte{1, 2, 3, 0, 2})
	withPadding[0] |= 0x20

	withExtension := append(rtpPacket(0, 1, nil), 0xBE, 0xDE, 0x00, 0x01, 9, 9, 9, 9, 7, 7)
	withExtension[0] |= 0x10

	tests := []struct {
		name    string
		data    []byte
		want    []byte
		wantErr bool
	}{
		{name: "普通包", data: rtpPacket(0, 7, []byte{0xff, 0x7f}), want: []byte{0xff, 0x7f}},
		{name: "带填充", data: withPadding, want: []byte{1, 2, 3}},
		{name: "带扩展头", data: withExtension, want: []byte{7, 7}},
		{name: "长度不足", data: []byte{0x80, 0}, wantErr: true},
		{name: "版本错误", data: append([]byte{0x40}, make([]byte, 11)...), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRTP(tt.data)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNotRTP)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Payload)
			assert.Equal(t, uint32(0xCAFEBABE), got.SSRC)
		})
	}
}

func TestPCAPReader_ReadRTP(t *testing.T) {
	path := writePCAP(t, [][]byte{
		udpFrame(t, rtpPacket(PayloadTypePCMU, 1, []byte{1, 2})),
		udpFrame(t, []byte("not rtp")),
		udpFrame(t, rtpPacket(101, 2, []byte{9})),
		udpFrame(t, rtpPacket(PayloadTypePCMU, 3, []byte{3, 4})),
	})

	reader, err := NewPCAPReader(path)
	require.NoError(t, err)
	defer reader.Close()

	packets, err := reader.ReadRTP(PayloadTypePCMU)
	require.NoError(t, err)
	require.Len(t, packets, 2)
	assert.Equal(t, uint16(1), packets[0].Sequence)
	assert.Equal(t, uint16(3), packets[1].Sequence)
	assert.True(t, packets[1].Captured.After(packets[0].Captured))

	all, err := reader.ReadRTP(-1)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	audio, err := reader.ReadAudio(PayloadTypePCMU)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, audio)
}

func TestNewPCAPReader_Errors(t *testing.T) {
	_, err := NewPCAPReader(filepath.Join(t.TempDir(), "missing.pcap"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.pcap")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))
	_, err = NewPCAPReader(path)
	assert.Error(t, err)
}
