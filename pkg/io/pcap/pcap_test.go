package pcap

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func serialize(t *testing.T, l ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, l...))
	return buf.Bytes()
}

func tcpPacket(t *testing.T, payload string) []byte {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{6, 7, 8, 9, 10, 11},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version: 4, TTL: 64, Protocol: layers.IPProtocolTCP,
		SrcIP: net.IP{10, 0, 0, 1}, DstIP: net.IP{10, 0, 0, 2},
	}
	tcp := &layers.TCP{SrcPort: 40000, DstPort: 8080, SYN: true, ACK: true, Window: 1024}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	return serialize(t, eth, ip, tcp, gopacket.Payload(payload))
}

func udpPacket(t *testing.T) []byte {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{6, 7, 8, 9, 10, 11},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version: 4, TTL: 32, Protocol: layers.IPProtocolUDP,
		SrcIP: net.IP{10, 0, 0, 3}, DstIP: net.IP{10, 0, 0, 4},
	}
	udp := &layers.UDP{SrcPort: 40001, DstPort: 9999}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	return serialize(t, eth, ip, udp, gopacket.Payload("query"))
}

// capture writes packets into an in-memory pcap file 10ms apart.
func capture(t *testing.T, packets ...[]byte) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	for i, p := range packets {
		ci := gopacket.CaptureInfo{
			Timestamp:     epoch.Add(time.Duration(i) * 10 * time.Millisecond),
			CaptureLength: len(p),
			Length:        len(p),
		}
		require.NoError(t, w.WritePacket(ci, p))
	}
	return &buf
}

func TestRead(t *testing.T) {
	tcp := tcpPacket(t, "hello")
	r, err := New(capture(t, tcp, udpPacket(t)))
	require.NoError(t, err)
	defer r.Close()

	data, err := r.Read()
	require.NoError(t, err)
	require.Len(t, data, 2)

	f := data[0].Features
	require.Len(t, f, len(r.FeatureNames()))
	assert.Equal(t, float64(len(tcp)), f[0])
	assert.Equal(t, 0.0, f[1])
	assert.Equal(t, 6.0, f[2])
	assert.Equal(t, 40000.0, f[3])
	assert.Equal(t, 8080.0, f[4])
	assert.Equal(t, 3.0, f[5]) // SYN|ACK
	assert.Equal(t, 64.0, f[6])
	assert.Equal(t, 5.0, f[7])
	assert.Equal(t, 1024.0, f[8])
	assert.True(t, epoch.Equal(data[0].Time))

	u := data[1].Features
	assert.InDelta(t, 0.01, u[1], 1e-9)
	assert.Equal(t, 17.0, u[2])
	assert.Equal(t, 9999.0, u[4])
	assert.Equal(t, 5.0, u[7])
	assert.Equal(t, 32.0, u[6])
	assert.Equal(t, 0.0, u[8])
	assert.False(t, data[1].Labeled)
}

func TestStream(t *testing.T) {
	r, err := New(capture(t, tcpPacket(t, "a"), tcpPacket(t, "bb"), udpPacket(t)))
	require.NoError(t, err)

	ch, err := r.Stream(context.Background())
	require.NoError(t, err)

	var n int
	for range ch {
		n++
	}
	assert.Equal(t, 3, n)
	assert.False(t, r.Live())
}

func TestNewRejectsGarbage(t *testing.T) {
	_, err := New(bytes.NewReader([]byte("definitely not pcap")))
	assert.Error(t, err)

	_, err = NewFileReader("/nonexistent/capture.pcap")
	assert.Error(t, err)
}

func TestEncodeTCPFlags(t *testing.T) {
	assert.Equal(t, 0.0, encodeTCPFlags(&layers.TCP{}))
	assert.Equal(t, 1.0, encodeTCPFlags(&layers.TCP{SYN: true}))
	assert.Equal(t, 63.0, encodeTCPFlags(&layers.TCP{SYN: true, ACK: true, FIN: true, RST: true, PSH: true, URG: true}))
}
