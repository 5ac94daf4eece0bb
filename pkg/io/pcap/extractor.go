package pcap

import (
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	aio "github.com/hed1ad/autosad/pkg/io"
)

// Protocol numbers used as the protocol feature.
const (
	protoICMP   = 1
	protoTCP    = 6
	protoUDP    = 17
	protoICMPv6 = 58
)

var featureNames = []string{
	"packet_size",
	"inter_arrival_time",
	"protocol",
	"src_port",
	"dst_port",
	"tcp_flags",
	"ttl",
	"payload_size",
	"tcp_window",
}

// Extractor converts packets into fixed-length feature vectors. It keeps
// the previous timestamp to derive inter-arrival times, so one Extractor
// serves one ordered packet stream.
type Extractor struct {
	lastTimestamp time.Time
}

// NewExtractor creates a packet feature extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Sample extracts the features of packet together with its capture time.
func (e *Extractor) Sample(packet gopacket.Packet) aio.Sample {
	s := aio.Sample{Features: e.Extract(packet)}
	if md := packet.Metadata(); md != nil {
		s.Time = md.Timestamp
	}
	return s
}

// Extract converts a packet to a feature vector laid out as FeatureNames.
func (e *Extractor) Extract(packet gopacket.Packet) []float64 {
	features := make([]float64, len(featureNames))

	features[0] = float64(len(packet.Data()))

	if md := packet.Metadata(); md != nil && !md.Timestamp.IsZero() {
		if !e.lastTimestamp.IsZero() {
			features[1] = md.Timestamp.Sub(e.lastTimestamp).Seconds()
		}
		e.lastTimestamp = md.Timestamp
	}

	switch {
	case packet.Layer(layers.LayerTypeTCP) != nil:
		tcp := packet.Layer(layers.LayerTypeTCP).(*layers.TCP)
		features[2] = protoTCP
		features[3] = float64(tcp.SrcPort)
		features[4] = float64(tcp.DstPort)
		features[5] = encodeTCPFlags(tcp)
		features[8] = float64(tcp.Window)
	case packet.Layer(layers.LayerTypeUDP) != nil:
		udp := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		features[2] = protoUDP
		features[3] = float64(udp.SrcPort)
		features[4] = float64(udp.DstPort)
	case packet.Layer(layers.LayerTypeICMPv4) != nil:
		features[2] = protoICMP
	case packet.Layer(layers.LayerTypeICMPv6) != nil:
		features[2] = protoICMPv6
	}

	if ip, ok := packet.Layer(layers.LayerTypeIPv4).(*layers.IPv4); ok {
		features[6] = float64(ip.TTL)
	} else if ip6, ok := packet.Layer(layers.LayerTypeIPv6).(*layers.IPv6); ok {
		features[6] = float64(ip6.HopLimit)
	}

	if app := packet.ApplicationLayer(); app != nil {
		features[7] = float64(len(app.Payload()))
	}

	return features
}

// FeatureNames returns the names of extracted features.
func (e *Extractor) FeatureNames() []string {
	return append([]string(nil), featureNames...)
}

// encodeTCPFlags packs the TCP control bits into one number.
func encodeTCPFlags(tcp *layers.TCP) float64 {
	var flags float64
	for i, set := range []bool{tcp.SYN, tcp.ACK, tcp.FIN, tcp.RST, tcp.PSH, tcp.URG} {
		if set {
			flags += float64(int(1) << i)
		}
	}
	return flags
}
