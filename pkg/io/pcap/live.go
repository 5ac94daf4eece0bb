//go:build pcap

package pcap

import (
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
)

// NewLiveReader captures packets from iface.
func NewLiveReader(iface string, snaplen int32, promisc bool, timeout time.Duration) (*Reader, error) {
	handle, err := pcap.OpenLive(iface, snaplen, promisc, timeout)
	if err != nil {
		return nil, err
	}

	return &Reader{
		source:    gopacket.NewPacketSource(handle, handle.LinkType()),
		closer:    handleCloser{handle},
		extractor: NewExtractor(),
		isLive:    true,
	}, nil
}

type handleCloser struct{ h *pcap.Handle }

func (c handleCloser) Close() error {
	c.h.Close()
	return nil
}
