//go:build !pcap

package pcap

import "time"

// NewLiveReader always fails; rebuild with -tags pcap for live capture.
func NewLiveReader(iface string, snaplen int32, promisc bool, timeout time.Duration) (*Reader, error) {
	return nil, ErrLiveUnsupported
}
