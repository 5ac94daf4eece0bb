// Package pcap turns captured network packets into feature vectors.
//
// Capture files are read with the pure Go pcapgo decoder. Live capture
// needs libpcap and is only built with the pcap build tag.
package pcap

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"

	aio "github.com/hed1ad/autosad/pkg/io"
)

var (
	_ aio.Reader           = (*Reader)(nil)
	_ aio.FeatureExtractor = (*Extractor)(nil)
)

// ErrLiveUnsupported is returned by NewLiveReader in builds without the
// pcap tag.
var ErrLiveUnsupported = errors.New("live capture requires a build with the pcap tag")

// Reader reads packets from a capture file or a live interface.
type Reader struct {
	source    *gopacket.PacketSource
	closer    io.Closer
	extractor *Extractor
	isLive    bool
}

// NewFileReader opens a pcap capture file.
func NewFileReader(filename string) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	r, err := New(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	r.closer = file
	return r, nil
}

// New decodes pcap data from src.
func New(src io.Reader) (*Reader, error) {
	pr, err := pcapgo.NewReader(src)
	if err != nil {
		return nil, err
	}
	return &Reader{
		source:    gopacket.NewPacketSource(pr, pr.LinkType()),
		extractor: NewExtractor(),
	}, nil
}

// Live reports whether packets come from an interface.
func (r *Reader) Live() bool {
	return r.isLive
}

// FeatureNames returns the names of the extracted features.
func (r *Reader) FeatureNames() []string {
	return r.extractor.FeatureNames()
}

// Read returns every packet as a sample. It blocks forever on a live
// interface; use Stream there.
func (r *Reader) Read() ([]aio.Sample, error) {
	if r.source == nil {
		return nil, errors.New("reader not initialized")
	}

	var data []aio.Sample
	for packet := range r.source.Packets() {
		data = append(data, r.extractor.Sample(packet))
	}
	return data, nil
}

// Stream returns a channel of samples for real-time processing.
func (r *Reader) Stream(ctx context.Context) (<-chan aio.Sample, error) {
	if r.source == nil {
		return nil, errors.New("reader not initialized")
	}

	out := make(chan aio.Sample, 1000)
	packets := r.source.Packets()

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case packet, ok := <-packets:
				if !ok {
					return
				}
				select {
				case out <- r.extractor.Sample(packet):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
