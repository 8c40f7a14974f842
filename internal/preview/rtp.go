package preview

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/smazurov/uvcbridge/internal/logging"
	"github.com/smazurov/uvcbridge/internal/metrics"
)

const (
	// Static payload type 26 is JPEG at a 90 kHz clock.
	jpegPayloadType   = 26
	jpegClockRate     = 90000
	rtpMTU            = 1400
	senderReportEvery = 5 * time.Second
)

// RTPSender ships JPEG frames to a UDP peer as RFC 2435 RTP and emits
// RTCP sender reports on the adjacent port, the conventional port
// pairing. Receivers play it with a plain SDP file and no session
// protocol.
type RTPSender struct {
	rtpConn    *net.UDPConn
	rtcpConn   *net.UDPConn
	packetizer rtp.Packetizer
	ssrc       uint32
	samples    uint32
	logger     *slog.Logger

	mu      sync.Mutex
	packets uint32
	octets  uint32
	rtpTime uint32
	lastSR  time.Time
}

// NewRTPSender dials target ("host:port") for RTP and port+1 for RTCP.
func NewRTPSender(target string, frameRate int, logger *slog.Logger) (*RTPSender, error) {
	if logger == nil {
		logger = logging.GetLogger("preview")
	}
	if frameRate <= 0 {
		frameRate = 30
	}

	addr, err := net.ResolveUDPAddr("udp", target)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve rtp target: %w", err)
	}
	rtpConn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rtp target: %w", err)
	}
	rtcpAddr := &net.UDPAddr{IP: addr.IP, Port: addr.Port + 1, Zone: addr.Zone}
	rtcpConn, err := net.DialUDP("udp", nil, rtcpAddr)
	if err != nil {
		rtpConn.Close()
		return nil, fmt.Errorf("failed to dial rtcp target: %w", err)
	}

	ssrc := rand.Uint32()
	sender := &RTPSender{
		rtpConn:  rtpConn,
		rtcpConn: rtcpConn,
		packetizer: rtp.NewPacketizer(
			rtpMTU,
			jpegPayloadType,
			ssrc,
			&JPEGPayloader{},
			rtp.NewRandomSequencer(),
			jpegClockRate,
		),
		ssrc:    ssrc,
		samples: uint32(jpegClockRate / frameRate),
		logger:  logger,
		lastSR:  time.Now(),
	}
	logger.Info("RTP preview sender ready",
		"target", target, "rtcp_port", rtcpAddr.Port, "ssrc", ssrc)
	return sender, nil
}

// SendFrame packetizes and transmits one JPEG frame. Frames the payload
// format cannot carry are skipped silently; the pattern and spool sources
// only produce baseline JPEG, so this is a peer-input concern.
func (s *RTPSender) SendFrame(frame []byte) error {
	pkts := s.packetizer.Packetize(frame, s.samples)
	if len(pkts) == 0 {
		return nil
	}

	var octets int
	for _, pkt := range pkts {
		data, err := pkt.Marshal()
		if err != nil {
			return fmt.Errorf("failed to marshal rtp packet: %w", err)
		}
		if _, err := s.rtpConn.Write(data); err != nil {
			return fmt.Errorf("failed to send rtp packet: %w", err)
		}
		octets += len(pkt.Payload)
	}
	metrics.AddPreviewFrame("rtp")

	s.mu.Lock()
	s.packets += uint32(len(pkts))
	s.octets += uint32(octets)
	s.rtpTime = pkts[len(pkts)-1].Timestamp
	due := time.Since(s.lastSR) >= senderReportEvery
	if due {
		s.lastSR = time.Now()
	}
	packets, total, rtpTime := s.packets, s.octets, s.rtpTime
	s.mu.Unlock()

	if due {
		if err := s.sendReport(packets, total, rtpTime); err != nil {
			s.logger.Warn("Failed to send rtcp sender report", "error", err)
		}
	}
	return nil
}

func (s *RTPSender) sendReport(packets, octets, rtpTime uint32) error {
	sr := &rtcp.SenderReport{
		SSRC:        s.ssrc,
		NTPTime:     ntpTime(time.Now()),
		RTPTime:     rtpTime,
		PacketCount: packets,
		OctetCount:  octets,
	}
	data, err := sr.Marshal()
	if err != nil {
		return err
	}
	_, err = s.rtcpConn.Write(data)
	return err
}

// Close says goodbye on the RTCP channel and releases both sockets.
func (s *RTPSender) Close() error {
	bye := &rtcp.Goodbye{Sources: []uint32{s.ssrc}}
	if data, err := bye.Marshal(); err == nil {
		_, _ = s.rtcpConn.Write(data)
	}

	rtpErr := s.rtpConn.Close()
	rtcpErr := s.rtcpConn.Close()
	if rtpErr != nil {
		return rtpErr
	}
	return rtcpErr
}

// ntpTime converts t to the 64-bit NTP format RTCP wants: seconds since
// 1900 in the top half, fraction of a second in the bottom.
func ntpTime(t time.Time) uint64 {
	const epochOffset = 2208988800 // 1900-01-01 to 1970-01-01
	secs := uint64(t.Unix()) + epochOffset
	frac := (uint64(t.Nanosecond()) << 32) / uint64(time.Second)
	return secs<<32 | frac
}
