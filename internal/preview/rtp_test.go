package preview

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
)

// newUDPPair binds two adjacent loopback ports, the RTP/RTCP convention
// the sender dials. Port+1 can be taken by another process, so retry
// with a fresh base port.
func newUDPPair(t *testing.T) (*net.UDPConn, *net.UDPConn, string) {
	t.Helper()
	for attempt := 0; attempt < 20; attempt++ {
		rtpConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
		if err != nil {
			t.Fatalf("ListenUDP failed: %v", err)
		}
		port := rtpConn.LocalAddr().(*net.UDPAddr).Port
		rtcpConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port + 1})
		if err != nil {
			rtpConn.Close()
			continue
		}
		t.Cleanup(func() {
			rtpConn.Close()
			rtcpConn.Close()
		})
		return rtpConn, rtcpConn, fmt.Sprintf("127.0.0.1:%d", port)
	}
	t.Fatal("Could not bind an adjacent UDP port pair")
	return nil, nil, ""
}

func readDatagram(t *testing.T, conn *net.UDPConn) []byte {
	t.Helper()
	buf := make([]byte, 2048)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("ReadFromUDP failed: %v", err)
	}
	return buf[:n]
}

func TestRTPSenderSendsPackets(t *testing.T) {
	rtpConn, _, target := newUDPPair(t)

	sender, err := NewRTPSender(target, 30, discardLogger())
	if err != nil {
		t.Fatalf("NewRTPSender failed: %v", err)
	}
	defer sender.Close()

	frame := encodeJPEG(t, 160, 120)
	if err := sender.SendFrame(frame); err != nil {
		t.Fatalf("SendFrame failed: %v", err)
	}

	data := readDatagram(t, rtpConn)
	var pkt rtp.Packet
	if err := pkt.Unmarshal(data); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if pkt.PayloadType != jpegPayloadType {
		t.Errorf("PayloadType = %d, want %d", pkt.PayloadType, jpegPayloadType)
	}
	if pkt.SSRC != sender.ssrc {
		t.Errorf("SSRC = %d, want %d", pkt.SSRC, sender.ssrc)
	}
	if len(pkt.Payload) < jpegMainHeaderSize {
		t.Fatalf("Payload too short: %d bytes", len(pkt.Payload))
	}
	if pkt.Payload[5] != jpegQInBand {
		t.Errorf("Q = %d, want %d", pkt.Payload[5], jpegQInBand)
	}
}

func TestRTPSenderSkipsUnpayloadableFrames(t *testing.T) {
	_, _, target := newUDPPair(t)

	sender, err := NewRTPSender(target, 30, discardLogger())
	if err != nil {
		t.Fatalf("NewRTPSender failed: %v", err)
	}
	defer sender.Close()

	if err := sender.SendFrame([]byte("not a jpeg")); err != nil {
		t.Errorf("Expected nil for unpayloadable frame, got %v", err)
	}
}

func TestRTPSenderReportsAndGoodbye(t *testing.T) {
	_, rtcpConn, target := newUDPPair(t)

	sender, err := NewRTPSender(target, 30, discardLogger())
	if err != nil {
		t.Fatalf("NewRTPSender failed: %v", err)
	}

	sender.mu.Lock()
	sender.lastSR = time.Now().Add(-time.Minute)
	sender.mu.Unlock()

	frame := encodeJPEG(t, 160, 120)
	if err := sender.SendFrame(frame); err != nil {
		t.Fatalf("SendFrame failed: %v", err)
	}

	packets, err := rtcp.Unmarshal(readDatagram(t, rtcpConn))
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if len(packets) == 0 {
		t.Fatal("Expected an RTCP packet")
	}
	sr, ok := packets[0].(*rtcp.SenderReport)
	if !ok {
		t.Fatalf("Expected a sender report, got %T", packets[0])
	}
	if sr.SSRC != sender.ssrc {
		t.Errorf("SSRC = %d, want %d", sr.SSRC, sender.ssrc)
	}
	if sr.PacketCount == 0 {
		t.Error("Expected a nonzero packet count")
	}
	if sr.OctetCount == 0 {
		t.Error("Expected a nonzero octet count")
	}

	if err := sender.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	packets, err = rtcp.Unmarshal(readDatagram(t, rtcpConn))
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if len(packets) == 0 {
		t.Fatal("Expected a goodbye packet")
	}
	bye, ok := packets[0].(*rtcp.Goodbye)
	if !ok {
		t.Fatalf("Expected a goodbye, got %T", packets[0])
	}
	if len(bye.Sources) != 1 || bye.Sources[0] != sender.ssrc {
		t.Errorf("Goodbye sources = %v, want [%d]", bye.Sources, sender.ssrc)
	}
}

func TestNTPTime(t *testing.T) {
	// 1 Jan 2020 00:00:00 UTC is 3786825600 seconds after the NTP epoch.
	at := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	got := ntpTime(at)
	if secs := got >> 32; secs != 3786825600 {
		t.Errorf("NTP seconds = %d, want 3786825600", secs)
	}
	if frac := got & 0xFFFFFFFF; frac != 0 {
		t.Errorf("NTP fraction = %d, want 0", frac)
	}

	half := ntpTime(at.Add(500 * time.Millisecond))
	frac := half & 0xFFFFFFFF
	if frac < 1<<31-4 || frac > 1<<31+4 {
		t.Errorf("Half-second fraction = %d, want about %d", frac, uint64(1)<<31)
	}
}
