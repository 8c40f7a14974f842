package preview

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// RTP/JPEG payloading per RFC 2435. The JFIF container is stripped and
// only the entropy-coded scan travels on the wire, prefixed with a
// compact header; quantization tables ride in the first fragment
// (Q=255) so receivers can rebuild the image without out-of-band
// signaling.

const (
	jpegMainHeaderSize    = 8
	jpegRestartHeaderSize = 4
	jpegQuantHeaderSize   = 4
	jpegQInBand           = 255
	// Width and height travel as 8-pixel multiples in one byte each.
	jpegMaxDimension = 2040
)

var errUnsupportedJPEG = errors.New("preview: jpeg not payloadable")

// jpegScan is the subset of a baseline JPEG the payload format carries.
type jpegScan struct {
	width   int
	height  int
	typ     byte // 0: 4:2:2, 1: 4:2:0
	dri     uint16
	qtables [][]byte
	data    []byte
}

func parseJPEG(frame []byte) (*jpegScan, error) {
	if len(frame) < 4 || frame[0] != 0xFF || frame[1] != 0xD8 {
		return nil, fmt.Errorf("%w: missing SOI", errUnsupportedJPEG)
	}

	scan := &jpegScan{}
	tables := make(map[byte][]byte)

	pos := 2
	for pos+4 <= len(frame) {
		if frame[pos] != 0xFF {
			return nil, fmt.Errorf("%w: lost marker alignment at %d", errUnsupportedJPEG, pos)
		}
		marker := frame[pos+1]
		if marker == 0xFF {
			pos++
			continue
		}

		length := int(binary.BigEndian.Uint16(frame[pos+2:]))
		if length < 2 || pos+2+length > len(frame) {
			return nil, fmt.Errorf("%w: truncated segment", errUnsupportedJPEG)
		}
		segment := frame[pos+4 : pos+2+length]

		switch marker {
		case 0xDB: // DQT, possibly several tables per segment
			for off := 0; off < len(segment); off += 65 {
				if segment[off]>>4 != 0 {
					return nil, fmt.Errorf("%w: 16-bit quantization table", errUnsupportedJPEG)
				}
				if off+65 > len(segment) {
					return nil, fmt.Errorf("%w: short quantization table", errUnsupportedJPEG)
				}
				tables[segment[off]&0x0F] = segment[off+1 : off+65]
			}

		case 0xC0: // SOF0, baseline
			typ, width, height, err := parseSOF0(segment)
			if err != nil {
				return nil, err
			}
			scan.typ, scan.width, scan.height = typ, width, height

		case 0xC1, 0xC2, 0xC3: // extended, progressive, lossless
			return nil, fmt.Errorf("%w: non-baseline encoding", errUnsupportedJPEG)

		case 0xDD: // DRI
			if len(segment) >= 2 {
				scan.dri = binary.BigEndian.Uint16(segment)
			}

		case 0xDA: // SOS, the entropy-coded scan follows the header
			start := pos + 2 + length
			scan.data = frame[start:findEOI(frame, start)]
			for id := byte(0); id < 4; id++ {
				if t, ok := tables[id]; ok {
					scan.qtables = append(scan.qtables, t)
				}
			}
			if scan.width == 0 || len(scan.qtables) == 0 {
				return nil, fmt.Errorf("%w: scan before frame header", errUnsupportedJPEG)
			}
			return scan, nil
		}

		pos += 2 + length
	}

	return nil, fmt.Errorf("%w: no scan data", errUnsupportedJPEG)
}

func parseSOF0(segment []byte) (typ byte, width, height int, err error) {
	if len(segment) < 6 {
		return 0, 0, 0, fmt.Errorf("%w: short frame header", errUnsupportedJPEG)
	}
	if segment[0] != 8 {
		return 0, 0, 0, fmt.Errorf("%w: %d-bit samples", errUnsupportedJPEG, segment[0])
	}
	height = int(binary.BigEndian.Uint16(segment[1:]))
	width = int(binary.BigEndian.Uint16(segment[3:]))

	ncomp := int(segment[5])
	if ncomp != 3 || len(segment) < 6+3*ncomp {
		return 0, 0, 0, fmt.Errorf("%w: %d components", errUnsupportedJPEG, ncomp)
	}
	if segment[6+3+1] != 0x11 || segment[6+6+1] != 0x11 {
		return 0, 0, 0, fmt.Errorf("%w: chroma subsampling", errUnsupportedJPEG)
	}

	switch segment[6+1] {
	case 0x21: // 4:2:2
		typ = 0
	case 0x22: // 4:2:0
		typ = 1
	default:
		return 0, 0, 0, fmt.Errorf("%w: luma sampling %#02x", errUnsupportedJPEG, segment[6+1])
	}
	return typ, width, height, nil
}

// findEOI locates the end-of-image marker. Inside the scan every 0xFF is
// either stuffed (FF 00) or a restart marker (FF D0..D7), so the first
// FF D9 is the real end.
func findEOI(frame []byte, start int) int {
	for i := start; i+1 < len(frame); i++ {
		if frame[i] == 0xFF && frame[i+1] == 0xD9 {
			return i
		}
	}
	return len(frame)
}

// JPEGPayloader fragments baseline JPEG frames per RFC 2435 for use with
// an rtp.Packetizer.
type JPEGPayloader struct{}

// Payload implements rtp.Payloader. mtu is the space left after the RTP
// header. Frames the format cannot carry yield no payloads, which the
// packetizer turns into zero packets.
func (*JPEGPayloader) Payload(mtu uint16, frame []byte) [][]byte {
	scan, err := parseJPEG(frame)
	if err != nil || len(scan.data) == 0 {
		return nil
	}
	if scan.width > jpegMaxDimension || scan.height > jpegMaxDimension {
		return nil
	}

	typ := scan.typ
	headerSize := jpegMainHeaderSize
	if scan.dri > 0 {
		// Types 64..127 mirror 0..63 with a restart marker header in
		// every packet.
		typ |= 0x40
		headerSize += jpegRestartHeaderSize
	}

	tableBytes := 0
	for _, t := range scan.qtables {
		tableBytes += len(t)
	}

	var payloads [][]byte
	offset := 0
	for offset < len(scan.data) {
		size := headerSize
		if offset == 0 {
			size += jpegQuantHeaderSize + tableBytes
		}
		room := int(mtu) - size
		if room <= 0 {
			return nil
		}
		n := len(scan.data) - offset
		if n > room {
			n = room
		}

		buf := make([]byte, size+n)
		buf[0] = 0 // type-specific
		buf[1] = byte(offset >> 16)
		buf[2] = byte(offset >> 8)
		buf[3] = byte(offset)
		buf[4] = typ
		buf[5] = jpegQInBand
		buf[6] = byte((scan.width + 7) / 8)
		buf[7] = byte((scan.height + 7) / 8)
		pos := jpegMainHeaderSize

		if scan.dri > 0 {
			binary.BigEndian.PutUint16(buf[pos:], scan.dri)
			// F=1, L=1, count all-ones: restarts may appear anywhere
			buf[pos+2] = 0xFF
			buf[pos+3] = 0xFF
			pos += jpegRestartHeaderSize
		}

		if offset == 0 {
			buf[pos] = 0   // MBZ
			buf[pos+1] = 0 // precision: 8-bit tables
			binary.BigEndian.PutUint16(buf[pos+2:], uint16(tableBytes))
			pos += jpegQuantHeaderSize
			for _, t := range scan.qtables {
				copy(buf[pos:], t)
				pos += len(t)
			}
		}

		copy(buf[pos:], scan.data[offset:offset+n])
		payloads = append(payloads, buf)
		offset += n
	}

	return payloads
}
