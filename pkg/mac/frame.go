// Package mac parses IEEE 802.15.4 MAC frames delivered by the packet sink.
// The sink does not inspect frame contents; FCS verification happens here.
package mac

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrTooShort indicates the frame ends before a required field
	ErrTooShort = errors.New("mac: frame too short")
	// ErrBadAddressing indicates a reserved addressing mode
	ErrBadAddressing = errors.New("mac: reserved addressing mode")
)

// FrameType is the 3-bit frame type from the frame control field
type FrameType uint8

const (
	FrameBeacon  FrameType = 0
	FrameData    FrameType = 1
	FrameAck     FrameType = 2
	FrameCommand FrameType = 3
)

func (t FrameType) String() string {
	switch t {
	case FrameBeacon:
		return "beacon"
	case FrameData:
		return "data"
	case FrameAck:
		return "ack"
	case FrameCommand:
		return "command"
	default:
		return fmt.Sprintf("reserved(%d)", uint8(t))
	}
}

// AddrMode is a 2-bit addressing mode
type AddrMode uint8

const (
	AddrNone     AddrMode = 0
	AddrReserved AddrMode = 1
	AddrShort    AddrMode = 2
	AddrExtended AddrMode = 3
)

func (m AddrMode) size() int {
	switch m {
	case AddrShort:
		return 2
	case AddrExtended:
		return 8
	default:
		return 0
	}
}

// FCF is the decoded frame control field
type FCF struct {
	Type           FrameType
	Security       bool
	FramePending   bool
	AckRequest     bool
	PANCompression bool
	DstMode        AddrMode
	Version        uint8
	SrcMode        AddrMode
}

// ParseFCF decodes a little-endian frame control field
func ParseFCF(v uint16) FCF {
	return FCF{
		Type:           FrameType(v & 0x7),
		Security:       v&(1<<3) != 0,
		FramePending:   v&(1<<4) != 0,
		AckRequest:     v&(1<<5) != 0,
		PANCompression: v&(1<<6) != 0,
		DstMode:        AddrMode((v >> 10) & 0x3),
		Version:        uint8((v >> 12) & 0x3),
		SrcMode:        AddrMode((v >> 14) & 0x3),
	}
}

// Uint16 encodes the frame control field
func (f FCF) Uint16() uint16 {
	v := uint16(f.Type&0x7) |
		uint16(f.DstMode&0x3)<<10 |
		uint16(f.Version&0x3)<<12 |
		uint16(f.SrcMode&0x3)<<14
	if f.Security {
		v |= 1 << 3
	}
	if f.FramePending {
		v |= 1 << 4
	}
	if f.AckRequest {
		v |= 1 << 5
	}
	if f.PANCompression {
		v |= 1 << 6
	}
	return v
}

// Address is a PAN-qualified short or extended address
type Address struct {
	Mode  AddrMode
	PANID uint16
	Short uint16
	Ext   uint64
}

// String formats the address as pan/addr
func (a Address) String() string {
	switch a.Mode {
	case AddrShort:
		return fmt.Sprintf("%04x/%04x", a.PANID, a.Short)
	case AddrExtended:
		return fmt.Sprintf("%04x/%016x", a.PANID, a.Ext)
	default:
		return ""
	}
}

// Frame is a parsed MAC frame
type Frame struct {
	FCF      FCF
	Seq      uint8
	Dst      Address
	Src      Address
	Payload  []byte
	FCS      uint16
	FCSValid bool
}

// Parse decodes an MPDU (the bytes counted by the PHY length field)
func Parse(mpdu []byte) (*Frame, error) {
	if len(mpdu) < 3+FCSLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooShort, len(mpdu))
	}

	f := &Frame{
		FCF: ParseFCF(binary.LittleEndian.Uint16(mpdu[0:2])),
		Seq: mpdu[2],
	}
	if f.FCF.DstMode == AddrReserved || f.FCF.SrcMode == AddrReserved {
		return nil, ErrBadAddressing
	}

	end := len(mpdu) - FCSLength
	pos := 3

	if f.FCF.DstMode != AddrNone {
		if pos+2+f.FCF.DstMode.size() > end {
			return nil, fmt.Errorf("%w: destination address", ErrTooShort)
		}
		f.Dst.PANID = binary.LittleEndian.Uint16(mpdu[pos:])
		pos += 2
		pos = readAddr(&f.Dst, f.FCF.DstMode, mpdu, pos)
	}

	if f.FCF.SrcMode != AddrNone {
		compressed := f.FCF.PANCompression && f.FCF.DstMode != AddrNone
		need := f.FCF.SrcMode.size()
		if !compressed {
			need += 2
		}
		if pos+need > end {
			return nil, fmt.Errorf("%w: source address", ErrTooShort)
		}
		if compressed {
			f.Src.PANID = f.Dst.PANID
		} else {
			f.Src.PANID = binary.LittleEndian.Uint16(mpdu[pos:])
			pos += 2
		}
		pos = readAddr(&f.Src, f.FCF.SrcMode, mpdu, pos)
	}

	f.Payload = mpdu[pos:end]
	f.FCS = binary.LittleEndian.Uint16(mpdu[end:])
	f.FCSValid = f.FCS == FCS(mpdu[:end])
	return f, nil
}

func readAddr(a *Address, mode AddrMode, b []byte, pos int) int {
	a.Mode = mode
	switch mode {
	case AddrShort:
		a.Short = binary.LittleEndian.Uint16(b[pos:])
	case AddrExtended:
		a.Ext = binary.LittleEndian.Uint64(b[pos:])
	}
	return pos + mode.size()
}
