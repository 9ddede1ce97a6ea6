package mac

import (
	"encoding/binary"
	"fmt"

	"github.com/dbehnke/oqpsk-sink/pkg/chips"
)

// MaxPHYPacketSize is the largest MPDU a PHY length byte may announce
const MaxPHYPacketSize = 127

// PreambleOctets is the number of zero octets preceding the SFD
const PreambleOctets = 4

// DataFCF returns the control field used for plain data frames: short
// destination and source addressing, no PAN ID compression
func DataFCF() FCF {
	return FCF{Type: FrameData, DstMode: AddrShort, SrcMode: AddrShort}
}

// BuildMPDU serializes a MAC frame and appends its FCS
func BuildMPDU(fcf FCF, seq uint8, dst, src Address, payload []byte) ([]byte, error) {
	if fcf.DstMode == AddrReserved || fcf.SrcMode == AddrReserved {
		return nil, ErrBadAddressing
	}

	out := make([]byte, 0, 3+20+len(payload)+FCSLength)
	out = binary.LittleEndian.AppendUint16(out, fcf.Uint16())
	out = append(out, seq)

	if fcf.DstMode != AddrNone {
		out = binary.LittleEndian.AppendUint16(out, dst.PANID)
		out = appendAddr(out, fcf.DstMode, dst)
	}
	if fcf.SrcMode != AddrNone {
		if !fcf.PANCompression || fcf.DstMode == AddrNone {
			out = binary.LittleEndian.AppendUint16(out, src.PANID)
		}
		out = appendAddr(out, fcf.SrcMode, src)
	}
	out = append(out, payload...)

	if len(out)+FCSLength > MaxPHYPacketSize {
		return nil, fmt.Errorf("mac: MPDU of %d bytes exceeds %d", len(out)+FCSLength, MaxPHYPacketSize)
	}
	return AppendFCS(out), nil
}

func appendAddr(b []byte, mode AddrMode, a Address) []byte {
	switch mode {
	case AddrShort:
		return binary.LittleEndian.AppendUint16(b, a.Short)
	case AddrExtended:
		return binary.LittleEndian.AppendUint64(b, a.Ext)
	}
	return b
}

// BuildPPDU prefixes an MPDU with the synchronization header and PHY length
func BuildPPDU(mpdu []byte) ([]byte, error) {
	if len(mpdu) > MaxPHYPacketSize {
		return nil, fmt.Errorf("mac: MPDU of %d bytes exceeds %d", len(mpdu), MaxPHYPacketSize)
	}
	out := make([]byte, PreambleOctets, PreambleOctets+2+len(mpdu))
	out = append(out, chips.SFD, byte(len(mpdu)))
	return append(out, mpdu...), nil
}
