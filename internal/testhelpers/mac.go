package testhelpers

import (
	"github.com/dbehnke/oqpsk-sink/pkg/mac"
)

// Test addressing used by DataMPDU
var (
	TestDst = mac.Address{Mode: mac.AddrShort, PANID: 0x1AAA, Short: 0xFFFF}
	TestSrc = mac.Address{Mode: mac.AddrShort, PANID: 0x1AAA, Short: 0x0001}
)

// DataMPDU builds a data frame with a valid FCS. It panics if payload is too
// long for a PHY frame.
func DataMPDU(seq uint8, payload []byte) []byte {
	mpdu, err := mac.BuildMPDU(mac.DataFCF(), seq, TestDst, TestSrc, payload)
	if err != nil {
		panic(err)
	}
	return mpdu
}

// DataFrameSamples returns samples for a complete PPDU carrying a data frame
func DataFrameSamples(seq uint8, payload []byte) []float32 {
	return FrameSamples(DataMPDU(seq, payload))
}
