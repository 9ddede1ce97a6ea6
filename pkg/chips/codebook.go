package chips

// Chip to symbol mapping for the FM-demodulated O-QPSK signal.
// This differs from the chip sequences in the 802.15.4 standard because the
// FM discriminator translates the phase sequence into frequency deviations.
// See "CMOS RFIC Architectures for IEEE 802.15.4 Networks" (Notor, Caviglia, Levy).

// ChipsPerSymbol is the number of chips spreading one 4-bit symbol
const ChipsPerSymbol = 32

// SymbolsPerByte is the number of symbols carrying one octet (low nibble first)
const SymbolsPerByte = 2

// NumSymbols is the size of the codebook
const NumSymbols = 16

// CompareMask clears the newest chip window bit before every comparison.
// The top chip of a window depends on the chip that follows it, so only the
// low 31 bits are meaningful.
const CompareMask uint32 = 0x7FFFFFFF

// Preamble and start-of-frame delimiter symbols
const (
	PreambleSymbol = 0  // repeated eight times (four zero octets)
	PreambleLength = 8  // zero symbols required before the SFD
	SFDLowSymbol   = 7  // first SFD nibble (0xA7 low nibble)
	SFDHighSymbol  = 10 // second SFD nibble (0xA7 high nibble)
)

// SFD is the start-of-frame delimiter octet
const SFD byte = SFDHighSymbol<<4 | SFDLowSymbol

// Codebook holds the reference chip sequence for each symbol value
var Codebook = [NumSymbols]uint32{
	1618456172,
	1309113062,
	1826650030,
	1724778362,
	778887287,
	2061946375,
	2007919840,
	125494990,
	529027475,
	838370585,
	320833617,
	422705285,
	1368596360,
	85537272,
	139563807,
	2021988657,
}
