package chips

// Transmit-side helpers. The receiver never uses these; they exist to produce
// sample streams (cmd/chipgen, tests) that the receiver can acquire.

// SymbolChips returns the 32 chips for sym, oldest first, so that pushing them
// into a ShiftRegister in order leaves the codeword in the register
func SymbolChips(sym Symbol) []uint32 {
	codeword := Codebook[sym&0x0F]
	out := make([]uint32, ChipsPerSymbol)
	for i := 0; i < ChipsPerSymbol; i++ {
		out[i] = (codeword >> (ChipsPerSymbol - 1 - i)) & 1
	}
	return out
}

// SpreadByte expands an octet into two symbols' worth of chips, low nibble first
func SpreadByte(b byte) []uint32 {
	out := make([]uint32, 0, ChipsPerSymbol*SymbolsPerByte)
	out = append(out, SymbolChips(Symbol(b&0x0F))...)
	out = append(out, SymbolChips(Symbol(b>>4))...)
	return out
}

// Spread expands a byte sequence into chips
func Spread(data []byte) []uint32 {
	out := make([]uint32, 0, len(data)*ChipsPerSymbol*SymbolsPerByte)
	for _, b := range data {
		out = append(out, SpreadByte(b)...)
	}
	return out
}

// Modulate maps chips to antipodal samples: 1 -> +amplitude, 0 -> -amplitude
func Modulate(chips []uint32, amplitude float32) []float32 {
	out := make([]float32, len(chips))
	for i, c := range chips {
		if c&1 == 1 {
			out[i] = amplitude
		} else {
			out[i] = -amplitude
		}
	}
	return out
}
