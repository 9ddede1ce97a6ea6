package sink

import "fmt"

// State is the receiver synchronization phase
type State int

const (
	// StateSearching looks for eight preamble zeros followed by the SFD
	StateSearching State = iota
	// StateSynced decodes the two symbols of the length byte
	StateSynced
	// StateHeaderDecoded accumulates payload bytes until the declared length
	StateHeaderDecoded
)

func (s State) String() string {
	switch s {
	case StateSearching:
		return "searching"
	case StateSynced:
		return "synced"
	case StateHeaderDecoded:
		return "header_decoded"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Reason explains why synchronization was abandoned
type Reason string

const (
	ReasonPreamble      Reason = "preamble"
	ReasonSFD           Reason = "sfd"
	ReasonInvalidSymbol Reason = "invalid_symbol"
	ReasonLength        Reason = "length"
)

// searchData is owned by StateSearching
type searchData struct {
	zeros  int  // preamble zeros confirmed; 0 means not yet aligned
	sfdLow bool // first SFD nibble matched
}

// octet assembles two symbols into a byte, low nibble first
type octet struct {
	nibbles int
	value   byte
}

// push adds a nibble and reports whether the byte is complete
func (o *octet) push(nibble uint8) (byte, bool) {
	if o.nibbles == 0 {
		o.value = nibble & 0x0F
		o.nibbles = 1
		return 0, false
	}
	o.value |= (nibble & 0x0F) << 4
	b := o.value
	o.nibbles = 0
	o.value = 0
	return b, true
}

// frameData is owned by StateHeaderDecoded
type frameData struct {
	length int
	count  int
	buf    [MaxPacketLen]byte
}
