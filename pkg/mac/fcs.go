package mac

// Frame check sequence: ITU-T CRC-16 (x^16 + x^12 + x^5 + 1), bit-reflected,
// zero initial value. Transmitted low byte first.

const fcsPolyReflected = 0x8408

// FCSLength is the size of the trailing frame check sequence
const FCSLength = 2

var fcsTable = func() [256]uint16 {
	var table [256]uint16
	for i := range table {
		crc := uint16(i)
		for j := 0; j < 8; j++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ fcsPolyReflected
			} else {
				crc >>= 1
			}
		}
		table[i] = crc
	}
	return table
}()

// FCS computes the frame check sequence over data
func FCS(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc = fcsTable[byte(crc)^b] ^ (crc >> 8)
	}
	return crc
}

// AppendFCS appends the FCS of data to data
func AppendFCS(data []byte) []byte {
	crc := FCS(data)
	return append(data, byte(crc), byte(crc>>8))
}

// CheckFCS reports whether the last two bytes of mpdu are a valid FCS
func CheckFCS(mpdu []byte) bool {
	if len(mpdu) < FCSLength {
		return false
	}
	n := len(mpdu) - FCSLength
	crc := FCS(mpdu[:n])
	return mpdu[n] == byte(crc) && mpdu[n+1] == byte(crc>>8)
}
