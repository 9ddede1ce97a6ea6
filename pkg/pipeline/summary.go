package pipeline

import (
	"encoding/hex"
	"time"
)

// Summary is the JSON view of a decoded frame shared by the event feeds
type Summary struct {
	ID        string    `json:"id"`
	Session   string    `json:"session"`
	Seq       uint64    `json:"seq"`
	Length    int       `json:"length"`
	Raw       string    `json:"raw"`
	Parsed    bool      `json:"parsed"`
	ParseErr  string    `json:"parse_error,omitempty"`
	FrameType string    `json:"frame_type,omitempty"`
	MACSeq    uint8     `json:"mac_seq"`
	DstPAN    uint16    `json:"dst_pan"`
	Dst       string    `json:"dst,omitempty"`
	Src       string    `json:"src,omitempty"`
	Payload   string    `json:"payload,omitempty"`
	FCSValid  bool      `json:"fcs_valid"`
	Timestamp time.Time `json:"timestamp"`
}

// Summarize flattens a decoded frame for publishing
func Summarize(d Decoded) Summary {
	s := Summary{
		ID:        d.ID,
		Session:   d.Session,
		Seq:       d.Seq,
		Length:    len(d.Raw),
		Raw:       hex.EncodeToString(d.Raw),
		Timestamp: d.Received,
	}
	if d.Frame == nil {
		if d.ParseErr != nil {
			s.ParseErr = d.ParseErr.Error()
		}
		return s
	}

	f := d.Frame
	s.Parsed = true
	s.FrameType = f.FCF.Type.String()
	s.MACSeq = f.Seq
	s.DstPAN = f.Dst.PANID
	s.Dst = f.Dst.String()
	s.Src = f.Src.String()
	s.Payload = hex.EncodeToString(f.Payload)
	s.FCSValid = f.FCSValid
	return s
}
