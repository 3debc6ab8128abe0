// Package ais defines the decoded-sentence model shared across the relay.
// The bit-level sentence grammar lives behind the Decoder interface; the
// relay only consumes the decoder's typed field output.
package ais

import "bytes"

// Enum is a decoded enumerated field value. Name is the symbolic name the
// normalizer renders downstream.
type Enum struct {
	Value int
	Name  string
}

func (e Enum) String() string {
	return e.Name
}

// Fields holds the typed output of decoding one AIS sentence. Pointer
// fields are absent when the sentence type does not carry them.
type Fields struct {
	MsgType int
	MMSI    int64

	// Static identity
	IMO         *int64
	ShipName    *string
	ShipType    *Enum
	CallSign    *string
	Destination *string

	// Position
	Lat *float64
	Lon *float64

	// Dynamic state
	Speed    *float64
	Heading  *float64
	Course   *float64
	Draught  *float64
	Status   *Enum
	Maneuver *Enum

	// Raw binary payloads
	Spare1 []byte
	Spare2 []byte
	Data   []byte
}

// Decoder decodes one sentence fragment into typed fields. Implementations
// are external collaborators; a decode failure applies to that fragment
// only and must not affect the stream.
type Decoder interface {
	// Decode returns ErrIncompleteSentence when the fragment is a valid
	// part of a multi-sentence message that is not yet complete.
	Decode(sentence []byte) (Fields, error)
}

// noisePrefix marks proprietary status sentences interleaved in the feed
var noisePrefix = []byte("$ABVSI")

// FilterSentences splits an inbound line on CRLF and returns the trimmed
// fragments worth decoding, dropping blanks and noise sentences.
func FilterSentences(line []byte) [][]byte {
	var out [][]byte
	for _, frag := range bytes.Split(line, []byte("\r\n")) {
		frag = bytes.TrimSpace(frag)
		if len(frag) == 0 || bytes.HasPrefix(frag, noisePrefix) {
			continue
		}
		out = append(out, frag)
	}
	return out
}
