package ais

import (
	"bytes"
	"fmt"
	"strconv"
	"sync"

	"github.com/SUNET/ais-data-relay/errors"
)

// ErrIncompleteSentence marks a valid fragment of a multi-sentence
// message whose remaining parts have not arrived yet. Callers skip the
// fragment without counting a decode failure.
var ErrIncompleteSentence = errors.New("sentence is part of an incomplete multi-part message")

// maxPendingMessages bounds the multi-part reassembly buffer so a feed
// that never completes its sequences cannot grow it without limit
const maxPendingMessages = 32

// NMEADecoder decodes AIVDM/AIVDO sentences. It reassembles multi-part
// messages keyed by sequence id and channel; reassembly state is only
// ever per-stream, so one decoder serves one upstream connection.
type NMEADecoder struct {
	mu      sync.Mutex
	pending map[string]*partialMessage
}

type partialMessage struct {
	parts    [][]byte
	received int
	fill     int
}

// NewNMEADecoder creates a sentence decoder
func NewNMEADecoder() *NMEADecoder {
	return &NMEADecoder{
		pending: make(map[string]*partialMessage),
	}
}

// Decode parses one sentence fragment. Single-part sentences decode
// immediately; parts of a multi-sentence message return
// ErrIncompleteSentence until the final part arrives.
func (d *NMEADecoder) Decode(sentence []byte) (Fields, error) {
	payload, fill, err := d.frame(sentence)
	if err != nil {
		return Fields{}, err
	}
	if payload == nil {
		return Fields{}, ErrIncompleteSentence
	}
	return decodePayload(payload, fill)
}

// frame validates the NMEA envelope and returns the armored payload
// once all parts of the message are present, or nil while parts are
// still outstanding
func (d *NMEADecoder) frame(sentence []byte) ([]byte, int, error) {
	if len(sentence) < 2 || sentence[0] != '!' {
		return nil, 0, errors.WrapInvalid(errors.ErrDecodeFailed, "NMEADecoder", "frame", "missing sentence start")
	}

	star := bytes.LastIndexByte(sentence, '*')
	if star < 0 || star+3 > len(sentence) {
		return nil, 0, errors.WrapInvalid(errors.ErrDecodeFailed, "NMEADecoder", "frame", "missing checksum")
	}
	want, err := strconv.ParseUint(string(sentence[star+1:star+3]), 16, 8)
	if err != nil {
		return nil, 0, errors.WrapInvalid(errors.ErrDecodeFailed, "NMEADecoder", "frame", "malformed checksum")
	}
	var sum byte
	for _, b := range sentence[1:star] {
		sum ^= b
	}
	if sum != byte(want) {
		return nil, 0, errors.WrapInvalid(errors.ErrDecodeFailed, "NMEADecoder", "frame", "checksum mismatch")
	}

	fields := bytes.Split(sentence[1:star], []byte(","))
	if len(fields) != 7 {
		return nil, 0, errors.WrapInvalid(errors.ErrDecodeFailed, "NMEADecoder", "frame", "wrong field count")
	}
	if !bytes.HasSuffix(fields[0], []byte("VDM")) && !bytes.HasSuffix(fields[0], []byte("VDO")) {
		return nil, 0, errors.WrapInvalid(errors.ErrDecodeFailed, "NMEADecoder", "frame", "not a VDM/VDO sentence")
	}

	total, err := strconv.Atoi(string(fields[1]))
	if err != nil || total < 1 {
		return nil, 0, errors.WrapInvalid(errors.ErrDecodeFailed, "NMEADecoder", "frame", "bad fragment count")
	}
	num, err := strconv.Atoi(string(fields[2]))
	if err != nil || num < 1 || num > total {
		return nil, 0, errors.WrapInvalid(errors.ErrDecodeFailed, "NMEADecoder", "frame", "bad fragment number")
	}
	fill, err := strconv.Atoi(string(fields[6]))
	if err != nil || fill < 0 || fill > 5 {
		return nil, 0, errors.WrapInvalid(errors.ErrDecodeFailed, "NMEADecoder", "frame", "bad fill bits")
	}
	payload := fields[5]
	if len(payload) == 0 {
		return nil, 0, errors.WrapInvalid(errors.ErrDecodeFailed, "NMEADecoder", "frame", "empty payload")
	}

	if total == 1 {
		return payload, fill, nil
	}
	return d.assemble(string(fields[3])+"/"+string(fields[4]), total, num, fill, payload)
}

// assemble buffers one part of a multi-sentence message and returns the
// concatenated payload when the set is complete
func (d *NMEADecoder) assemble(key string, total, num, fill int, payload []byte) ([]byte, int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	msg, ok := d.pending[key]
	if !ok || num == 1 || len(msg.parts) != total {
		if len(d.pending) >= maxPendingMessages {
			for k := range d.pending {
				delete(d.pending, k)
				break
			}
		}
		msg = &partialMessage{parts: make([][]byte, total)}
		d.pending[key] = msg
	}

	if msg.parts[num-1] == nil {
		msg.received++
	}
	msg.parts[num-1] = append([]byte(nil), payload...)
	if num == total {
		msg.fill = fill
	}

	if msg.received < total {
		return nil, 0, nil
	}

	delete(d.pending, key)
	return bytes.Join(msg.parts, nil), msg.fill, nil
}

// decodePayload unarmors the 6-bit payload and extracts the fields of
// the message types the relay understands. Unknown types still yield
// the message type and vessel identifier.
func decodePayload(payload []byte, fill int) (Fields, error) {
	bits, err := unarmor(payload, fill)
	if err != nil {
		return Fields{}, err
	}
	if bits.length < 38 {
		return Fields{}, errors.WrapInvalid(errors.ErrDecodeFailed, "NMEADecoder", "decodePayload", "payload too short")
	}

	f := Fields{
		MsgType: int(bits.uint(0, 6)),
		MMSI:    int64(bits.uint(8, 30)),
	}

	switch f.MsgType {
	case 1, 2, 3:
		decodePositionReport(&f, bits)
	case 5:
		decodeStaticVoyage(&f, bits)
	case 9:
		decodeSARAircraft(&f, bits)
	case 18, 19:
		decodeClassBPosition(&f, bits)
	case 24:
		decodeStaticDataReport(&f, bits)
	case 27:
		decodeLongRange(&f, bits)
	}

	return f, nil
}

// Class A position report, message types 1 through 3
func decodePositionReport(f *Fields, bits bitField) {
	if bits.length < 145 {
		return
	}
	f.Status = statusEnum(int(bits.uint(38, 4)))
	f.Speed = speedTenths(bits.uint(50, 10))
	f.Lon, f.Lat = position(bits, 61, 89)
	f.Course = courseTenths(bits.uint(116, 12))
	f.Heading = heading(bits.uint(128, 9))
	f.Maneuver = maneuverEnum(int(bits.uint(143, 2)))
	if bits.length >= 148 {
		f.Spare1 = []byte{byte(bits.uint(145, 3))}
	}
}

// Static and voyage related data, message type 5
func decodeStaticVoyage(f *Fields, bits bitField) {
	if bits.length < 422 {
		return
	}
	if imo := int64(bits.uint(40, 30)); imo != 0 {
		f.IMO = &imo
	}
	f.CallSign = sixBitString(bits, 70, 42)
	f.ShipName = sixBitString(bits, 112, 120)
	f.ShipType = shipTypeEnum(int(bits.uint(232, 8)))
	if d := float64(bits.uint(294, 8)) / 10.0; d > 0 {
		f.Draught = &d
	}
	f.Destination = sixBitString(bits, 302, 120)
}

// Search and rescue aircraft position report, message type 9
func decodeSARAircraft(f *Fields, bits bitField) {
	if bits.length < 128 {
		return
	}
	if sog := bits.uint(50, 10); sog != 1023 {
		v := float64(sog)
		f.Speed = &v
	}
	f.Lon, f.Lat = position(bits, 61, 89)
	f.Course = courseTenths(bits.uint(116, 12))
}

// Class B position reports, message types 18 and 19
func decodeClassBPosition(f *Fields, bits bitField) {
	if bits.length < 133 {
		return
	}
	f.Speed = speedTenths(bits.uint(46, 10))
	f.Lon, f.Lat = position(bits, 57, 85)
	f.Course = courseTenths(bits.uint(112, 12))
	f.Heading = heading(bits.uint(124, 9))

	// type 19 carries a static block as well
	if f.MsgType == 19 && bits.length >= 271 {
		f.ShipName = sixBitString(bits, 143, 120)
		f.ShipType = shipTypeEnum(int(bits.uint(263, 8)))
	}
}

// Class B static data report, message type 24, parts A and B
func decodeStaticDataReport(f *Fields, bits bitField) {
	if bits.length < 40 {
		return
	}
	switch bits.uint(38, 2) {
	case 0:
		if bits.length >= 160 {
			f.ShipName = sixBitString(bits, 40, 120)
		}
	case 1:
		if bits.length >= 132 {
			f.ShipType = shipTypeEnum(int(bits.uint(40, 8)))
			f.CallSign = sixBitString(bits, 90, 42)
		}
	}
}

// Long range broadcast, message type 27
func decodeLongRange(f *Fields, bits bitField) {
	if bits.length < 94 {
		return
	}
	f.Status = statusEnum(int(bits.uint(40, 4)))
	if lonRaw := bits.int(44, 18); lonRaw != 181*600 {
		if latRaw := bits.int(62, 17); latRaw != 91*600 {
			lon := float64(lonRaw) / 600.0
			lat := float64(latRaw) / 600.0
			f.Lon, f.Lat = &lon, &lat
		}
	}
	if sog := bits.uint(79, 6); sog != 63 {
		v := float64(sog)
		f.Speed = &v
	}
	if cog := bits.uint(85, 9); cog != 511 {
		v := float64(cog)
		f.Course = &v
	}
}

// position extracts the fine-resolution lon/lat pair used by the class
// A and B position reports. Either value at its not-available sentinel
// absents the whole pair.
func position(bits bitField, lonStart, latStart int) (*float64, *float64) {
	lonRaw := bits.int(lonStart, 28)
	latRaw := bits.int(latStart, 27)
	if lonRaw == 181*600000 || latRaw == 91*600000 {
		return nil, nil
	}
	lon := float64(lonRaw) / 600000.0
	lat := float64(latRaw) / 600000.0
	return &lon, &lat
}

func speedTenths(raw uint64) *float64 {
	if raw == 1023 {
		return nil
	}
	v := float64(raw) / 10.0
	return &v
}

func courseTenths(raw uint64) *float64 {
	if raw == 3600 {
		return nil
	}
	v := float64(raw) / 10.0
	return &v
}

func heading(raw uint64) *float64 {
	if raw == 511 {
		return nil
	}
	v := float64(raw)
	return &v
}

// bitField is the unarmored payload, one bit per entry access through
// 6-bit groups
type bitField struct {
	groups []byte // 6 significant bits per byte
	length int
}

// unarmor converts the ASCII payload to its 6-bit groups
func unarmor(payload []byte, fill int) (bitField, error) {
	groups := make([]byte, len(payload))
	for i, c := range payload {
		v := int(c) - 48
		if v > 40 {
			v -= 8
		}
		if v < 0 || v > 63 {
			return bitField{}, errors.WrapInvalid(errors.ErrDecodeFailed, "NMEADecoder", "unarmor",
				fmt.Sprintf("invalid payload character %q", c))
		}
		groups[i] = byte(v)
	}
	return bitField{groups: groups, length: len(payload)*6 - fill}, nil
}

// bit returns bit i, most significant first
func (b bitField) bit(i int) uint64 {
	return uint64(b.groups[i/6]>>(5-i%6)) & 1
}

// uint reads an unsigned big-endian field
func (b bitField) uint(start, length int) uint64 {
	var v uint64
	for i := start; i < start+length; i++ {
		v = v<<1 | b.bit(i)
	}
	return v
}

// int reads a two's-complement signed field
func (b bitField) int(start, length int) int64 {
	v := int64(b.uint(start, length))
	if v >= 1<<(length-1) {
		v -= 1 << length
	}
	return v
}

// sixBitString reads a 6-bit character string, returning nil when the
// result is empty after trimming padding
func sixBitString(b bitField, start, length int) *string {
	var sb []byte
	for i := start; i+6 <= start+length && i+6 <= b.length; i += 6 {
		v := byte(b.uint(i, 6))
		if v == 0 {
			break
		}
		if v < 32 {
			v += 64
		}
		sb = append(sb, v)
	}
	s := string(bytes.TrimRight(sb, " "))
	if s == "" {
		return nil
	}
	return &s
}
