package ais

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SUNET/ais-data-relay/errors"
)

// Class A position report for a moored vessel off Seattle
const positionSentence = "!AIVDM,1,1,,B,177KQJ5000G?tO`K>RA1wUbN0TKH,0*5C"

// Static and voyage data split over two sentences (container ship)
const (
	staticPart1 = "!AIVDM,2,1,1,A,55?MbV02;H;s<HtKR20EHE:0@T4@Dn2222222216L961O5Gf0NSQEp6ClRp8,0*1C"
	staticPart2 = "!AIVDM,2,2,1,A,88888888880,2*25"
)

func TestDecode_PositionReport(t *testing.T) {
	d := NewNMEADecoder()

	f, err := d.Decode([]byte(positionSentence))
	require.NoError(t, err)

	assert.Equal(t, 1, f.MsgType)
	assert.Equal(t, int64(477553000), f.MMSI)

	require.NotNil(t, f.Status)
	assert.Equal(t, 5, f.Status.Value)
	assert.Equal(t, "Moored", f.Status.Name)

	require.NotNil(t, f.Speed)
	assert.Equal(t, 0.0, *f.Speed)

	require.NotNil(t, f.Lon)
	require.NotNil(t, f.Lat)
	assert.InDelta(t, -122.345832, *f.Lon, 0.0001)
	assert.InDelta(t, 47.582833, *f.Lat, 0.0001)

	require.NotNil(t, f.Course)
	assert.InDelta(t, 51.0, *f.Course, 0.01)
	require.NotNil(t, f.Heading)
	assert.Equal(t, 181.0, *f.Heading)

	require.NotNil(t, f.Maneuver)
	assert.Equal(t, "Not available", f.Maneuver.Name)

	// Position reports carry no static identity
	assert.Nil(t, f.IMO)
	assert.Nil(t, f.ShipName)
	assert.Nil(t, f.Destination)
}

func TestDecode_MultipartStaticVoyage(t *testing.T) {
	d := NewNMEADecoder()

	_, err := d.Decode([]byte(staticPart1))
	require.ErrorIs(t, err, ErrIncompleteSentence)

	f, err := d.Decode([]byte(staticPart2))
	require.NoError(t, err)

	assert.Equal(t, 5, f.MsgType)
	assert.Equal(t, int64(351759000), f.MMSI)

	require.NotNil(t, f.IMO)
	assert.Equal(t, int64(9134270), *f.IMO)
	require.NotNil(t, f.CallSign)
	assert.Equal(t, "3FOF8", *f.CallSign)
	require.NotNil(t, f.ShipName)
	assert.Equal(t, "EVER DIADEM", *f.ShipName)
	require.NotNil(t, f.ShipType)
	assert.Equal(t, 70, f.ShipType.Value)
	assert.Equal(t, "Cargo", f.ShipType.Name)
	require.NotNil(t, f.Draught)
	assert.InDelta(t, 12.2, *f.Draught, 0.001)
	require.NotNil(t, f.Destination)
	assert.Equal(t, "NEW YORK", *f.Destination)
}

func TestDecode_MultipartOutOfOrderRestart(t *testing.T) {
	d := NewNMEADecoder()

	// A fresh first part discards any stale partial state for the key
	_, err := d.Decode([]byte(staticPart1))
	require.ErrorIs(t, err, ErrIncompleteSentence)
	_, err = d.Decode([]byte(staticPart1))
	require.ErrorIs(t, err, ErrIncompleteSentence)

	f, err := d.Decode([]byte(staticPart2))
	require.NoError(t, err)
	assert.Equal(t, int64(351759000), f.MMSI)
}

func TestDecode_ChecksumMismatch(t *testing.T) {
	d := NewNMEADecoder()

	corrupted := []byte("!AIVDM,1,1,,B,277KQJ5000G?tO`K>RA1wUbN0TKH,0*5C")
	_, err := d.Decode(corrupted)
	assert.ErrorIs(t, err, errors.ErrDecodeFailed)
}

func TestDecode_MalformedSentences(t *testing.T) {
	d := NewNMEADecoder()

	cases := [][]byte{
		nil,
		[]byte("$GPGGA,123519,4807.038,N*47"),
		[]byte("!AIVDM,1,1,,B,177KQJ5000"),
		[]byte("not a sentence at all"),
	}
	for _, sentence := range cases {
		_, err := d.Decode(sentence)
		assert.Error(t, err, "sentence %q should fail", sentence)
	}
}

func TestFilterSentences(t *testing.T) {
	line := []byte("!AIVDM,1,1,,B,177KQJ5000G?tO`K>RA1wUbN0TKH,0*5C\r\n" +
		"$ABVSI,r003669945,1,123456.00,0088,-043,07\r\n" +
		"   \r\n" +
		"!AIVDM,2,2,1,A,88888888880,2*25\r\n")

	frags := FilterSentences(line)
	require.Len(t, frags, 2)
	assert.Equal(t, []byte(positionSentence), frags[0])
	assert.Equal(t, []byte(staticPart2), frags[1])
}

func TestFilterSentences_Empty(t *testing.T) {
	assert.Empty(t, FilterSentences(nil))
	assert.Empty(t, FilterSentences([]byte("\r\n\r\n")))
	assert.Empty(t, FilterSentences([]byte("$ABVSI,noise\r\n")))
}
