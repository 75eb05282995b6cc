package structs

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/brocaar/basicstation-testserver/internal/regions"
)

func intPtr(v int) *int          { return &v }
func uint32Ptr(v uint32) *uint32 { return &v }
func int64Ptr(v int64) *int64    { return &v }

func testRadioMetaData() RadioMetaData {
	return RadioMetaData{
		DR:        5,
		Frequency: 868100000,
		UpInfo: RadioMetaDataUpInfo{
			RCtx:    -1,
			XTime:   0x1f000000abcdef,
			GPSTime: 1381327810123456,
			RSSI:    -110,
			SNR:     -7.5,
			FTS:     -1,
			RxTime:  1700000000.25,
		},
	}
}

func maxPayload() HEXBytes {
	return HEXBytes(bytes.Repeat([]byte{0xa5}, 255))
}

// messages returns the messages that must survive an encode / decode cycle in
// both encodings.
func messages() map[string]Message {
	return map[string]Message{
		"updf": UplinkDataFrame{
			RadioMetaData: testRadioMetaData(),
			MessageType:   UplinkDataFrameMessage,
			MHDR:          0x80,
			DevAddr:       -10,
			FCtrl:         0x82,
			FCnt:          65535,
			FOpts:         HEXBytes{0x02, 0x03},
			FPort:         1,
			FRMPayload:    maxPayload(),
			MIC:           -2147483648,
			RefTime:       1700000000.5,
		},
		"updf zero": UplinkDataFrame{
			MessageType: UplinkDataFrameMessage,
			FPort:       -1,
		},
		"updf pdu only": UplinkDataFrame{
			RadioMetaData: testRadioMetaData(),
			MessageType:   UplinkDataFrameMessage,
			FPort:         -1,
			PDU:           HEXBytes{0x40, 0x04, 0x03, 0x02, 0x01, 0x00, 0x01, 0x00, 0x0a, 0x0b, 0x0c, 0x0d},
		},
		"jreq": JoinRequest{
			RadioMetaData: testRadioMetaData(),
			MessageType:   JoinRequestMessage,
			JoinEUI:       EUI64{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08},
			DevEUI:        EUI64{0xff, 0xfe, 0xfd, 0xfc, 0xfb, 0xfa, 0xf9, 0xf8},
			DevNonce:      65535,
			MIC:           2147483647,
			RefTime:       -1,
		},
		"propdf": UplinkProprietaryFrame{
			RadioMetaData: testRadioMetaData(),
			MessageType:   ProprietaryDataFrameMessage,
			FRMPayload:    maxPayload(),
		},
		"dntxed": DownlinkTransmitted{
			MessageType: DownlinkTransmittedMessage,
			DIID:        2147483646,
			DevEUI:      EUI64{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08},
			RCtx:        0,
			XTime:       -1,
			TxTime:      123.456,
			GPSTime:     1381327810123456,
		},
		"timesync request": TimeSyncRequest{
			MessageType: TimeSyncMessage,
			TxTime:      0,
		},
		"timesync response": TimeSyncResponse{
			MessageType: TimeSyncMessage,
			TxTime:      1700000000.125,
			GPSTime:     1381327810123456,
		},
		"timesync transfer": TimeSyncGPSTimeTransfer{
			MessageType: TimeSyncMessage,
			XTime:       0,
			GPSTime:     -1,
		},
		"dnmsg": DownlinkFrame{
			MessageType: DownlinkMessage,
			DevEUI:      EUI64{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08},
			DC:          ClassA,
			DIID:        1,
			PDU:         HEXBytes{0x60, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x74, 0x65, 0x73, 0x74, 0x00, 0x00, 0x00, 0x00},
			Priority:    0,
			RxDelay:     intPtr(1),
			RX1DR:       intPtr(0),
			RX1Freq:     uint32Ptr(868100000),
			RX2DR:       intPtr(0),
			RX2Freq:     uint32Ptr(869525000),
			XTime:       int64Ptr(-5),
			RCtx:        int64Ptr(0),
			MuxTime:     1700000000.75,
		},
		"dnmsg class c": DownlinkFrame{
			MessageType: DownlinkMessage,
			DC:          ClassC,
			DIID:        -1,
			Priority:    255,
			DR:          intPtr(3),
			Freq:        uint32Ptr(869525000),
			GPSTime:     int64Ptr(1381327810123456),
		},
	}
}

func TestRoundTrip(t *testing.T) {
	for _, enc := range []Encoding{TextualEncoding, BinaryEncoding} {
		for name, msg := range messages() {
			t.Run(enc.String()+"/"+name, func(t *testing.T) {
				assert := require.New(t)

				b, err := Encode(enc, msg)
				assert.NoError(err)

				out, err := Decode(enc, b)
				assert.NoError(err)
				assert.Equal(msg, out)
				assert.Equal(msg.Kind(), out.Kind())
			})
		}
	}
}

func TestTextualOnly(t *testing.T) {
	c, err := regions.Default()
	require.NoError(t, err)
	rc, r, err := c.RouterConfig("US902_8ch")
	require.NoError(t, err)

	dcEnabled := true
	routerConfig := NewRouterConfig(rc, r)
	routerConfig.NetID = []uint32{1}
	routerConfig.MuxTime = 1700000000.5
	routerConfig.DutyCycleEnabled = &dcEnabled
	routerConfig.DCBandLimitsPermille = map[string]int{"L": 10}

	tests := []Message{
		Version{
			MessageType:  VersionMessage,
			Station:      "2.0.6(rpi/std)",
			Firmware:     "1.0.0",
			Package:      "1.0.0",
			Model:        "rpi",
			Protocol:     2,
			Features:     "rmtsh gps protobuf",
			Capabilities: []string{"protobuf"},
		},
		routerConfig,
		TimeSyncResponse{
			MessageType: TimeSyncMessage,
			TxTime:      1.5,
			GPSTime:     2,
			MuxTime:     1700000000.5,
		},
	}

	for _, msg := range tests {
		t.Run(msg.Kind().String(), func(t *testing.T) {
			assert := require.New(t)

			b, err := EncodeTextual(msg)
			assert.NoError(err)

			out, err := DecodeTextual(b)
			assert.NoError(err)
			assert.Equal(msg, out)
		})
	}

	t.Run("no binary encoding", func(t *testing.T) {
		assert := require.New(t)

		_, err := EncodeBinary(Version{})
		assert.Equal(ErrBinaryNotSupported, errors.Cause(err))

		_, err = EncodeBinary(routerConfig)
		assert.Equal(ErrBinaryNotSupported, errors.Cause(err))
	})
}

func TestSNR(t *testing.T) {
	assert := require.New(t)

	updf := UplinkDataFrame{
		MessageType: UplinkDataFrameMessage,
		FPort:       -1,
		RadioMetaData: RadioMetaData{
			UpInfo: RadioMetaDataUpInfo{
				SNR: 12.3,
			},
		},
	}

	b, err := EncodeTextual(updf)
	assert.NoError(err)

	var raw struct {
		UpInfo struct {
			SNR json.Number `json:"snr"`
		} `json:"upinfo"`
	}
	assert.NoError(json.Unmarshal(b, &raw))
	assert.Equal("123", raw.UpInfo.SNR.String())

	msg, err := DecodeTextual(b)
	assert.NoError(err)

	b, err = EncodeBinary(msg)
	assert.NoError(err)

	msg, err = DecodeBinary(b)
	assert.NoError(err)
	assert.InDelta(12.3, msg.(UplinkDataFrame).UpInfo.SNR, 0.1)

	// the textual decoder divides by 10
	msg, err = DecodeTextual([]byte(`{"msgtype":"updf","upinfo":{"snr":-55}}`))
	assert.NoError(err)
	assert.Equal(float32(-5.5), msg.(UplinkDataFrame).UpInfo.SNR)
}

func TestTimeSyncVariants(t *testing.T) {
	tests := []struct {
		Name     string
		JSON     string
		Expected Message
	}{
		{
			Name:     "request",
			JSON:     `{"msgtype":"timesync","txtime":1234.5}`,
			Expected: TimeSyncRequest{MessageType: TimeSyncMessage, TxTime: 1234.5},
		},
		{
			Name:     "response",
			JSON:     `{"msgtype":"timesync","txtime":1234.5,"gpstime":1000,"MuxTime":1.5}`,
			Expected: TimeSyncResponse{MessageType: TimeSyncMessage, TxTime: 1234.5, GPSTime: 1000, MuxTime: 1.5},
		},
		{
			Name:     "transfer",
			JSON:     `{"msgtype":"timesync","xtime":99,"gpstime":1000}`,
			Expected: TimeSyncGPSTimeTransfer{MessageType: TimeSyncMessage, XTime: 99, GPSTime: 1000},
		},
	}

	for _, tst := range tests {
		t.Run(tst.Name, func(t *testing.T) {
			assert := require.New(t)

			out, err := DecodeTextual([]byte(tst.JSON))
			assert.NoError(err)
			assert.Equal(tst.Expected, out)
		})
	}

	t.Run("response never carries xtime", func(t *testing.T) {
		assert := require.New(t)

		b, err := EncodeTextual(TimeSyncResponse{TxTime: 1, GPSTime: 2})
		assert.NoError(err)
		assert.NotContains(string(b), "xtime")

		b, err = EncodeTextual(TimeSyncGPSTimeTransfer{XTime: 1, GPSTime: 2})
		assert.NoError(err)
		assert.NotContains(string(b), "txtime")
	})
}

func TestDecodeTextualErrors(t *testing.T) {
	tests := []struct {
		Name  string
		JSON  string
		Error error
	}{
		{
			Name:  "invalid json",
			JSON:  `{"msgtype":`,
			Error: ErrMalformedMessage,
		},
		{
			Name:  "invalid field type",
			JSON:  `{"msgtype":"updf","DevAddr":"foo"}`,
			Error: ErrMalformedMessage,
		},
		{
			Name:  "invalid hex",
			JSON:  `{"msgtype":"dnmsg","pdu":"xyz"}`,
			Error: ErrMalformedMessage,
		},
		{
			Name:  "unknown msgtype",
			JSON:  `{"msgtype":"runcmd"}`,
			Error: ErrUnrecognizedKind,
		},
	}

	for _, tst := range tests {
		t.Run(tst.Name, func(t *testing.T) {
			assert := require.New(t)

			_, err := DecodeTextual([]byte(tst.JSON))
			assert.Equal(tst.Error, errors.Cause(err))
		})
	}
}

func TestDecodeBinaryErrors(t *testing.T) {
	valid, err := EncodeBinary(messages()["updf"])
	require.NoError(t, err)

	envelope := func(kind uint64, field protowire.Number, sub []byte) []byte {
		var e encoder
		e.varint(tcMsgType, kind)
		e.bytes(field, sub)
		return e
	}

	var wrongType encoder
	wrongType.bytes(updfMHDR, []byte{0x01})

	var badUpInfo encoder
	badUpInfo.bytes(updfUpInfo, []byte{0x08})

	tests := []struct {
		Name  string
		Bytes []byte
		Error error
	}{
		{
			Name:  "empty",
			Bytes: nil,
			Error: ErrMalformedMessage,
		},
		{
			Name:  "truncated",
			Bytes: valid[:len(valid)-1],
			Error: ErrMalformedMessage,
		},
		{
			Name:  "missing payload",
			Bytes: protowire.AppendVarint(protowire.AppendTag(nil, tcMsgType, protowire.VarintType), binaryKindUPDF),
			Error: ErrMalformedMessage,
		},
		{
			Name:  "unknown wire type",
			Bytes: protowire.AppendTag(nil, tcMsgType, protowire.StartGroupType),
			Error: ErrMalformedMessage,
		},
		{
			Name:  "wrong wire type on known field",
			Bytes: envelope(binaryKindUPDF, tcMsgUPDF, wrongType),
			Error: ErrMalformedMessage,
		},
		{
			Name:  "truncated radio meta-data",
			Bytes: envelope(binaryKindUPDF, tcMsgUPDF, badUpInfo),
			Error: ErrMalformedMessage,
		},
		{
			Name:  "dnsched",
			Bytes: envelope(binaryKindDNSCHED, 11, nil),
			Error: ErrUnrecognizedKind,
		},
		{
			Name:  "unknown kind",
			Bytes: envelope(99, 2, nil),
			Error: ErrUnrecognizedKind,
		},
	}

	for _, tst := range tests {
		t.Run(tst.Name, func(t *testing.T) {
			assert := require.New(t)

			_, err := DecodeBinary(tst.Bytes)
			assert.Equal(tst.Error, errors.Cause(err))
		})
	}
}

func TestDecodeBinarySkipsUnknownFields(t *testing.T) {
	assert := require.New(t)

	msg := messages()["updf"].(UplinkDataFrame)

	var sub encoder
	sub.varint(99, 7)
	sub.encodeUPDF(msg)
	sub.bytes(100, []byte{0x01, 0x02})
	sub.fixed64(101, 1)
	sub.fixed32(102, 1)

	var e encoder
	e.varint(tcMsgType, binaryKindUPDF)
	e.bytes(tcMsgUPDF, sub)
	e.varint(20, 1)

	out, err := DecodeBinary(e)
	assert.NoError(err)
	assert.Equal(msg, out)
}

func TestVersionHasCapability(t *testing.T) {
	assert := require.New(t)

	v := Version{Features: "rmtsh  gps\tprotobuf"}
	assert.True(v.HasCapability("protobuf"))
	assert.True(v.HasCapability("gps"))
	assert.False(v.HasCapability("proto"))

	v = Version{Features: "rmtsh", Capabilities: []string{"protobuf"}}
	assert.True(v.HasCapability("protobuf"))

	assert.False(Version{}.HasCapability("protobuf"))
}
