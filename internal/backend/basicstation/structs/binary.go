package structs

import (
	"math"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Binary message kinds (TcMessage type field).
const (
	binaryKindUPDF         = 1
	binaryKindJREQ         = 2
	binaryKindPROPDF       = 3
	binaryKindDNTXED       = 4
	binaryKindTimeSync     = 5
	binaryKindDNMSG        = 10
	binaryKindDNSCHED      = 11
	binaryKindTimeSyncResp = 12
)

// TcMessage envelope fields.
const (
	tcMsgType     protowire.Number = 1
	tcMsgUPDF     protowire.Number = 2
	tcMsgJREQ     protowire.Number = 3
	tcMsgPROPDF   protowire.Number = 4
	tcMsgDNTXED   protowire.Number = 5
	tcMsgTimeSync protowire.Number = 6
	tcMsgDNMSG    protowire.Number = 10
)

// UplinkDataFrame fields.
const (
	updfMHDR       protowire.Number = 1
	updfDevAddr    protowire.Number = 2
	updfFCtrl      protowire.Number = 3
	updfFCnt       protowire.Number = 4
	updfFOpts      protowire.Number = 5
	updfFPort      protowire.Number = 6
	updfFRMPayload protowire.Number = 7
	updfMIC        protowire.Number = 8
	updfUpInfo     protowire.Number = 9
	updfRefTime    protowire.Number = 10
	updfPDU        protowire.Number = 11
)

// JoinRequest fields.
const (
	jreqMHDR     protowire.Number = 1
	jreqJoinEUI  protowire.Number = 2
	jreqDevEUI   protowire.Number = 3
	jreqDevNonce protowire.Number = 4
	jreqMIC      protowire.Number = 5
	jreqUpInfo   protowire.Number = 6
	jreqRefTime  protowire.Number = 7
)

// UplinkProprietaryFrame fields.
const (
	propdfFRMPayload protowire.Number = 1
	propdfUpInfo     protowire.Number = 2
	propdfRefTime    protowire.Number = 3
)

// DownlinkTransmitted fields.
const (
	dntxedDIID    protowire.Number = 1
	dntxedDevEUI  protowire.Number = 2
	dntxedRCtx    protowire.Number = 3
	dntxedXTime   protowire.Number = 4
	dntxedTxTime  protowire.Number = 5
	dntxedGPSTime protowire.Number = 6
)

// TimeSync fields.
const (
	tsyncTxTime  protowire.Number = 1
	tsyncGPSTime protowire.Number = 2
	tsyncXTime   protowire.Number = 3
)

// RadioMetaData fields.
const (
	rmdDR      protowire.Number = 1
	rmdFreq    protowire.Number = 2
	rmdRCtx    protowire.Number = 3
	rmdXTime   protowire.Number = 4
	rmdGPSTime protowire.Number = 5
	rmdRSSI    protowire.Number = 6
	rmdSNR     protowire.Number = 7
	rmdFTS     protowire.Number = 8
	rmdRxTime  protowire.Number = 9
)

// DownlinkFrame fields.
const (
	dnmsgDevEUI   protowire.Number = 1
	dnmsgDC       protowire.Number = 2
	dnmsgDIID     protowire.Number = 3
	dnmsgPDU      protowire.Number = 4
	dnmsgRxDelay  protowire.Number = 5
	dnmsgRX1DR    protowire.Number = 6
	dnmsgRX1Freq  protowire.Number = 7
	dnmsgRX2DR    protowire.Number = 8
	dnmsgRX2Freq  protowire.Number = 9
	dnmsgPriority protowire.Number = 10
	dnmsgXTime    protowire.Number = 11
	dnmsgRCtx     protowire.Number = 12
	dnmsgGPSTime  protowire.Number = 13
	dnmsgDR       protowire.Number = 14
	dnmsgFreq     protowire.Number = 15
	dnmsgMuxTime  protowire.Number = 16
)

// EncodeBinary encodes the message into its binary (TcMessage) form.
func EncodeBinary(m Message) ([]byte, error) {
	var kind uint64
	var field protowire.Number
	var sub encoder

	switch msg := m.(type) {
	case UplinkDataFrame:
		kind, field = binaryKindUPDF, tcMsgUPDF
		sub.encodeUPDF(msg)
	case JoinRequest:
		kind, field = binaryKindJREQ, tcMsgJREQ
		sub.encodeJREQ(msg)
	case UplinkProprietaryFrame:
		kind, field = binaryKindPROPDF, tcMsgPROPDF
		sub.encodePROPDF(msg)
	case DownlinkTransmitted:
		kind, field = binaryKindDNTXED, tcMsgDNTXED
		sub.encodeDNTXED(msg)
	case TimeSyncRequest:
		kind, field = binaryKindTimeSync, tcMsgTimeSync
		sub.double(tsyncTxTime, msg.TxTime)
	case TimeSyncResponse:
		kind, field = binaryKindTimeSyncResp, tcMsgTimeSync
		sub.svarint(tsyncGPSTime, msg.GPSTime)
		sub.double(tsyncTxTime, msg.TxTime)
	case TimeSyncGPSTimeTransfer:
		kind, field = binaryKindTimeSyncResp, tcMsgTimeSync
		sub.svarint(tsyncGPSTime, msg.GPSTime)
		sub.svarint(tsyncXTime, msg.XTime)
	case DownlinkFrame:
		kind, field = binaryKindDNMSG, tcMsgDNMSG
		sub.encodeDNMSG(msg)
	case Version, RouterConfig:
		return nil, errors.Wrapf(ErrBinaryNotSupported, "%T", m)
	default:
		return nil, errors.Wrapf(ErrUnrecognizedKind, "%T", m)
	}

	var out encoder
	out.varint(tcMsgType, kind)
	out.bytes(field, sub)
	return out, nil
}

// DecodeBinary decodes a binary (TcMessage) message. It reads the kind and
// the first length-delimited field, which holds the kind specific
// sub-message.
func DecodeBinary(b []byte) (Message, error) {
	var kind uint64
	var haveKind bool
	var payload []byte
	var havePayload bool

	err := decodeFields(b, func(f *field) {
		if havePayload {
			return
		}
		switch {
		case f.num == tcMsgType:
			kind = f.varint()
			haveKind = true
		case f.typ == protowire.BytesType:
			payload = f.bytes()
			havePayload = true
		}
	})
	if err != nil {
		return nil, err
	}
	if !haveKind || !havePayload {
		return nil, errors.Wrap(ErrMalformedMessage, "missing message type or payload")
	}

	switch kind {
	case binaryKindUPDF:
		return decodeUPDF(payload)
	case binaryKindJREQ:
		return decodeJREQ(payload)
	case binaryKindPROPDF:
		return decodePROPDF(payload)
	case binaryKindDNTXED:
		return decodeDNTXED(payload)
	case binaryKindTimeSync, binaryKindTimeSyncResp:
		return decodeTimeSync(kind, payload)
	case binaryKindDNMSG:
		return decodeDNMSG(payload)
	default:
		return nil, errors.Wrapf(ErrUnrecognizedKind, "binary message type: %d", kind)
	}
}

// encoder appends protobuf encoded fields.
type encoder []byte

func (e *encoder) tag(num protowire.Number, typ protowire.Type) {
	*e = protowire.AppendTag(*e, num, typ)
}

func (e *encoder) varint(num protowire.Number, v uint64) {
	e.tag(num, protowire.VarintType)
	*e = protowire.AppendVarint(*e, v)
}

func (e *encoder) svarint(num protowire.Number, v int64) {
	e.varint(num, protowire.EncodeZigZag(v))
}

func (e *encoder) fixed32(num protowire.Number, v uint32) {
	e.tag(num, protowire.Fixed32Type)
	*e = protowire.AppendFixed32(*e, v)
}

func (e *encoder) fixed64(num protowire.Number, v uint64) {
	e.tag(num, protowire.Fixed64Type)
	*e = protowire.AppendFixed64(*e, v)
}

func (e *encoder) float(num protowire.Number, v float32) {
	e.fixed32(num, math.Float32bits(v))
}

func (e *encoder) double(num protowire.Number, v float64) {
	e.fixed64(num, math.Float64bits(v))
}

func (e *encoder) bytes(num protowire.Number, v []byte) {
	e.tag(num, protowire.BytesType)
	*e = protowire.AppendBytes(*e, v)
}

func (e *encoder) encodeRadioMetaData(num protowire.Number, rmd RadioMetaData) {
	var sub encoder
	sub.varint(rmdDR, uint64(rmd.DR))
	sub.varint(rmdFreq, uint64(rmd.Frequency))
	sub.svarint(rmdRCtx, rmd.UpInfo.RCtx)
	sub.svarint(rmdXTime, rmd.UpInfo.XTime)
	sub.svarint(rmdGPSTime, rmd.UpInfo.GPSTime)
	sub.svarint(rmdRSSI, int64(rmd.UpInfo.RSSI))
	sub.float(rmdSNR, rmd.UpInfo.SNR)
	sub.svarint(rmdFTS, int64(rmd.UpInfo.FTS))
	sub.double(rmdRxTime, rmd.UpInfo.RxTime)
	e.bytes(num, sub)
}

func (e *encoder) encodeUPDF(m UplinkDataFrame) {
	if len(m.PDU) != 0 {
		e.bytes(updfPDU, m.PDU)
	} else {
		e.varint(updfMHDR, uint64(m.MHDR))
		e.fixed32(updfDevAddr, uint32(m.DevAddr))
		e.varint(updfFCtrl, uint64(m.FCtrl))
		e.varint(updfFCnt, uint64(m.FCnt))
		e.bytes(updfFOpts, m.FOpts)
		e.svarint(updfFPort, int64(m.FPort))
		e.bytes(updfFRMPayload, m.FRMPayload)
		e.fixed32(updfMIC, uint32(m.MIC))
	}
	e.encodeRadioMetaData(updfUpInfo, m.RadioMetaData)
	e.double(updfRefTime, m.RefTime)
}

func (e *encoder) encodeJREQ(m JoinRequest) {
	e.varint(jreqMHDR, uint64(m.MHDR))
	e.fixed64(jreqJoinEUI, m.JoinEUI.Uint64())
	e.fixed64(jreqDevEUI, m.DevEUI.Uint64())
	e.varint(jreqDevNonce, uint64(m.DevNonce))
	e.fixed32(jreqMIC, uint32(m.MIC))
	e.encodeRadioMetaData(jreqUpInfo, m.RadioMetaData)
	e.double(jreqRefTime, m.RefTime)
}

func (e *encoder) encodePROPDF(m UplinkProprietaryFrame) {
	e.bytes(propdfFRMPayload, m.FRMPayload)
	e.encodeRadioMetaData(propdfUpInfo, m.RadioMetaData)
	e.double(propdfRefTime, m.RefTime)
}

func (e *encoder) encodeDNTXED(m DownlinkTransmitted) {
	e.svarint(dntxedDIID, m.DIID)
	e.fixed64(dntxedDevEUI, m.DevEUI.Uint64())
	e.svarint(dntxedRCtx, m.RCtx)
	e.svarint(dntxedXTime, m.XTime)
	e.double(dntxedTxTime, m.TxTime)
	e.svarint(dntxedGPSTime, m.GPSTime)
}

func (e *encoder) encodeDNMSG(m DownlinkFrame) {
	e.fixed64(dnmsgDevEUI, m.DevEUI.Uint64())
	e.varint(dnmsgDC, uint64(m.DC))
	e.svarint(dnmsgDIID, m.DIID)
	e.bytes(dnmsgPDU, m.PDU)
	if m.RxDelay != nil {
		e.varint(dnmsgRxDelay, uint64(*m.RxDelay))
	}
	if m.RX1DR != nil {
		e.varint(dnmsgRX1DR, uint64(*m.RX1DR))
	}
	if m.RX1Freq != nil {
		e.varint(dnmsgRX1Freq, uint64(*m.RX1Freq))
	}
	if m.RX2DR != nil {
		e.varint(dnmsgRX2DR, uint64(*m.RX2DR))
	}
	if m.RX2Freq != nil {
		e.varint(dnmsgRX2Freq, uint64(*m.RX2Freq))
	}
	e.varint(dnmsgPriority, uint64(m.Priority))
	if m.XTime != nil {
		e.svarint(dnmsgXTime, *m.XTime)
	}
	if m.RCtx != nil {
		e.svarint(dnmsgRCtx, *m.RCtx)
	}
	if m.GPSTime != nil {
		e.svarint(dnmsgGPSTime, *m.GPSTime)
	}
	if m.DR != nil {
		e.varint(dnmsgDR, uint64(*m.DR))
	}
	if m.Freq != nil {
		e.varint(dnmsgFreq, uint64(*m.Freq))
	}
	e.double(dnmsgMuxTime, m.MuxTime)
}

// field gives access to the value of a single field. The first read error
// is stored in err, n holds the number of bytes consumed by the read.
type field struct {
	num protowire.Number
	typ protowire.Type
	b   []byte
	n   int
	err error
}

func (f *field) check(typ protowire.Type) bool {
	if f.err != nil {
		return false
	}
	if f.typ != typ {
		f.err = errors.Wrapf(ErrMalformedMessage, "field %d: unexpected wire type %d", f.num, f.typ)
		return false
	}
	return true
}

func (f *field) consumed(n int) bool {
	if n < 0 {
		f.err = errors.Wrapf(ErrMalformedMessage, "field %d: %s", f.num, protowire.ParseError(n))
		return false
	}
	f.n = n
	return true
}

func (f *field) varint() uint64 {
	if !f.check(protowire.VarintType) {
		return 0
	}
	v, n := protowire.ConsumeVarint(f.b)
	if !f.consumed(n) {
		return 0
	}
	return v
}

func (f *field) svarint() int64 {
	return protowire.DecodeZigZag(f.varint())
}

func (f *field) fixed32() uint32 {
	if !f.check(protowire.Fixed32Type) {
		return 0
	}
	v, n := protowire.ConsumeFixed32(f.b)
	if !f.consumed(n) {
		return 0
	}
	return v
}

func (f *field) fixed64() uint64 {
	if !f.check(protowire.Fixed64Type) {
		return 0
	}
	v, n := protowire.ConsumeFixed64(f.b)
	if !f.consumed(n) {
		return 0
	}
	return v
}

func (f *field) float() float32 {
	return math.Float32frombits(f.fixed32())
}

func (f *field) double() float64 {
	return math.Float64frombits(f.fixed64())
}

func (f *field) bytes() []byte {
	if !f.check(protowire.BytesType) {
		return nil
	}
	v, n := protowire.ConsumeBytes(f.b)
	if !f.consumed(n) {
		return nil
	}
	return v
}

// decodeFields iterates over the fields of b. Fields which are not read by
// fn are skipped.
func decodeFields(b []byte, fn func(f *field)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errors.Wrap(ErrMalformedMessage, protowire.ParseError(n).Error())
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType, protowire.Fixed32Type, protowire.Fixed64Type, protowire.BytesType:
		default:
			return errors.Wrapf(ErrMalformedMessage, "field %d: unknown wire type %d", num, typ)
		}

		f := field{num: num, typ: typ, b: b}
		fn(&f)
		if f.err != nil {
			return f.err
		}

		if f.n == 0 {
			f.n = protowire.ConsumeFieldValue(num, typ, b)
			if f.n < 0 {
				return errors.Wrapf(ErrMalformedMessage, "field %d: %s", num, protowire.ParseError(f.n))
			}
		}
		b = b[f.n:]
	}

	return nil
}

func decodeRadioMetaData(b []byte) (RadioMetaData, error) {
	var out RadioMetaData

	err := decodeFields(b, func(f *field) {
		switch f.num {
		case rmdDR:
			out.DR = int(f.varint())
		case rmdFreq:
			out.Frequency = uint32(f.varint())
		case rmdRCtx:
			out.UpInfo.RCtx = f.svarint()
		case rmdXTime:
			out.UpInfo.XTime = f.svarint()
		case rmdGPSTime:
			out.UpInfo.GPSTime = f.svarint()
		case rmdRSSI:
			out.UpInfo.RSSI = int(f.svarint())
		case rmdSNR:
			out.UpInfo.SNR = f.float()
		case rmdFTS:
			out.UpInfo.FTS = int(f.svarint())
		case rmdRxTime:
			out.UpInfo.RxTime = f.double()
		}
	})
	if err != nil {
		return out, errors.Wrap(err, "decode radio meta-data error")
	}

	return out, nil
}

func decodeUPDF(b []byte) (Message, error) {
	out := UplinkDataFrame{
		MessageType: UplinkDataFrameMessage,
		FPort:       -1,
	}
	var upInfo []byte

	err := decodeFields(b, func(f *field) {
		switch f.num {
		case updfMHDR:
			out.MHDR = uint8(f.varint())
		case updfDevAddr:
			out.DevAddr = int32(f.fixed32())
		case updfFCtrl:
			out.FCtrl = uint8(f.varint())
		case updfFCnt:
			out.FCnt = uint16(f.varint())
		case updfFOpts:
			out.FOpts = copyBytes(f.bytes())
		case updfFPort:
			out.FPort = int(f.svarint())
		case updfFRMPayload:
			out.FRMPayload = copyBytes(f.bytes())
		case updfMIC:
			out.MIC = int32(f.fixed32())
		case updfUpInfo:
			upInfo = f.bytes()
		case updfRefTime:
			out.RefTime = f.double()
		case updfPDU:
			out.PDU = copyBytes(f.bytes())
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode updf error")
	}

	if out.RadioMetaData, err = decodeRadioMetaData(upInfo); err != nil {
		return nil, err
	}

	return out, nil
}

func decodeJREQ(b []byte) (Message, error) {
	out := JoinRequest{
		MessageType: JoinRequestMessage,
	}
	var upInfo []byte

	err := decodeFields(b, func(f *field) {
		switch f.num {
		case jreqMHDR:
			out.MHDR = uint8(f.varint())
		case jreqJoinEUI:
			out.JoinEUI = EUI64FromUint64(f.fixed64())
		case jreqDevEUI:
			out.DevEUI = EUI64FromUint64(f.fixed64())
		case jreqDevNonce:
			out.DevNonce = uint16(f.varint())
		case jreqMIC:
			out.MIC = int32(f.fixed32())
		case jreqUpInfo:
			upInfo = f.bytes()
		case jreqRefTime:
			out.RefTime = f.double()
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode jreq error")
	}

	if out.RadioMetaData, err = decodeRadioMetaData(upInfo); err != nil {
		return nil, err
	}

	return out, nil
}

func decodePROPDF(b []byte) (Message, error) {
	out := UplinkProprietaryFrame{
		MessageType: ProprietaryDataFrameMessage,
	}
	var upInfo []byte

	err := decodeFields(b, func(f *field) {
		switch f.num {
		case propdfFRMPayload:
			out.FRMPayload = copyBytes(f.bytes())
		case propdfUpInfo:
			upInfo = f.bytes()
		case propdfRefTime:
			out.RefTime = f.double()
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode propdf error")
	}

	if out.RadioMetaData, err = decodeRadioMetaData(upInfo); err != nil {
		return nil, err
	}

	return out, nil
}

func decodeDNTXED(b []byte) (Message, error) {
	out := DownlinkTransmitted{
		MessageType: DownlinkTransmittedMessage,
	}

	err := decodeFields(b, func(f *field) {
		switch f.num {
		case dntxedDIID:
			out.DIID = f.svarint()
		case dntxedDevEUI:
			out.DevEUI = EUI64FromUint64(f.fixed64())
		case dntxedRCtx:
			out.RCtx = f.svarint()
		case dntxedXTime:
			out.XTime = f.svarint()
		case dntxedTxTime:
			out.TxTime = f.double()
		case dntxedGPSTime:
			out.GPSTime = f.svarint()
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode dntxed error")
	}

	return out, nil
}

// decodeTimeSync decodes the timesync sub-message. A response to a station
// request carries txtime, a transfer initiated by the server carries xtime.
func decodeTimeSync(kind uint64, b []byte) (Message, error) {
	var payload timeSyncPayload

	err := decodeFields(b, func(f *field) {
		switch f.num {
		case tsyncTxTime:
			v := f.double()
			payload.TxTime = &v
		case tsyncGPSTime:
			v := f.svarint()
			payload.GPSTime = &v
		case tsyncXTime:
			v := f.svarint()
			payload.XTime = &v
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode timesync error")
	}

	if kind == binaryKindTimeSync {
		out := TimeSyncRequest{MessageType: TimeSyncMessage}
		if payload.TxTime != nil {
			out.TxTime = *payload.TxTime
		}
		return out, nil
	}

	if payload.GPSTime == nil {
		v := int64(0)
		payload.GPSTime = &v
	}
	return timeSyncFromPayload(payload), nil
}

func decodeDNMSG(b []byte) (Message, error) {
	out := DownlinkFrame{
		MessageType: DownlinkMessage,
	}

	err := decodeFields(b, func(f *field) {
		switch f.num {
		case dnmsgDevEUI:
			out.DevEUI = EUI64FromUint64(f.fixed64())
		case dnmsgDC:
			out.DC = int(f.varint())
		case dnmsgDIID:
			out.DIID = f.svarint()
		case dnmsgPDU:
			out.PDU = copyBytes(f.bytes())
		case dnmsgRxDelay:
			v := int(f.varint())
			out.RxDelay = &v
		case dnmsgRX1DR:
			v := int(f.varint())
			out.RX1DR = &v
		case dnmsgRX1Freq:
			v := uint32(f.varint())
			out.RX1Freq = &v
		case dnmsgRX2DR:
			v := int(f.varint())
			out.RX2DR = &v
		case dnmsgRX2Freq:
			v := uint32(f.varint())
			out.RX2Freq = &v
		case dnmsgPriority:
			out.Priority = int(f.varint())
		case dnmsgXTime:
			v := f.svarint()
			out.XTime = &v
		case dnmsgRCtx:
			v := f.svarint()
			out.RCtx = &v
		case dnmsgGPSTime:
			v := f.svarint()
			out.GPSTime = &v
		case dnmsgDR:
			v := int(f.varint())
			out.DR = &v
		case dnmsgFreq:
			v := uint32(f.varint())
			out.Freq = &v
		case dnmsgMuxTime:
			out.MuxTime = f.double()
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode dnmsg error")
	}

	return out, nil
}
