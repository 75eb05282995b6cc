package cups

import (
	"encoding/binary"
)

// Sentinels for fields that do not need an update.
var (
	noURI       = []byte{0x00}
	noCred      = []byte{0x00, 0x00}
	noSignature = []byte{0x00, 0x00, 0x00, 0x00}
	noFirmware  = []byte{0x00, 0x00, 0x00, 0x00}
)

// Negotiate returns the update-info response body for the given request and
// router record. Only the fields that differ from what the station reported
// carry a payload, in the order cupsUri, tcUri, cupsCred, tcCred, signature,
// firmware.
func Negotiate(req UpdateRequest, rec RouterRecord) []byte {
	var out []byte

	out = append(out, encodeURI(req.CUPSURI, rec.CUPSURI)...)
	out = append(out, encodeURI(req.TCURI, rec.TCURI)...)
	out = append(out, encodeCred(req.CUPSCredCRC, rec.CUPSCredCRC, rec.CUPSCred)...)
	out = append(out, encodeCred(req.TCCredCRC, rec.TCCredCRC, rec.TCCred)...)

	sig, _ := encodeSignature(req, rec)
	out = append(out, sig...)
	out = append(out, encodeFirmware(req, rec)...)

	return out
}

// UpdatedFields returns the names of the fields for which Negotiate returns
// a payload.
func UpdatedFields(req UpdateRequest, rec RouterRecord) []string {
	var out []string

	if !isSentinel(encodeURI(req.CUPSURI, rec.CUPSURI)) {
		out = append(out, "cupsUri")
	}
	if !isSentinel(encodeURI(req.TCURI, rec.TCURI)) {
		out = append(out, "tcUri")
	}
	if !isSentinel(encodeCred(req.CUPSCredCRC, rec.CUPSCredCRC, rec.CUPSCred)) {
		out = append(out, "cupsCred")
	}
	if !isSentinel(encodeCred(req.TCCredCRC, rec.TCCredCRC, rec.TCCred)) {
		out = append(out, "tcCred")
	}
	if _, crc := encodeSignature(req, rec); crc != 0 {
		out = append(out, "signature")
	}
	if firmwareUpdate(req, rec) {
		out = append(out, "firmware")
	}

	return out
}

func isSentinel(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

func firmwareUpdate(req UpdateRequest, rec RouterRecord) bool {
	return rec.Version != "" && req.Package != rec.Version
}

func encodeURI(current, target string) []byte {
	if target == "" || current == target || len(target) > 0xff {
		return noURI
	}

	b := make([]byte, 0, 1+len(target))
	b = append(b, uint8(len(target)))
	return append(b, target...)
}

func encodeCred(currentCRC, targetCRC uint32, cred []byte) []byte {
	if targetCRC == 0 || currentCRC == targetCRC || len(cred) > 0xffff {
		return noCred
	}

	b := make([]byte, 0, 2+len(cred))
	b = binary.LittleEndian.AppendUint16(b, uint16(len(cred)))
	return append(b, cred...)
}

// encodeSignature returns the signature field and the CRC of the selected
// key. The first signature, in record order, whose key is trusted by the
// station is selected.
func encodeSignature(req UpdateRequest, rec RouterRecord) ([]byte, uint32) {
	if !firmwareUpdate(req, rec) || len(req.Keys) == 0 {
		return noSignature, 0
	}

	for _, sig := range rec.Signatures {
		for _, k := range req.Keys {
			if sig.KeyCRC != k {
				continue
			}

			b := make([]byte, 0, 8+len(sig.Signature))
			b = binary.LittleEndian.AppendUint32(b, uint32(len(sig.Signature)+4))
			b = binary.LittleEndian.AppendUint32(b, sig.KeyCRC)
			return append(b, sig.Signature...), sig.KeyCRC
		}
	}

	return noSignature, 0
}

func encodeFirmware(req UpdateRequest, rec RouterRecord) []byte {
	if !firmwareUpdate(req, rec) {
		return noFirmware
	}

	b := make([]byte, 0, 4+len(rec.Firmware))
	b = binary.LittleEndian.AppendUint32(b, uint32(len(rec.Firmware)))
	return append(b, rec.Firmware...)
}
