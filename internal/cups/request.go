// Package cups implements the update-info exchange of the Configuration and
// Update Server, which provisions stations with server URIs, credentials and
// firmware.
package cups

import (
	"github.com/brocaar/basicstation-testserver/internal/backend/basicstation/structs"
)

// UpdateRequest implements the update-info request sent by the station.
type UpdateRequest struct {
	Router      structs.EUI64 `json:"router"`
	Package     string        `json:"package"`
	CUPSURI     string        `json:"cupsUri"`
	TCURI       string        `json:"tcUri"`
	CUPSCredCRC uint32        `json:"cupsCredCrc"`
	TCCredCRC   uint32        `json:"tcCredCrc"`
	Model       string        `json:"model,omitempty"`
	Station     string        `json:"station,omitempty"`

	// Keys holds the CRC-32 checksums of the signing keys trusted by the
	// station.
	Keys []uint32 `json:"keys"`
}

// Signature is a detached firmware signature together with the CRC-32 of
// the key it was created with.
type Signature struct {
	KeyCRC    uint32
	Signature []byte
}

// RouterRecord holds the target configuration of a router, resolved from
// the files in the home directory.
type RouterRecord struct {
	Router  structs.EUI64
	Version string

	CUPSURI string
	TCURI   string

	CUPSCred    []byte
	CUPSCredCRC uint32
	TCCred      []byte
	TCCredCRC   uint32

	Firmware   []byte
	Signatures []Signature
}
