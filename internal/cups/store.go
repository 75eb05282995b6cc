package cups

import (
	"encoding/json"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/brocaar/basicstation-testserver/internal/backend/basicstation/structs"
)

// ErrUnknownRouter is returned when no configuration exists for a router.
var ErrUnknownRouter = errors.New("unknown router")

// routerConfig holds the content of a cups-router-<id>.cfg file.
type routerConfig struct {
	Version string `json:"version"`
	CUPSURI string `json:"cupsUri"`
	TCURI   string `json:"tcUri"`
	CUPSID  string `json:"cupsId"`
	CredFmt string `json:"credfmt"`
}

// Store resolves router records from the home directory (router configs,
// CUPS credentials, firmware and signing keys) and the TC directory
// (LNS credentials). Files are read on every request.
type Store struct {
	homeDir string
	tcDir   string
}

// NewStore creates a new Store.
func NewStore(homeDir, tcDir string) *Store {
	return &Store{
		homeDir: homeDir,
		tcDir:   tcDir,
	}
}

// routerFileIDs returns the representations of the router id that are tried
// when looking up the router files, in order.
func routerFileIDs(router structs.EUI64) []string {
	return []string{
		router.ID6(),
		router.String(),
		strconv.FormatUint(router.Uint64(), 10),
	}
}

// Resolve returns the record for the given router.
func (s *Store) Resolve(router structs.EUI64) (RouterRecord, error) {
	var (
		id   string
		conf routerConfig
	)

	for _, candidate := range routerFileIDs(router) {
		b, err := os.ReadFile(filepath.Join(s.homeDir, "cups-router-"+candidate+".cfg"))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return RouterRecord{}, errors.Wrap(err, "read router config error")
		}

		if err := json.Unmarshal(b, &conf); err != nil {
			return RouterRecord{}, errors.Wrap(err, "unmarshal router config error")
		}
		id = candidate
		break
	}

	if id == "" {
		return RouterRecord{}, errors.Wrap(ErrUnknownRouter, router.ID6())
	}

	format := conf.CredFmt
	if format == "" {
		format = FormatDER
	}

	rec := RouterRecord{
		Router:  router,
		Version: conf.Version,
		CUPSURI: conf.CUPSURI,
		TCURI:   conf.TCURI,
	}

	for name, uri := range map[string]string{"cupsUri": rec.CUPSURI, "tcUri": rec.TCURI} {
		if len(uri) > 0xff {
			return RouterRecord{}, errors.Errorf("%s exceeds 255 bytes", name)
		}
	}

	var err error

	// a relative cupsId lives under the home directory
	cupsDir := s.homeDir
	if filepath.IsAbs(conf.CUPSID) {
		cupsDir = conf.CUPSID
	} else if conf.CUPSID != "" {
		cupsDir = filepath.Join(s.homeDir, conf.CUPSID)
	}

	rec.CUPSCred, err = s.cupsCred(cupsDir, id, format)
	if err != nil {
		return RouterRecord{}, errors.Wrap(err, "read cups credentials error")
	}
	rec.CUPSCredCRC = crc32.ChecksumIEEE(rec.CUPSCred)

	rec.TCCred, err = s.tcCred(id, format)
	if err != nil {
		return RouterRecord{}, errors.Wrap(err, "read tc credentials error")
	}
	rec.TCCredCRC = crc32.ChecksumIEEE(rec.TCCred)

	for name, cred := range map[string][]byte{"cups": rec.CUPSCred, "tc": rec.TCCred} {
		if len(cred) > 0xffff {
			return RouterRecord{}, errors.Errorf("%s credentials exceed 65535 bytes", name)
		}
	}

	if rec.Version != "" {
		if err := s.readFirmware(&rec); err != nil {
			return RouterRecord{}, err
		}
	}

	return rec, nil
}

// cupsCred returns cups.ca, cups-router-<id>.crt and cups-router-<id>.key.
func (s *Store) cupsCred(dir, id, format string) ([]byte, error) {
	return concatComponents(
		func() ([]byte, error) { return readComponent(filepath.Join(dir, "cups.ca"), format) },
		func() ([]byte, error) { return readComponent(filepath.Join(dir, "cups-router-"+id+".crt"), format) },
		func() ([]byte, error) { return readComponent(filepath.Join(dir, "cups-router-"+id+".key"), format) },
	)
}

// tcCred returns the trust (router specific, else tc.ca), certificate and
// key. Without certificate the key file holds a token.
func (s *Store) tcCred(id, format string) ([]byte, error) {
	trust, err := readComponent(filepath.Join(s.tcDir, "tc-router-"+id+".trust"), format)
	if err != nil {
		return nil, err
	}
	if isMissing(trust) {
		trust, err = readComponent(filepath.Join(s.tcDir, "tc.ca"), format)
		if err != nil {
			return nil, err
		}
	}

	cert, err := readComponent(filepath.Join(s.tcDir, "tc-router-"+id+".crt"), format)
	if err != nil {
		return nil, err
	}

	var key []byte
	keyPath := filepath.Join(s.tcDir, "tc-router-"+id+".key")
	if isMissing(cert) {
		key, err = readToken(keyPath)
	} else {
		key, err = readComponent(keyPath, format)
	}
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(trust)+len(cert)+len(key))
	out = append(out, trust...)
	out = append(out, cert...)
	return append(out, key...), nil
}

func concatComponents(fs ...func() ([]byte, error)) ([]byte, error) {
	var out []byte
	for _, f := range fs {
		b, err := f()
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

// readFirmware reads <version>.bin and the <version>.bin.<key> signature
// for every sig*.key file. A missing firmware results in an empty image,
// missing signatures are skipped.
func (s *Store) readFirmware(rec *RouterRecord) error {
	fwPath := filepath.Join(s.homeDir, rec.Version+".bin")

	fw, err := os.ReadFile(fwPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return errors.Wrap(err, "read firmware error")
		}
		log.WithFields(log.Fields{
			"router":  rec.Router,
			"version": rec.Version,
			"path":    fwPath,
		}).Warning("cups: firmware file does not exist")
	}
	rec.Firmware = fw

	keys, err := filepath.Glob(filepath.Join(s.homeDir, "sig*.key"))
	if err != nil {
		return errors.Wrap(err, "glob signing keys error")
	}
	sort.Strings(keys)

	for _, keyPath := range keys {
		key, err := os.ReadFile(keyPath)
		if err != nil {
			return errors.Wrap(err, "read signing key error")
		}

		sigPath := fwPath + "." + strings.TrimSuffix(filepath.Base(keyPath), ".key")
		sig, err := os.ReadFile(sigPath)
		if err != nil {
			if os.IsNotExist(err) {
				log.WithFields(log.Fields{
					"key":       keyPath,
					"signature": sigPath,
				}).Warning("cups: signature for signing key does not exist")
				continue
			}
			return errors.Wrap(err, "read signature error")
		}

		rec.Signatures = append(rec.Signatures, Signature{
			KeyCRC:    crc32.ChecksumIEEE(key),
			Signature: sig,
		})
	}

	return nil
}
