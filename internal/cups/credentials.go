package cups

import (
	"bytes"
	"encoding/base64"
	"os"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// Credential formats.
const (
	FormatPEM = "PEM"
	FormatDER = "DER"
)

// missingComponent replaces a credential component which does not exist.
var missingComponent = []byte{0x00, 0x00, 0x00, 0x00}

const lineEnd = `\s*\r?\n`

var (
	lineEndRegexp = regexp.MustCompile(lineEnd)
	pemRegexp     = regexp.MustCompile(`-+BEGIN ([^-]+)-+` + lineEnd + `((?:[0-9A-Za-z+/= ]+` + lineEnd + `)+)-+END ([^-]+)-+` + lineEnd)
)

// NormalizePEM returns the PEM blocks found in data. Line endings and
// trailing whitespace are normalized to a single "\n", so that the CRC of
// the result does not depend on how the file was edited. With FormatDER the
// decoded block contents are returned instead.
func NormalizePEM(data []byte, format string) ([][]byte, error) {
	var out [][]byte

	for _, m := range pemRegexp.FindAllSubmatchIndex(data, -1) {
		begin := data[m[2]:m[3]]
		end := data[m[6]:m[7]]
		if !bytes.Equal(begin, end) {
			continue
		}

		if format == FormatDER {
			body := strings.Join(strings.Fields(string(data[m[4]:m[5]])), "")
			b, err := base64.StdEncoding.DecodeString(body)
			if err != nil {
				return nil, errors.Wrap(err, "decode pem body error")
			}
			out = append(out, b)
		} else {
			out = append(out, lineEndRegexp.ReplaceAll(data[m[0]:m[1]], []byte("\n")))
		}
	}

	return out, nil
}

// readComponent returns the first normalized PEM block of the given file. A
// file without PEM blocks is used as-is (DER), or with normalized line
// endings (PEM). A missing file results in four zero bytes.
func readComponent(path string, format string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return missingComponent, nil
		}
		return nil, errors.Wrap(err, "read credential file error")
	}

	blocks, err := NormalizePEM(data, format)
	if err != nil {
		return nil, errors.Wrapf(err, "normalize %s error", path)
	}

	if len(blocks) != 0 {
		return blocks[0], nil
	}

	if format == FormatDER {
		return data, nil
	}
	return lineEndRegexp.ReplaceAll(data, []byte("\n")), nil
}

// readToken returns the token stored in the given file as HTTP header line.
func readToken(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return missingComponent, nil
		}
		return nil, errors.Wrap(err, "read token file error")
	}

	return []byte(strings.TrimSpace(string(data)) + "\r\n"), nil
}

func isMissing(b []byte) bool {
	return bytes.Equal(b, missingComponent)
}
