package cups

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const testPEM = "-----BEGIN CERTIFICATE-----\n" +
	"aGVsbG8g\n" +
	"d29ybGQ=\n" +
	"-----END CERTIFICATE-----\n"

func TestNormalizePEM(t *testing.T) {
	t.Run("line endings", func(t *testing.T) {
		assert := require.New(t)

		crlf := strings.ReplaceAll(testPEM, "\n", "  \r\n")

		a, err := NormalizePEM([]byte(testPEM), FormatPEM)
		assert.NoError(err)
		b, err := NormalizePEM([]byte(crlf), FormatPEM)
		assert.NoError(err)

		assert.Len(a, 1)
		assert.Equal([]byte(testPEM), a[0])
		assert.Equal(a, b)
	})

	t.Run("der", func(t *testing.T) {
		assert := require.New(t)

		blocks, err := NormalizePEM([]byte(testPEM+testPEM), FormatDER)
		assert.NoError(err)
		assert.Equal([][]byte{[]byte("hello world"), []byte("hello world")}, blocks)
	})

	t.Run("mismatching labels", func(t *testing.T) {
		assert := require.New(t)

		data := strings.Replace(testPEM, "END CERTIFICATE", "END PRIVATE KEY", 1)
		blocks, err := NormalizePEM([]byte(data), FormatPEM)
		assert.NoError(err)
		assert.Empty(blocks)
	})

	t.Run("invalid base64", func(t *testing.T) {
		data := strings.Replace(testPEM, "aGVsbG8g", "aGVsbG8", 1)
		_, err := NormalizePEM([]byte(data), FormatDER)
		require.Error(t, err)
	})
}

func TestReadComponent(t *testing.T) {
	assert := require.New(t)
	dir := t.TempDir()

	b, err := readComponent(filepath.Join(dir, "missing.crt"), FormatPEM)
	assert.NoError(err)
	assert.True(isMissing(b))

	assert.NoError(os.WriteFile(filepath.Join(dir, "raw.der"), []byte{0x30, 0x82, 0x01}, 0644))
	b, err = readComponent(filepath.Join(dir, "raw.der"), FormatDER)
	assert.NoError(err)
	assert.Equal([]byte{0x30, 0x82, 0x01}, b)

	assert.NoError(os.WriteFile(filepath.Join(dir, "cert.pem"), []byte(strings.ReplaceAll(testPEM, "\n", "\r\n")), 0644))
	b, err = readComponent(filepath.Join(dir, "cert.pem"), FormatDER)
	assert.NoError(err)
	assert.Equal([]byte("hello world"), b)
}

func TestReadToken(t *testing.T) {
	assert := require.New(t)
	dir := t.TempDir()

	b, err := readToken(filepath.Join(dir, "tc.key"))
	assert.NoError(err)
	assert.True(isMissing(b))

	assert.NoError(os.WriteFile(filepath.Join(dir, "tc.key"), []byte("  Authorization: Bearer abc \n\n"), 0644))
	b, err = readToken(filepath.Join(dir, "tc.key"))
	assert.NoError(err)
	assert.Equal("Authorization: Bearer abc\r\n", string(b))
}
