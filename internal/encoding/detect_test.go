package encoding_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	enc "github.com/tallyhq/tally/internal/encoding"
)

func decode(t *testing.T, input []byte) string {
	t.Helper()

	r, err := enc.NewUTF8Reader(bytes.NewReader(input))
	require.NoError(t, err)

	out, err := io.ReadAll(r)
	require.NoError(t, err)

	return string(out)
}

func TestNewUTF8Reader(t *testing.T) {
	t.Run("PlainUTF8PassesThrough", func(t *testing.T) {
		assert.Equal(t, "Beløp;Lønn", decode(t, []byte("Beløp;Lønn")))
	})

	t.Run("StripsUTF8BOM", func(t *testing.T) {
		input := append([]byte{0xEF, 0xBB, 0xBF}, []byte("Dato;Beløp")...)

		assert.Equal(t, "Dato;Beløp", decode(t, input))
	})

	t.Run("DecodesUTF16LE", func(t *testing.T) {
		encoder := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
		input, err := encoder.Bytes([]byte("Dato;Beløp"))
		require.NoError(t, err)

		assert.Equal(t, "Dato;Beløp", decode(t, input))
	})

	t.Run("DecodesWindows1252", func(t *testing.T) {
		encoder := charmap.Windows1252.NewEncoder()
		input, err := encoder.Bytes([]byte("Beløp på kafé"))
		require.NoError(t, err)

		assert.Equal(t, "Beløp på kafé", decode(t, input))
	})

	t.Run("EmptyInput", func(t *testing.T) {
		assert.Equal(t, "", decode(t, nil))
	})
}
