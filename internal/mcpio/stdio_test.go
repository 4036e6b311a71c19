package mcpio

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderNext(t *testing.T) {
	in := strings.NewReader(`{"method":"tools/call","id":1,"params":{"name":"snapshot","arguments":{}}}` + "\n\n")
	r := NewReader(in)

	req, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "tools/call", req.Method)
	assert.Equal(t, "snapshot", req.Params.Name)

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderMalformedLine(t *testing.T) {
	r := NewReader(strings.NewReader("not json\n"))
	_, err := r.Next()
	require.Error(t, err)
}

func TestWriterWritesOneLinePerResponse(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.Write(Response{Content: []Part{TextPart("a")}}))
	require.NoError(t, w.Write(Response{Content: []Part{TextPart("b")}, IsError: true}))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"a"`)
	assert.Contains(t, lines[1], `"isError":true`)
}

func TestImagePartEncodesBase64(t *testing.T) {
	p := ImagePart("image/png", []byte{0x01, 0x02, 0x03})
	assert.Equal(t, "image/png", p.MimeType)
	assert.NotEmpty(t, p.Data)
}
