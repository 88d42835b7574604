package ingest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	return path
}

func readAll(t *testing.T, r *Reader, chunk int) [][]string {
	t.Helper()
	var chunks [][]string
	for {
		texts, err := r.ReadChunk(chunk)
		if errors.Is(err, io.EOF) {
			return chunks
		}
		require.NoError(t, err)
		chunks = append(chunks, texts)
	}
}

func TestOpenCSV_TextColumnPreferred(t *testing.T) {
	path := writeFile(t, "a.csv", []byte("id,tweet,text\n1,from tweet,from text\n2,b,\"quoted, with comma\"\n"))

	r, err := OpenCSV(path, ReaderOptions{})
	require.NoError(t, err)
	defer r.Close()

	col, err := r.SelectTextColumn()
	require.NoError(t, err)
	assert.Equal(t, "text", col)
	assert.Equal(t, [][]string{{"from text", "quoted, with comma"}}, readAll(t, r, 10))
}

func TestOpenCSV_TweetColumn(t *testing.T) {
	path := writeFile(t, "b.csv", []byte("tweet,user\nhello,u1\n"))

	r, err := OpenCSV(path, ReaderOptions{})
	require.NoError(t, err)
	defer r.Close()

	col, err := r.SelectTextColumn()
	require.NoError(t, err)
	assert.Equal(t, "tweet", col)
}

func TestOpenCSV_MissingColumn(t *testing.T) {
	path := writeFile(t, "c.csv", []byte("content,user\nhello,u1\n"))

	r, err := OpenCSV(path, ReaderOptions{})
	require.NoError(t, err)
	defer r.Close()

	_, err = r.SelectTextColumn()
	assert.ErrorIs(t, err, ErrSchema)
	_, err = r.ReadChunk(10)
	assert.ErrorIs(t, err, ErrSchema)
}

func TestOpenCSV_Chunks(t *testing.T) {
	path := writeFile(t, "d.csv", []byte("text\na\nb\nc\nd\ne\n"))

	r, err := OpenCSV(path, ReaderOptions{})
	require.NoError(t, err)
	defer r.Close()
	_, err = r.SelectTextColumn()
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, readAll(t, r, 2))
}

func TestOpenCSV_SkipsLongRowsAndPadsShortOnes(t *testing.T) {
	path := writeFile(t, "e.csv", []byte("user,text\nu1,one\nu2,two,extra\nu3\nu4,four\n"))

	r, err := OpenCSV(path, ReaderOptions{})
	require.NoError(t, err)
	defer r.Close()
	_, err = r.SelectTextColumn()
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"one", "", "four"}}, readAll(t, r, 100))
	assert.Equal(t, 1, r.Skipped())
}

func TestOpenCSV_Empty(t *testing.T) {
	r, err := OpenCSV(writeFile(t, "f.csv", nil), ReaderOptions{})
	require.NoError(t, err)
	defer r.Close()

	assert.True(t, r.Empty())
	_, err = r.ReadChunk(10)
	assert.ErrorIs(t, err, io.EOF)
}

func TestOpenCSV_HeaderOnly(t *testing.T) {
	r, err := OpenCSV(writeFile(t, "g.csv", []byte("text\n")), ReaderOptions{})
	require.NoError(t, err)
	defer r.Close()

	assert.False(t, r.Empty())
	_, err = r.SelectTextColumn()
	require.NoError(t, err)
	assert.Empty(t, readAll(t, r, 10))
}

func TestOpenCSV_BOMStripped(t *testing.T) {
	content := append([]byte{0xEF, 0xBB, 0xBF}, "text\nhai\n"...)
	r, err := OpenCSV(writeFile(t, "h.csv", content), ReaderOptions{})
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, []string{"text"}, r.Header())
	_, err = r.SelectTextColumn()
	require.NoError(t, err)
}

func TestOpenCSV_Latin1(t *testing.T) {
	path := writeFile(t, "i.csv", []byte("text\ncaf\xe9\n"))

	r, err := OpenCSV(path, ReaderOptions{})
	require.NoError(t, err)
	defer r.Close()
	_, err = r.SelectTextColumn()
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"café"}}, readAll(t, r, 10))
}

func TestOpenCSV_FallbackWhenDetectedEncodingFails(t *testing.T) {
	// Valid UTF-8 up front makes detection pick utf-8; the Latin-1 byte further into
	// the sample then fails the probe and the file is re-opened as ISO-8859-1.
	content := "text\ncaf\xc3\xa9\n" + strings.Repeat("hello world\n", 200) + "na\xefve\n"
	path := writeFile(t, "j.csv", []byte(content))
	require.Equal(t, "utf-8", DetectEncoding([]byte(content)).Name)

	r, err := OpenCSV(path, ReaderOptions{})
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, "iso-8859-1", r.Encoding())
	_, err = r.SelectTextColumn()
	require.NoError(t, err)
	chunks := readAll(t, r, 1000)
	require.Len(t, chunks, 1)
	require.Len(t, chunks[0], 202)
	assert.Equal(t, "hello world", chunks[0][1])
	assert.Equal(t, "naïve", chunks[0][201])
}

func TestOpenCSV_UTF16SampleCutInsideCharacter(t *testing.T) {
	// UTF-16LE "text\n한한\n" behind a BOM. Each 한 is 0x5C 0xD5, so a sample ending
	// after the first one ends on a byte that looks like a UTF-8 lead byte.
	content := []byte{0xFF, 0xFE, 't', 0, 'e', 0, 'x', 0, 't', 0, '\n', 0, 0x5C, 0xD5, 0x5C, 0xD5, '\n', 0}

	for _, n := range []int{13, 14} {
		t.Run(fmt.Sprintf("sample=%d", n), func(t *testing.T) {
			path := writeFile(t, "m.csv", content)
			r, err := OpenCSV(path, ReaderOptions{SampleBytes: n, Fallback: "no-such-charset"})
			require.NoError(t, err)
			defer r.Close()

			assert.Equal(t, "utf-16le", r.Encoding())
			_, err = r.SelectTextColumn()
			require.NoError(t, err)
			assert.Equal(t, [][]string{{"한한"}}, readAll(t, r, 10))
		})
	}
}

func TestOpenCSV_FallbackOnlyOnFailure(t *testing.T) {
	path := writeFile(t, "k.csv", []byte("text\n\"unterminated\n"))
	_, err := OpenCSV(path, ReaderOptions{Fallback: "no-such-charset"})
	assert.NoError(t, err)
}

func TestOpenCSV_MissingFile(t *testing.T) {
	_, err := OpenCSV(filepath.Join(t.TempDir(), "missing.csv"), ReaderOptions{})
	assert.Error(t, err)
}

func TestOpenCSV_DecodeFailure(t *testing.T) {
	// A UTF-16 file with a dangling odd byte fails the probe; the fallback is unknown.
	path := writeFile(t, "l.csv", []byte{0xFF, 0xFE, 't', 0, 'x'})

	_, err := OpenCSV(path, ReaderOptions{Fallback: "no-such-charset"})
	assert.ErrorIs(t, err, ErrDecode)
}
