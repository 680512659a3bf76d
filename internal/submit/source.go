package submit

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/h2non/filetype"
)

// TypedFilename names content typed into the text tab.
const TypedFilename = "novel.txt"

// maxContentBytes bounds what is read from a file or reader.
const maxContentBytes = 32 << 20

// Source is the content of one submission: a chosen file or typed text.
type Source struct {
	Filename string
	Data     []byte
}

// FromText wraps typed text as a file-like source named novel.txt.
func FromText(text string) Source {
	return Source{Filename: TypedFilename, Data: []byte(text)}
}

// FromFile reads a text file from disk.
func FromFile(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return Source{}, err
	}
	defer f.Close()
	return FromReader(filepath.Base(path), f)
}

// FromReader reads a named blob.
func FromReader(name string, r io.Reader) (Source, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxContentBytes+1))
	if err != nil {
		return Source{}, err
	}
	if len(data) > maxContentBytes {
		return Source{}, fmt.Errorf("content exceeds %d bytes", maxContentBytes)
	}
	return Source{Filename: name, Data: data}, nil
}

// normalize returns the text payload. Recognised binary formats and
// invalid UTF-8 are rejected.
func (s Source) normalize() (string, error) {
	if len(s.Data) == 0 {
		return "", nil
	}
	head := s.Data
	if len(head) > 262 {
		head = head[:262]
	}
	if kind, _ := filetype.Match(head); kind != filetype.Unknown {
		return "", &ValidationError{Err: ErrNotText, Detail: kind.MIME.Value}
	}
	if !utf8.Valid(s.Data) {
		return "", &ValidationError{Err: ErrNotText, Detail: "invalid utf-8"}
	}
	return strings.TrimPrefix(string(s.Data), "\ufeff"), nil
}

// wordCount is the character length of the normalized text.
func wordCount(text string) int {
	return utf8.RuneCountInString(text)
}
