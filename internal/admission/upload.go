package admission

import (
	"bytes"
	"io"
)

// ReadLimited reads at most limit bytes from r, returning ErrTooLarge when more
// remain.
func ReadLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, ErrTooLarge
	}
	return data, nil
}

// BytesUpload is an in-memory Upload
type BytesUpload []byte

func (b BytesUpload) Size() int64 { return int64(len(b)) }

func (b BytesUpload) Read(limit int64) ([]byte, error) {
	if len(b) == 0 {
		return nil, ErrMissing
	}
	return ReadLimited(bytes.NewReader(b), limit)
}
