package objstore

import (
	"bytes"

	"github.com/lsjoeberg/deltactl/utils"
	"github.com/xitongsys/parquet-go/source"
)

// BytesFile adapts an in-memory object to the parquet source interface, so
// parquet files fetched from any store can be read without touching disk.
type BytesFile struct {
	data []byte
	r    *bytes.Reader
}

var _ source.ParquetFile = &BytesFile{}

func NewBytesFile(data []byte) *BytesFile {
	return &BytesFile{
		data: data,
		r:    bytes.NewReader(data),
	}
}

func (f *BytesFile) Read(p []byte) (int, error) {
	return f.r.Read(p)
}

func (f *BytesFile) Seek(offset int64, whence int) (int64, error) {
	return f.r.Seek(offset, whence)
}

func (f *BytesFile) Write(_ []byte) (int, error) {
	return 0, utils.PermError("bytes file is read-only")
}

func (f *BytesFile) Close() error {
	return nil
}

func (f *BytesFile) Open(_ string) (source.ParquetFile, error) {
	return NewBytesFile(f.data), nil
}

func (f *BytesFile) Create(_ string) (source.ParquetFile, error) {
	return nil, utils.PermError("bytes file is read-only")
}
