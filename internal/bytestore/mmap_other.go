//go:build !unix && !windows

package bytestore

import (
	"errors"
	"os"
)

var errMmapUnsupported = errors.New("mmap not supported on this platform")

func mmapFile(_ *os.File, _ int64) ([]byte, error) {
	return nil, errMmapUnsupported
}

func munmapFile(_ []byte) error {
	return errMmapUnsupported
}
