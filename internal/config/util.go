package config

import (
	"errors"
	"hash/fnv"
	"io/fs"
)

func hashBytes(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

func isNotExist(err error) bool { return errors.Is(err, fs.ErrNotExist) }
