package nvstore

import (
	"fmt"
	"os"
)

// File backs the byte-range contract with a fixed-size os.File region,
// modeling the "physical" memory-mapped EEPROM/flash mode §4.2
// references. The file is created and zero-extended to size if it does
// not already exist or is smaller than size.
type File struct {
	f    *os.File
	size int
}

// OpenFile opens (creating if necessary) path as a File store of
// exactly size bytes.
func OpenFile(path string, size int) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("nvstore: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("nvstore: stat %s: %w", path, err)
	}
	if info.Size() < int64(size) {
		if err := f.Truncate(int64(size)); err != nil {
			f.Close()
			return nil, fmt.Errorf("nvstore: truncate %s: %w", path, err)
		}
	}
	return &File{f: f, size: size}, nil
}

func (s *File) Size() int { return s.size }

func (s *File) ReadAt(off, n int) ([]byte, error) {
	if off < 0 || n < 0 || off+n > s.size {
		return nil, fmt.Errorf("nvstore: read [%d:%d] out of range (size %d)", off, off+n, s.size)
	}
	buf := make([]byte, n)
	if _, err := s.f.ReadAt(buf, int64(off)); err != nil {
		return nil, fmt.Errorf("nvstore: read at %d: %w", off, err)
	}
	return buf, nil
}

func (s *File) WriteAt(off int, data []byte) error {
	if off < 0 || off+len(data) > s.size {
		return fmt.Errorf("nvstore: write [%d:%d] out of range (size %d)", off, off+len(data), s.size)
	}
	_, err := s.f.WriteAt(data, int64(off))
	return err
}

// Close syncs and closes the underlying file.
func (s *File) Close() error {
	if err := s.f.Sync(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}
