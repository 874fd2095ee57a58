package codec

// MultipartReader walks the framed compressed blocks that make up a
// multipart value's on-disk bytes, reassembling them one part at a time.
// It mirrors kingdb's MultipartReader (driven from BasicIterator::GetValue
// in interface/iterator.h) as a small iterator over a StreamCodec.
type MultipartReader struct {
	codec *StreamCodec
	src   []byte
	part  []byte
	valid bool
}

// NewMultipartReader creates a reader over src (the record's on-disk value
// bytes: one or more concatenated frames) using compressor to decode each
// block.
func NewMultipartReader(compressor Compressor, src []byte) *MultipartReader {
	return &MultipartReader{codec: NewStreamCodec(compressor), src: src}
}

// Begin primes the first part; call IsValid to check whether one was found.
func (m *MultipartReader) Begin() {
	m.codec.Reset()
	m.Next()
}

// IsValid reports whether the reader currently holds a decoded part.
func (m *MultipartReader) IsValid() bool { return m.valid }

// Next decodes the next part, returning whether one was found.
func (m *MultipartReader) Next() bool {
	part, err := m.codec.Decode(m.src)
	if err != nil {
		m.valid = false
		m.part = nil
		return false
	}
	m.part = part
	m.valid = true
	return true
}

// GetPart returns the currently held part's plaintext bytes.
func (m *MultipartReader) GetPart() []byte { return m.part }

// ReassembleValue drives a MultipartReader to completion and concatenates
// its parts into a single buffer of exactly uncompressedSize bytes, which
// is the shape the Read Iterator's GetValue() exposes to callers.
func ReassembleValue(compressor Compressor, src []byte, uncompressedSize uint32) ([]byte, error) {
	out := make([]byte, 0, uncompressedSize)
	r := NewMultipartReader(compressor, src)
	for r.Begin(); r.IsValid(); r.Next() {
		out = append(out, r.GetPart()...)
	}
	if uint32(len(out)) != uncompressedSize {
		return nil, ErrCorruption
	}
	return out, nil
}
