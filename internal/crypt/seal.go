package crypt

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// NoncePrefixSize is the random per-entry portion of each chunk nonce;
	// the remaining 8 bytes carry the chunk counter.
	NoncePrefixSize = chacha20poly1305.NonceSizeX - 8

	// TagSize is the Poly1305 authentication tag length.
	TagSize = chacha20poly1305.Overhead

	// DefaultChunkSize is the plaintext size of one sealed chunk.
	DefaultChunkSize = 1 << 20

	// finalFlag marks the counter of the last chunk in a stream so
	// truncation after any chunk boundary is detected.
	finalFlag = uint64(1) << 63
)

// ErrAuthentication is returned when sealed data fails tag verification.
// It signals tampering or corruption, never a wrong passphrase: passphrase
// mistakes surface earlier, when the manifest is opened.
var ErrAuthentication = errors.New("sealpack: payload authentication failed")

// NewNoncePrefix returns a fresh random nonce prefix for one entry.
func NewNoncePrefix() ([]byte, error) {
	prefix := make([]byte, NoncePrefixSize)
	if _, err := rand.Read(prefix); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return prefix, nil
}

func chunkNonce(prefix []byte, counter uint64, final bool) []byte {
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	copy(nonce, prefix)
	if final {
		counter |= finalFlag
	}
	binary.BigEndian.PutUint64(nonce[NoncePrefixSize:], counter)
	return nonce
}

// SealWriter encrypts a stream as framed AEAD chunks.
//
// Each chunk is written as a big-endian uint32 ciphertext length followed
// by the ciphertext. Chunk nonces combine the entry's random prefix with a
// monotonically increasing counter; the last chunk's counter carries a
// final marker so a truncated stream never verifies. Close must be called
// to seal the final chunk.
type SealWriter struct {
	w         io.Writer
	aead      cipher.AEAD
	prefix    []byte
	ad        []byte
	buf       []byte
	n         int
	counter   uint64
	chunkSize int
	lastTag   [TagSize]byte
	closed    bool
}

// NewSealWriter creates a chunked seal stream over w.
//
// The associated data binds the ciphertext to its entry (the entry path)
// so payload blocks cannot be swapped between entries. A chunkSize of zero
// uses DefaultChunkSize.
func NewSealWriter(w io.Writer, key, noncePrefix, ad []byte, chunkSize int) (*SealWriter, error) {
	if len(noncePrefix) != NoncePrefixSize {
		return nil, fmt.Errorf("crypt: nonce prefix must be %d bytes, got %d", NoncePrefixSize, len(noncePrefix))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &SealWriter{
		w:         w,
		aead:      aead,
		prefix:    append([]byte(nil), noncePrefix...),
		ad:        append([]byte(nil), ad...),
		buf:       make([]byte, chunkSize),
		chunkSize: chunkSize,
	}, nil
}

// Write implements io.Writer, sealing full chunks as they accumulate.
func (sw *SealWriter) Write(p []byte) (int, error) {
	if sw.closed {
		return 0, errors.New("crypt: write after close")
	}
	total := len(p)
	for len(p) > 0 {
		n := copy(sw.buf[sw.n:], p)
		sw.n += n
		p = p[n:]
		if sw.n == sw.chunkSize {
			if err := sw.flush(false); err != nil {
				return total - len(p), err
			}
		}
	}
	return total, nil
}

// Close seals the final chunk. Every stream ends with a final-marked chunk,
// so even an empty entry produces one authenticated chunk.
func (sw *SealWriter) Close() error {
	if sw.closed {
		return nil
	}
	sw.closed = true
	return sw.flush(true)
}

// Tag returns the authentication tag of the final chunk. Valid after Close.
func (sw *SealWriter) Tag() []byte {
	return sw.lastTag[:]
}

func (sw *SealWriter) flush(final bool) error {
	nonce := chunkNonce(sw.prefix, sw.counter, final)
	ct := sw.aead.Seal(nil, nonce, sw.buf[:sw.n], sw.ad)
	sw.counter++
	sw.n = 0

	copy(sw.lastTag[:], ct[len(ct)-TagSize:])

	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(ct)))
	if _, err := sw.w.Write(hdr[:]); err != nil {
		return fmt.Errorf("write chunk header: %w", err)
	}
	if _, err := sw.w.Write(ct); err != nil {
		return fmt.Errorf("write chunk: %w", err)
	}
	return nil
}

// OpenReader decrypts a stream produced by SealWriter.
//
// Any verification failure, reordering, truncation, or trailing garbage
// surfaces as ErrAuthentication.
type OpenReader struct {
	r         io.Reader
	aead      cipher.AEAD
	prefix    []byte
	ad        []byte
	buf       []byte
	ptbuf     []byte
	pt        []byte
	counter   uint64
	chunkSize int
	lastTag   [TagSize]byte
	final     bool
	err       error
}

// NewOpenReader creates a reader that unseals a chunked stream from r.
// Key, nonce prefix, associated data, and chunk size must match the writer.
func NewOpenReader(r io.Reader, key, noncePrefix, ad []byte, chunkSize int) (*OpenReader, error) {
	if len(noncePrefix) != NoncePrefixSize {
		return nil, fmt.Errorf("crypt: nonce prefix must be %d bytes, got %d", NoncePrefixSize, len(noncePrefix))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &OpenReader{
		r:         r,
		aead:      aead,
		prefix:    append([]byte(nil), noncePrefix...),
		ad:        append([]byte(nil), ad...),
		buf:       make([]byte, 4+chunkSize+TagSize),
		ptbuf:     make([]byte, chunkSize),
		chunkSize: chunkSize,
	}, nil
}

// Read implements io.Reader.
func (or *OpenReader) Read(p []byte) (int, error) {
	if len(or.pt) == 0 && or.err == nil {
		or.err = or.next()
	}
	if len(or.pt) > 0 {
		n := copy(p, or.pt)
		or.pt = or.pt[n:]
		return n, nil
	}
	return 0, or.err
}

// Tag returns the authentication tag of the final chunk. Valid once Read
// has returned io.EOF.
func (or *OpenReader) Tag() []byte {
	return or.lastTag[:]
}

// next reads and verifies the following chunk.
func (or *OpenReader) next() error {
	if or.final {
		// The final chunk must also end the underlying stream.
		var scratch [1]byte
		switch _, err := io.ReadFull(or.r, scratch[:]); err {
		case io.EOF:
			return io.EOF
		case nil:
			return fmt.Errorf("%w: data after final chunk", ErrAuthentication)
		default:
			return err
		}
	}

	if _, err := io.ReadFull(or.r, or.buf[:4]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return fmt.Errorf("%w: truncated stream", ErrAuthentication)
		}
		return err
	}
	ctLen := binary.BigEndian.Uint32(or.buf[:4])
	if ctLen < TagSize || ctLen > uint32(or.chunkSize+TagSize) {
		return fmt.Errorf("%w: invalid chunk length %d", ErrAuthentication, ctLen)
	}
	ct := or.buf[4 : 4+ctLen]
	if _, err := io.ReadFull(or.r, ct); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return fmt.Errorf("%w: truncated chunk", ErrAuthentication)
		}
		return err
	}

	// Decrypt into a separate buffer: a failed Open wipes its destination,
	// and the ciphertext must survive the retry with the final nonce.
	pt, err := or.aead.Open(or.ptbuf[:0], chunkNonce(or.prefix, or.counter, false), ct, or.ad)
	if err != nil {
		pt, err = or.aead.Open(or.ptbuf[:0], chunkNonce(or.prefix, or.counter, true), ct, or.ad)
		if err != nil {
			return ErrAuthentication
		}
		or.final = true
	}
	copy(or.lastTag[:], ct[len(ct)-TagSize:])
	or.counter++

	// Only the final chunk may be short; anything else is a forged stream.
	if !or.final && len(pt) != or.chunkSize {
		return fmt.Errorf("%w: short interior chunk", ErrAuthentication)
	}

	or.pt = pt
	if len(pt) == 0 {
		return or.next()
	}
	return nil
}
