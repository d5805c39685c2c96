package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	RequestLen = 2
	RecordLen  = 17
	SymbolLen  = 4

	CallStreamAll uint8 = 1
	CallResend    uint8 = 2

	// MaxResendSeq is the largest sequence the single-byte resend field can carry.
	MaxResendSeq = 255
)

var (
	ErrDecode           = errors.New("frame: decode failed")
	ErrShortRecord      = fmt.Errorf("%w: short record frame", ErrDecode)
	ErrShortRequest     = fmt.Errorf("%w: short request frame", ErrDecode)
	ErrUnknownCallType  = errors.New("frame: unknown call type")
	ErrResendOutOfRange = errors.New("frame: resend sequence out of range")
	ErrInvalidSymbol    = errors.New("frame: symbol must be 4 bytes")
)

// Request is the 2-byte client->server frame.
type Request struct {
	CallType  uint8
	ResendSeq uint8
}

func NewStreamAllRequest() Request {
	return Request{CallType: CallStreamAll}
}

// NewResendRequest fails instead of truncating sequences that do not fit the wire byte.
func NewResendRequest(seq int32) (Request, error) {
	if seq < 0 || seq > MaxResendSeq {
		return Request{}, fmt.Errorf("%w: %d not in [0,%d]", ErrResendOutOfRange, seq, MaxResendSeq)
	}
	return Request{CallType: CallResend, ResendSeq: uint8(seq)}, nil
}

func (r Request) Validate() error {
	switch r.CallType {
	case CallStreamAll, CallResend:
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrUnknownCallType, r.CallType)
	}
}

func EncodeRequest(r Request) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	seq := r.ResendSeq
	if r.CallType != CallResend {
		seq = 0
	}
	return []byte{r.CallType, seq}, nil
}

func DecodeRequest(b []byte) (Request, error) {
	if len(b) != RequestLen {
		return Request{}, fmt.Errorf("%w: got %d bytes", ErrShortRequest, len(b))
	}
	r := Request{CallType: b[0], ResendSeq: b[1]}
	if err := r.Validate(); err != nil {
		return Request{}, err
	}
	return r, nil
}

func WriteRequest(w io.Writer, r Request) error {
	b, err := EncodeRequest(r)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

func ReadRequest(r io.Reader) (Request, error) {
	var buf [RequestLen]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Request{}, ErrShortRequest
		}
		return Request{}, err
	}
	return DecodeRequest(buf[:])
}

// Record is one server->client market-data frame.
type Record struct {
	Symbol   string
	Side     byte
	Quantity int32
	Price    int32
	Sequence int32
}

func EncodeRecord(rec Record) ([]byte, error) {
	if len(rec.Symbol) != SymbolLen {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSymbol, rec.Symbol)
	}
	buf := make([]byte, RecordLen)
	copy(buf[0:4], rec.Symbol)
	buf[4] = rec.Side
	binary.BigEndian.PutUint32(buf[5:9], uint32(rec.Quantity))
	binary.BigEndian.PutUint32(buf[9:13], uint32(rec.Price))
	binary.BigEndian.PutUint32(buf[13:17], uint32(rec.Sequence))
	return buf, nil
}

func DecodeRecord(b []byte) (Record, error) {
	if len(b) != RecordLen {
		return Record{}, fmt.Errorf("%w: got %d bytes want %d", ErrShortRecord, len(b), RecordLen)
	}
	return Record{
		Symbol:   string(b[0:4]),
		Side:     b[4],
		Quantity: int32(binary.BigEndian.Uint32(b[5:9])),
		Price:    int32(binary.BigEndian.Uint32(b[9:13])),
		Sequence: int32(binary.BigEndian.Uint32(b[13:17])),
	}, nil
}

// ReadRecord accumulates partial reads until a full frame is available.
func ReadRecord(r io.Reader) (Record, error) {
	var buf [RecordLen]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Record{}, ErrShortRecord
		}
		return Record{}, err
	}
	return DecodeRecord(buf[:])
}
