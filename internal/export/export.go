// Package export renders ordered records in the external JSON output shape.
package export

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/danmuck/abxfeed/internal/protocol/frame"
	"github.com/segmentio/encoding/json"
)

// ErrInvalidText rejects a symbol or side that is not valid UTF-8 and so could
// not be written verbatim.
var ErrInvalidText = errors.New("export: field is not valid UTF-8")

// Packet is the output contract for one record. PacketSequence carries the wire
// sequence field under its external name.
type Packet struct {
	Symbol           string `json:"symbol"`
	BuySellIndicator string `json:"buysellindicator"`
	Quantity         int32  `json:"quantity"`
	Price            int32  `json:"price"`
	PacketSequence   int32  `json:"packetSequence"`
}

func FromRecord(rec frame.Record) Packet {
	return Packet{
		Symbol:           rec.Symbol,
		BuySellIndicator: string([]byte{rec.Side}),
		Quantity:         rec.Quantity,
		Price:            rec.Price,
		PacketSequence:   rec.Sequence,
	}
}

// FromRecords keeps the input order; callers pass a sequence-ordered snapshot.
func FromRecords(recs []frame.Record) []Packet {
	out := make([]Packet, 0, len(recs))
	for _, rec := range recs {
		out = append(out, FromRecord(rec))
	}
	return out
}

// Write encodes packets as a JSON array indented with four spaces. Nothing is
// written when any text field is invalid UTF-8.
func Write(w io.Writer, packets []Packet) error {
	if packets == nil {
		packets = []Packet{}
	}
	for _, p := range packets {
		if err := p.validate(); err != nil {
			return err
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)
	return enc.Encode(packets)
}

func (p Packet) validate() error {
	if !utf8.ValidString(p.Symbol) {
		return fmt.Errorf("%w: symbol %q seq=%d", ErrInvalidText, p.Symbol, p.PacketSequence)
	}
	if !utf8.ValidString(p.BuySellIndicator) {
		return fmt.Errorf("%w: buysellindicator %q seq=%d", ErrInvalidText, p.BuySellIndicator, p.PacketSequence)
	}
	return nil
}

// WriteFile replaces path atomically so a failed write leaves no partial file.
func WriteFile(path string, packets []Packet) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("export: could not open file for writing: %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	bw := bufio.NewWriter(tmp)
	if err := Write(bw, packets); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("export: encode %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("export: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("export: close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("export: chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("export: rename %s: %w", path, err)
	}
	return nil
}
