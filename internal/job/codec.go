package job

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Sentinel errors for the wire codec.
var (
	ErrEmptyInput    = errors.New("job: empty input")
	ErrMalformedJSON = errors.New("job: malformed record JSON")
)

// MaxRecordSize caps serialized records to guard against runaway worker
// output (default 32MB; compiler logs can be large).
var MaxRecordSize = 32 << 20

// Marshal serializes a record to indented JSON after validating it.
func Marshal(r *Record) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("job: encoding record: %w", err)
	}
	return data, nil
}

// Unmarshal deserializes and validates a record.
func Unmarshal(data []byte) (*Record, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}
	if len(data) > MaxRecordSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrMalformedJSON, len(data), MaxRecordSize)
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Encode writes one serialized record to w.
func Encode(w io.Writer, r *Record) error {
	data, err := Marshal(r)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("job: writing record: %w", err)
	}
	return nil
}

// Decode reads one serialized record from r until EOF.
func Decode(rd io.Reader) (*Record, error) {
	data, err := io.ReadAll(io.LimitReader(rd, int64(MaxRecordSize)+1))
	if err != nil {
		return nil, fmt.Errorf("job: reading record: %w", err)
	}
	return Unmarshal(data)
}
