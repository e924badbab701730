package store

import (
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"github.com/Rogers-F/triad-kernel/internal/domain"
)

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2) so the same
// snapshot always produces identical bytes and therefore the same checksum.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	// Enum types (streams, terms, modes) travel as their text names.
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("store: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("store: CBOR decoder initialization failed: " + err.Error())
	}
}

// Checksum returns the hex BLAKE3-256 digest of data.
func Checksum(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// EncodeSnapshot serializes a kernel snapshot into a checksummed record.
func EncodeSnapshot(snap domain.KernelSnapshot) (domain.SnapshotRecord, error) {
	data, err := encMode.Marshal(snap)
	if err != nil {
		return domain.SnapshotRecord{}, fmt.Errorf("encode snapshot: %w", err)
	}
	return domain.SnapshotRecord{
		Cycle:     snap.Cycle,
		Step:      snap.Step,
		Data:      data,
		Checksum:  Checksum(data),
		CreatedAt: snap.TakenAt.Unix(),
	}, nil
}

// DecodeSnapshot verifies a record's checksum and decodes it.
func DecodeSnapshot(rec domain.SnapshotRecord) (domain.KernelSnapshot, error) {
	if got := Checksum(rec.Data); got != rec.Checksum {
		return domain.KernelSnapshot{}, domain.NewEngineError(domain.ErrSnapshotCorrupt.Code,
			fmt.Sprintf("snapshot %d: checksum %s, recorded %s", rec.ID, got, rec.Checksum))
	}
	var snap domain.KernelSnapshot
	if err := decMode.Unmarshal(rec.Data, &snap); err != nil {
		return domain.KernelSnapshot{}, domain.WrapEngineError(domain.ErrSnapshotCorrupt.Code, "decode snapshot", err)
	}
	return snap, nil
}
