package badger

import (
	"encoding/binary"
	"fmt"

	"github.com/go-crypt/x/blake2b"
	"github.com/poiesic/reposit/storage"
)

// Key prefixes for different data types
const (
	recordPrefix   = "rec"
	idIndexPrefix  = "rid"
	sequencePrefix = "seq"

	idHashSize = 16
)

// makeRecordPrefix returns the prefix shared by every record of target.
func makeRecordPrefix(target string) []byte {
	return []byte(fmt.Sprintf("%s:%s:", recordPrefix, target))
}

// makeRecordKey generates a key for a record by sequence number.
// Format: rec:target:seq
func makeRecordKey(target string, seq uint64) []byte {
	prefix := makeRecordPrefix(target)
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	// Write in BigEndian order so lexicographic sort matches insertion order
	binary.BigEndian.PutUint64(buf[offset:], seq)
	return buf
}

// makeIDIndexKey generates the identifier index key for a hashed id.
// Format: rid:target:hash
func makeIDIndexKey(target string, idHash []byte) []byte {
	prefix := fmt.Sprintf("%s:%s:", idIndexPrefix, target)
	buf := make([]byte, len(prefix)+len(idHash))
	offset := copy(buf, prefix)
	copy(buf[offset:], idHash)
	return buf
}

// makeSequenceKey names the badger sequence that numbers target's records.
func makeSequenceKey(target string) []byte {
	return []byte(fmt.Sprintf("%s:%s", sequencePrefix, target))
}

// hashID hashes the encoded identifier value with BLAKE2b, so identifiers
// of any type and length index to fixed-size keys.
func hashID(id any) ([]byte, error) {
	encoded, err := storage.MarshalValue(id)
	if err != nil {
		return nil, err
	}
	h, err := blake2b.New(idHashSize, nil)
	if err != nil {
		return nil, err
	}
	h.Write(encoded)
	return h.Sum(nil), nil
}

// Stored values are an envelope: one length byte, the id hash (possibly
// empty) and the mus-encoded record.
func encodeEnvelope(idHash []byte, rec []byte) []byte {
	buf := make([]byte, 1+len(idHash)+len(rec))
	buf[0] = byte(len(idHash))
	offset := 1 + copy(buf[1:], idHash)
	copy(buf[offset:], rec)
	return buf
}

func decodeEnvelope(val []byte) (idHash []byte, rec []byte, err error) {
	if len(val) == 0 {
		return nil, nil, storage.ErrTruncatedData
	}
	n := int(val[0])
	if len(val) < 1+n {
		return nil, nil, storage.ErrTruncatedData
	}
	return val[1 : 1+n], val[1+n:], nil
}
