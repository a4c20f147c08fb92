package snapshot

import (
	"bytes"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/yndnr/emberkv/internal/storage"
)

// Field numbers of the body message and of each record.
const (
	fieldRecord protowire.Number = 1

	fieldDB    protowire.Number = 1
	fieldKey   protowire.Number = 2
	fieldValue protowire.Number = 3
)

// encodeBody serializes every pair of snap as a record.
func encodeBody(snap *storage.Snapshot) []byte {
	var body, rec []byte
	for db, pairs := range snap.DBs {
		for _, kv := range pairs {
			rec = rec[:0]
			rec = protowire.AppendTag(rec, fieldDB, protowire.VarintType)
			rec = protowire.AppendVarint(rec, uint64(db))
			rec = protowire.AppendTag(rec, fieldKey, protowire.BytesType)
			rec = protowire.AppendString(rec, kv.Key)
			rec = protowire.AppendTag(rec, fieldValue, protowire.BytesType)
			rec = protowire.AppendBytes(rec, kv.Value)

			body = protowire.AppendTag(body, fieldRecord, protowire.BytesType)
			body = protowire.AppendBytes(body, rec)
		}
	}
	return body
}

// decodeBody calls fn for each record in body. Unknown fields are skipped.
func decodeBody(body []byte, fn storage.LoadFunc) error {
	for len(body) > 0 {
		num, typ, n := protowire.ConsumeTag(body)
		if n < 0 {
			return fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
		}
		body = body[n:]

		if num != fieldRecord || typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, body)
			if n < 0 {
				return fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
			}
			body = body[n:]
			continue
		}

		rec, n := protowire.ConsumeBytes(body)
		if n < 0 {
			return fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
		}
		body = body[n:]

		db, key, value, err := decodeRecord(rec)
		if err != nil {
			return err
		}
		if err := fn(db, key, value); err != nil {
			return err
		}
	}
	return nil
}

func decodeRecord(rec []byte) (db int, key, value []byte, err error) {
	var haveKey bool
	for len(rec) > 0 {
		num, typ, n := protowire.ConsumeTag(rec)
		if n < 0 {
			return 0, nil, nil, fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
		}
		rec = rec[n:]

		switch {
		case num == fieldDB && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(rec)
			if n < 0 {
				return 0, nil, nil, fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
			}
			db = int(v)
			rec = rec[n:]
		case (num == fieldKey || num == fieldValue) && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(rec)
			if n < 0 {
				return 0, nil, nil, fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
			}
			if num == fieldKey {
				key, haveKey = bytes.Clone(v), true
			} else {
				value = bytes.Clone(v)
			}
			rec = rec[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, rec)
			if n < 0 {
				return 0, nil, nil, fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
			}
			rec = rec[n:]
		}
	}
	if !haveKey {
		return 0, nil, nil, fmt.Errorf("%w: record without key", ErrMalformed)
	}
	if value == nil {
		value = []byte{}
	}
	return db, key, value, nil
}
