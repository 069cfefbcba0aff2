package wheel

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// RecordEntry is one row of a RECORD manifest. Hash and Size are
// optional; RECORD's own row leaves them empty.
type RecordEntry struct {
	Path string
	// Algo and Digest are split from the "algo=b64digest" hash field.
	Algo   string
	Digest string
	// Size is -1 when the size field is empty.
	Size int64
}

// ParseRecord reads a RECORD manifest.
func ParseRecord(r io.Reader) ([]RecordEntry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 3

	var entries []RecordEntry
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse RECORD: %w", err)
		}

		e := RecordEntry{Path: row[0], Size: -1}
		if row[1] != "" {
			algo, digest, ok := strings.Cut(row[1], "=")
			if !ok {
				return nil, fmt.Errorf("parse RECORD: malformed hash field %q", row[1])
			}
			e.Algo = algo
			e.Digest = digest
		}
		if row[2] != "" {
			size, err := strconv.ParseInt(row[2], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parse RECORD: malformed size %q", row[2])
			}
			e.Size = size
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// WriteRecord serializes entries as a RECORD manifest.
func WriteRecord(w io.Writer, entries []RecordEntry) error {
	cw := csv.NewWriter(w)
	for _, e := range entries {
		hash := ""
		if e.Algo != "" {
			hash = e.Algo + "=" + e.Digest
		}
		size := ""
		if e.Size >= 0 {
			size = strconv.FormatInt(e.Size, 10)
		}
		if err := cw.Write([]string{e.Path, hash, size}); err != nil {
			return fmt.Errorf("write RECORD: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write RECORD: %w", err)
	}
	return nil
}

// Digest computes a RECORD-style sha256 digest: urlsafe base64 with
// the padding stripped, as mandated by the wheel format.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Matches reports whether data satisfies the entry's recorded size and
// digest. Entries without a hash match anything; non-sha256 algorithms
// are not checked.
func (e RecordEntry) Matches(data []byte) bool {
	if e.Size >= 0 && int64(len(data)) != e.Size {
		return false
	}
	if e.Algo == "sha256" && Digest(data) != e.Digest {
		return false
	}
	return true
}
