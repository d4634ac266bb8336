package ledger

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/ashureev/codespace/internal/domain"
	"github.com/zeebo/blake3"
)

// versionDomainKey separates version content hashes from any other
// BLAKE3 use. ASCII of the domain name, zero padded to 32 bytes.
var versionDomainKey = [32]byte{
	'c', 'o', 'd', 'e', 's', 'p', 'a', 'c', 'e', '.', 'v', 'e', 'r', 's', 'i', 'o',
	'n', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// ContentHash returns the hex BLAKE3 keyed hash of the resolved
// (source, compiled, html, css) tuple. Each field is prefixed with its
// length so field boundaries cannot shift between tuples.
func ContentHash(b domain.Bundle) string {
	hasher, err := blake3.NewKeyed(versionDomainKey[:])
	if err != nil {
		panic("ledger: BLAKE3 keyed hash initialization failed: " + err.Error())
	}

	var prefix [8]byte
	for _, field := range []string{b.Source, b.Compiled, b.HTML, b.CSS} {
		binary.BigEndian.PutUint64(prefix[:], uint64(len(field)))
		_, _ = hasher.Write(prefix[:])
		_, _ = hasher.Write([]byte(field))
	}
	return hex.EncodeToString(hasher.Sum(nil))
}
