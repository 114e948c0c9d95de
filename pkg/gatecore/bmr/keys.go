package bmr

import (
	"github.com/emberpc/gatecore/pkg/gatecore/bitvec"
	"github.com/emberpc/gatecore/pkg/gatecore/gerr"
	"github.com/emberpc/gatecore/pkg/gatecore/transport"
)

// encodeKeyPairs packs one party's own (k0, k1) key pair per lane into a
// single bit-vector for broadcast: lane 0's k0 || lane 0's k1 || lane 1's
// k0 || ...
func encodeKeyPairs(keys0, keys1 [][]byte, keyLen int) *bitvec.BitVector {
	buf := make([]byte, 0, len(keys0)*2*keyLen)
	for i := range keys0 {
		buf = append(buf, keys0[i]...)
		buf = append(buf, keys1[i]...)
	}
	v, err := bitvec.FromBytes(buf, len(buf)*8)
	if err != nil {
		panic(err)
	}
	return v
}

// decodeKeyPairs is encodeKeyPairs's inverse.
func decodeKeyPairs(gateID uint64, v *bitvec.BitVector, numSimd, keyLen int) (keys0, keys1 [][]byte, err error) {
	want := numSimd * 2 * keyLen
	raw := v.Bytes()
	if len(raw)*8 != v.Size() || len(raw) != want {
		return nil, nil, gerr.Newf(gateID, "setup", gerr.ProtocolViolation, "bmr: key blob is %d bytes, want %d", len(raw), want)
	}
	keys0 = make([][]byte, numSimd)
	keys1 = make([][]byte, numSimd)
	for i := 0; i < numSimd; i++ {
		off := i * 2 * keyLen
		keys0[i] = append([]byte(nil), raw[off:off+keyLen]...)
		keys1[i] = append([]byte(nil), raw[off+keyLen:off+2*keyLen]...)
	}
	return keys0, keys1, nil
}

// mergeKeyTable builds the full per-lane, per-party key table from this
// party's own pair plus every peer's broadcasted pair.
func mergeKeyTable(self transport.PartyID, numSimd int, mine0, mine1 [][]byte, fromPeers map[transport.PartyID][][2][]byte) (keys0, keys1 []map[transport.PartyID][]byte) {
	keys0 = make([]map[transport.PartyID][]byte, numSimd)
	keys1 = make([]map[transport.PartyID][]byte, numSimd)
	for lane := 0; lane < numSimd; lane++ {
		keys0[lane] = map[transport.PartyID][]byte{self: mine0[lane]}
		keys1[lane] = map[transport.PartyID][]byte{self: mine1[lane]}
		for peer, pairs := range fromPeers {
			keys0[lane][peer] = pairs[lane][0]
			keys1[lane][peer] = pairs[lane][1]
		}
	}
	return keys0, keys1
}
