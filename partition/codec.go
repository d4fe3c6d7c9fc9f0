package partition

import "encoding/binary"

// encodeUint32s/decodeUint32s are the wire format InvertLists' all-to-all
// step uses to ship global-id lists between ranks.
func encodeUint32s(x []uint32) []byte {
	buf := make([]byte, 4*len(x))
	for i, v := range x {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], v)
	}
	return buf
}

func decodeUint32s(buf []byte) []uint32 {
	n := len(buf) / 4
	out := make([]uint32, n)
	for i := 0; i < n; i++ {
		out[i] = binary.LittleEndian.Uint32(buf[i*4 : i*4+4])
	}
	return out
}
