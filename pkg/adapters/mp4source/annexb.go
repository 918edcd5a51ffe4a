package mp4source

var startCode = []byte{0, 0, 0, 1}

// avccToAnnexB converts length-prefixed NAL units to start-code prefixed
// ones. A truncated trailing unit is dropped.
func avccToAnnexB(data []byte) []byte {
	result := make([]byte, 0, len(data))
	offset := 0
	for offset+4 <= len(data) {
		naluLen := int(data[offset])<<24 | int(data[offset+1])<<16 |
			int(data[offset+2])<<8 | int(data[offset+3])
		offset += 4
		if naluLen < 0 || offset+naluLen > len(data) {
			break
		}
		result = append(result, startCode...)
		result = append(result, data[offset:offset+naluLen]...)
		offset += naluLen
	}
	return result
}

// annexBParameterSets joins SPS and PPS units with start codes.
func annexBParameterSets(sps, pps [][]byte) []byte {
	var out []byte
	for _, nalus := range [][][]byte{sps, pps} {
		for _, n := range nalus {
			out = append(out, startCode...)
			out = append(out, n...)
		}
	}
	return out
}
