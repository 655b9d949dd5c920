package codec

import "encoding/binary"

// exifIdent is the identification string an APP1 Exif payload starts with.
var exifIdent = []byte("Exif\x00\x00")

var (
	tiffLittleEndianHeader = []byte{'I', 'I', 0x2A, 0x00}
	tiffBigEndianHeader    = []byte{'M', 'M', 0x00, 0x2A}
)

const orientationTag = 0x0112

// parseExifOrientation walks the TIFF IFD0 inside an APP1 Exif payload
// (starting at the identification string) and returns the orientation value
// 1..8, or 0 when absent or malformed.
func parseExifOrientation(data []byte) int {
	if len(data) < 32 {
		return 0
	}

	// The TIFF header should be within 16 bytes of the payload start;
	// its byte-order entry determines endianness.
	var order binary.ByteOrder
	i := 0
	for ; i < 16 && i+4 <= len(data); i++ {
		if string(data[i:i+4]) == string(tiffLittleEndianHeader) {
			order = binary.LittleEndian
			break
		}
		if string(data[i:i+4]) == string(tiffBigEndianHeader) {
			order = binary.BigEndian
			break
		}
	}
	if order == nil || i == 0 {
		// Not found within 16 bytes, or no Exif ident preceded the header.
		return 0
	}
	tiff := i

	if tiff+8 > len(data) {
		return 0
	}
	offset := int(order.Uint32(data[tiff+4 : tiff+8]))
	i = tiff + offset

	if i+2 > len(data) {
		return 0
	}
	tags := int(order.Uint16(data[i : i+2]))
	i += 2

	// Tags are consecutive 12-byte blocks: id, type, count, value offset.
	if i+tags*12 > len(data) {
		return 0
	}
	for ; tags > 0; tags-- {
		tag := int(order.Uint16(data[i : i+2]))
		typ := int(order.Uint16(data[i+2 : i+4]))
		count := int(order.Uint32(data[i+4 : i+8]))
		if tag == orientationTag {
			// Orientation is a single 2-byte integer (type 3, count 1).
			if typ != 3 || count != 1 {
				return 0
			}
			v := int(order.Uint16(data[i+8 : i+10]))
			if v <= 8 {
				return v
			}
			return 0
		}
		i += 12
	}
	return 0
}
