package mediaitem

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"os"
)

// exifData is the subset of EXIF tags metadata extraction cares about:
// camera make/model, capture date, and GPS coordinates. No library in the
// dependency set here parses EXIF (see DESIGN.md), so this reads the TIFF IFD
// structure directly — the same "parse the header bytes" idiom the
// internal/media already uses for JPEG dimension probing in image.go.
type exifData struct {
	Make      string  `json:"make,omitempty"`
	Model     string  `json:"model,omitempty"`
	DateTime  string  `json:"date_time,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	HasGPS    bool    `json:"has_gps,omitempty"`
}

func (e exifData) toJSON() string {
	if e == (exifData{}) {
		return ""
	}
	b, err := json.Marshal(e)
	if err != nil {
		return ""
	}
	return string(b)
}

const (
	tagMake          = 0x010F
	tagModel         = 0x0110
	tagDateTime      = 0x0132
	tagExifIFDPtr    = 0x8769
	tagGPSIFDPtr     = 0x8825
	tagDateTimeOrig  = 0x9003
	tagGPSLatRef     = 0x0001
	tagGPSLat        = 0x0002
	tagGPSLongRef    = 0x0003
	tagGPSLong       = 0x0004
	typeASCII        = 2
	jpegSOIMarker    = 0xFFD8
	jpegAPP1Marker   = 0xFFE1
	exifHeaderLength = 6 // "Exif\0\0"
)

// readJPEGExif extracts a best-effort exifData from a JPEG file. Absence of
// an APP1/EXIF segment is not an error — it returns a zero exifData.
func readJPEGExif(path string) (exifData, error) {
	f, err := os.Open(path)
	if err != nil {
		return exifData{}, err
	}
	defer f.Close()

	var soi [2]byte
	if _, err := f.Read(soi[:]); err != nil {
		return exifData{}, err
	}
	if binary.BigEndian.Uint16(soi[:]) != jpegSOIMarker {
		return exifData{}, errors.New("not a JPEG file")
	}

	for {
		var marker [2]byte
		if _, err := f.Read(marker[:]); err != nil {
			return exifData{}, nil // ran out of markers without an APP1
		}
		m := binary.BigEndian.Uint16(marker[:])
		if m>>8 != 0xFF {
			return exifData{}, nil // not a marker, give up quietly
		}

		var lenBuf [2]byte
		if _, err := f.Read(lenBuf[:]); err != nil {
			return exifData{}, nil
		}
		segLen := int(binary.BigEndian.Uint16(lenBuf[:])) - 2
		if segLen < 0 {
			return exifData{}, nil
		}

		if m != jpegAPP1Marker {
			if _, err := f.Seek(int64(segLen), 1); err != nil {
				return exifData{}, nil
			}
			continue
		}

		buf := make([]byte, segLen)
		if _, err := f.Read(buf); err != nil {
			return exifData{}, nil
		}
		if len(buf) < exifHeaderLength || string(buf[:4]) != "Exif" {
			continue
		}
		return parseTIFF(buf[exifHeaderLength:])
	}
}

func parseTIFF(tiff []byte) (exifData, error) {
	if len(tiff) < 8 {
		return exifData{}, nil
	}

	var order binary.ByteOrder
	switch string(tiff[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return exifData{}, nil
	}

	ifd0Offset := order.Uint32(tiff[4:8])
	var out exifData
	exifIFDOffset, gpsIFDOffset := readIFD(tiff, order, ifd0Offset, &out)
	if exifIFDOffset != 0 {
		readIFD(tiff, order, exifIFDOffset, &out)
	}
	if gpsIFDOffset != 0 {
		readGPSIFD(tiff, order, gpsIFDOffset, &out)
	}
	return out, nil
}

// readIFD walks one IFD, populating out and returning any Exif/GPS sub-IFD
// pointers it encounters (0 if absent).
func readIFD(tiff []byte, order binary.ByteOrder, offset uint32, out *exifData) (exifIFD, gpsIFD uint32) {
	if int(offset)+2 > len(tiff) {
		return 0, 0
	}
	count := int(order.Uint16(tiff[offset : offset+2]))
	entryStart := int(offset) + 2

	for i := 0; i < count; i++ {
		entryOff := entryStart + i*12
		if entryOff+12 > len(tiff) {
			break
		}
		entry := tiff[entryOff : entryOff+12]
		tag := order.Uint16(entry[0:2])
		typ := order.Uint16(entry[2:4])
		valOffset := entry[8:12]

		switch tag {
		case tagMake:
			out.Make = readASCII(tiff, order, typ, valOffset)
		case tagModel:
			out.Model = readASCII(tiff, order, typ, valOffset)
		case tagDateTime, tagDateTimeOrig:
			if dt := readASCII(tiff, order, typ, valOffset); dt != "" {
				out.DateTime = dt
			}
		case tagExifIFDPtr:
			exifIFD = order.Uint32(valOffset)
		case tagGPSIFDPtr:
			gpsIFD = order.Uint32(valOffset)
		}
	}
	return exifIFD, gpsIFD
}

func readGPSIFD(tiff []byte, order binary.ByteOrder, offset uint32, out *exifData) {
	if int(offset)+2 > len(tiff) {
		return
	}
	count := int(order.Uint16(tiff[offset : offset+2]))
	entryStart := int(offset) + 2

	var latRef, longRef string
	var lat, long float64
	var haveLat, haveLong bool

	for i := 0; i < count; i++ {
		entryOff := entryStart + i*12
		if entryOff+12 > len(tiff) {
			break
		}
		entry := tiff[entryOff : entryOff+12]
		tag := order.Uint16(entry[0:2])
		typ := order.Uint16(entry[2:4])
		valOffset := entry[8:12]

		switch tag {
		case tagGPSLatRef:
			if typ == typeASCII { // 2-byte value ("N\0"/"S\0"), always stored inline
				latRef = string(valOffset[:1])
			}
		case tagGPSLat:
			lat = readRationalTriplet(tiff, order, valOffset)
			haveLat = true
		case tagGPSLongRef:
			if typ == typeASCII { // 2-byte value ("E\0"/"W\0"), always stored inline
				longRef = string(valOffset[:1])
			}
		case tagGPSLong:
			long = readRationalTriplet(tiff, order, valOffset)
			haveLong = true
		}
	}

	if haveLat && haveLong {
		if latRef == "S" {
			lat = -lat
		}
		if longRef == "W" {
			long = -long
		}
		out.Latitude = lat
		out.Longitude = long
		out.HasGPS = true
	}
}

func readASCII(tiff []byte, order binary.ByteOrder, typ uint16, valOffset []byte) string {
	if typ != typeASCII {
		return ""
	}
	// ASCII values <= 4 bytes are stored inline; longer ones are an offset.
	// This reads valOffset only as an offset, so inline values are not
	// decoded here.
	offset := order.Uint32(valOffset)
	if int(offset) >= len(tiff) {
		return ""
	}
	end := offset
	for int(end) < len(tiff) && tiff[end] != 0 {
		end++
	}
	return string(tiff[offset:end])
}

// readRationalTriplet reads the 3-rational (degrees, minutes, seconds)
// encoding GPS coordinates use, converting to decimal degrees.
func readRationalTriplet(tiff []byte, order binary.ByteOrder, valOffset []byte) float64 {
	offset := order.Uint32(valOffset)
	if int(offset)+24 > len(tiff) {
		return 0
	}
	deg := readRational(tiff[offset:offset+8], order)
	min := readRational(tiff[offset+8:offset+16], order)
	sec := readRational(tiff[offset+16:offset+24], order)
	return deg + min/60 + sec/3600
}

func readRational(b []byte, order binary.ByteOrder) float64 {
	num := order.Uint32(b[0:4])
	den := order.Uint32(b[4:8])
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

