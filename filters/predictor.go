package filters

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfsteg/ir/raw"
)

func paramInt(params raw.Dictionary, key string, def int) int {
	if params == nil {
		return def
	}
	v, ok := params.Get(raw.NameLiteral(key))
	if !ok {
		return def
	}
	if n, ok := v.(raw.Number); ok {
		return int(n.Int())
	}
	return def
}

// applyPredictor undoes the TIFF (2) and PNG (10-15) predictors of the
// Flate and LZW filters.
func applyPredictor(data []byte, params raw.Dictionary) ([]byte, error) {
	predictor := paramInt(params, "Predictor", 1)
	if predictor <= 1 {
		return data, nil
	}
	colors := paramInt(params, "Colors", 1)
	bpc := paramInt(params, "BitsPerComponent", 8)
	columns := paramInt(params, "Columns", 1)
	if colors < 1 || bpc < 1 || columns < 1 {
		return nil, errors.New("invalid predictor parameters")
	}
	bpp := (colors*bpc + 7) / 8
	rowLen := (colors*bpc*columns + 7) / 8

	switch {
	case predictor == 2:
		if bpc != 8 {
			return nil, fmt.Errorf("TIFF predictor with %d bits per component", bpc)
		}
		out := append([]byte(nil), data...)
		for row := 0; row+rowLen <= len(out); row += rowLen {
			for i := row + bpp; i < row+rowLen; i++ {
				out[i] += out[i-bpp]
			}
		}
		return out, nil
	case predictor >= 10:
		return pngUnpredict(data, rowLen, bpp)
	default:
		return nil, fmt.Errorf("unsupported predictor %d", predictor)
	}
}

func pngUnpredict(data []byte, rowLen, bpp int) ([]byte, error) {
	stride := rowLen + 1
	out := make([]byte, 0, len(data)/stride*rowLen)
	prev := make([]byte, rowLen)
	for off := 0; off < len(data); off += stride {
		end := off + stride
		if end > len(data) {
			end = len(data)
		}
		ft := data[off]
		row := make([]byte, rowLen)
		copy(row, data[off+1:end])
		for i := 0; i < rowLen; i++ {
			var left, upLeft byte
			if i >= bpp {
				left = row[i-bpp]
				upLeft = prev[i-bpp]
			}
			up := prev[i]
			switch ft {
			case 0:
			case 1:
				row[i] += left
			case 2:
				row[i] += up
			case 3:
				row[i] += byte((int(left) + int(up)) / 2)
			case 4:
				row[i] += paeth(left, up, upLeft)
			default:
				return nil, fmt.Errorf("invalid PNG filter type %d", ft)
			}
		}
		out = append(out, row[:end-off-1]...)
		prev = row
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	switch {
	case pa <= pb && pa <= pc:
		return a
	case pb <= pc:
		return b
	default:
		return c
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
