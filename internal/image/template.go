package image

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// TemplateMatcher ищет шаблон нормированной взаимной корреляцией по
// оттенкам серого. Scale масштабирует шаблон под текущее разрешение.
type TemplateMatcher struct {
	Scale float64
}

// NewTemplateMatcher создает новый экземпляр TemplateMatcher
func NewTemplateMatcher(scale float64) *TemplateMatcher {
	return &TemplateMatcher{Scale: scale}
}

type grayPlane struct {
	w, h int
	pix  []float64
}

func toGray(img image.Image) grayPlane {
	g := imaging.Grayscale(img)
	w, h := g.Bounds().Dx(), g.Bounds().Dy()
	p := grayPlane{w: w, h: h, pix: make([]float64, w*h)}
	for y := 0; y < h; y++ {
		row := g.Pix[y*g.Stride:]
		for x := 0; x < w; x++ {
			p.pix[y*w+x] = float64(row[x*4])
		}
	}
	return p
}

// Locate возвращает лучшее положение шаблона и его оценку в [-1, 1].
// ok=false, если шаблон не помещается в изображение.
func (m *TemplateMatcher) Locate(img, tpl image.Image) (image.Rectangle, float64, bool) {
	if m.Scale > 0 && m.Scale != 1 {
		w := int(float64(tpl.Bounds().Dx()) * m.Scale)
		if w < 1 {
			return image.Rectangle{}, 0, false
		}
		tpl = imaging.Resize(tpl, w, 0, imaging.Linear)
	}

	src, t := toGray(img), toGray(tpl)
	if t.w < 1 || t.h < 1 || t.w > src.w || t.h > src.h {
		return image.Rectangle{}, 0, false
	}

	n := float64(t.w * t.h)
	var tMean float64
	for _, v := range t.pix {
		tMean += v
	}
	tMean /= n
	tz := make([]float64, len(t.pix))
	var tNorm float64
	for i, v := range t.pix {
		tz[i] = v - tMean
		tNorm += tz[i] * tz[i]
	}
	tNorm = math.Sqrt(tNorm)

	sum, sq := integrals(src)
	best, bestX, bestY := math.Inf(-1), 0, 0
	for y := 0; y+t.h <= src.h; y++ {
		for x := 0; x+t.w <= src.w; x++ {
			s := rectSum(sum, src.w, x, y, t.w, t.h)
			s2 := rectSum(sq, src.w, x, y, t.w, t.h)
			variance := s2 - s*s/n

			var score float64
			if variance > 1e-9 && tNorm > 1e-9 {
				var cross float64
				for ty := 0; ty < t.h; ty++ {
					row := src.pix[(y+ty)*src.w+x:]
					trow := tz[ty*t.w:]
					for tx := 0; tx < t.w; tx++ {
						cross += row[tx] * trow[tx]
					}
				}
				score = cross / (math.Sqrt(variance) * tNorm)
			}
			if score > best {
				best, bestX, bestY = score, x, y
			}
		}
	}

	origin := img.Bounds().Min
	return image.Rect(bestX, bestY, bestX+t.w, bestY+t.h).Add(origin), best, true
}

// integrals строит суммированные таблицы значений и их квадратов
// размером (w+1)*(h+1)
func integrals(p grayPlane) ([]float64, []float64) {
	stride := p.w + 1
	sum := make([]float64, stride*(p.h+1))
	sq := make([]float64, stride*(p.h+1))
	for y := 0; y < p.h; y++ {
		var rs, rq float64
		for x := 0; x < p.w; x++ {
			v := p.pix[y*p.w+x]
			rs += v
			rq += v * v
			sum[(y+1)*stride+x+1] = sum[y*stride+x+1] + rs
			sq[(y+1)*stride+x+1] = sq[y*stride+x+1] + rq
		}
	}
	return sum, sq
}

func rectSum(table []float64, w, x, y, rw, rh int) float64 {
	stride := w + 1
	return table[(y+rh)*stride+x+rw] - table[y*stride+x+rw] - table[(y+rh)*stride+x] + table[y*stride+x]
}
