package rle

// reporter throttles progress callbacks to one per progressChunk bytes or
// per whole percentage point, whichever comes first.
type reporter struct {
	total     int
	fn        ProgressFunc
	lastPos   int
	lastPoint int
}

func newReporter(total int, fn ProgressFunc) *reporter {
	return &reporter{total: total, fn: fn}
}

func (r *reporter) update(pos int) {
	if r.fn == nil || r.total == 0 {
		return
	}
	point := int(int64(pos) * 100 / int64(r.total))
	if pos-r.lastPos < progressChunk && point <= r.lastPoint {
		return
	}
	r.lastPos = pos
	r.lastPoint = point
	if pos >= r.total {
		// finish reports completion
		return
	}
	r.fn(float64(pos) / float64(r.total))
}

func (r *reporter) finish() {
	if r.fn != nil {
		r.fn(1)
	}
}
