package common

// BilinearInterpolate performs 2D bilinear interpolation at (x, y) where x
// indexes columns and y indexes rows. Coordinates are clamped to the grid.
func BilinearInterpolate(data [][]float64, x, y float64) float64 {
	if len(data) == 0 || len(data[0]) == 0 {
		return 0.0
	}

	rows := len(data)
	cols := len(data[0])

	x = Clamp(x, 0, float64(cols-1))
	y = Clamp(y, 0, float64(rows-1))

	x1 := int(x)
	y1 := int(y)
	x2 := min(x1+1, cols-1)
	y2 := min(y1+1, rows-1)

	fx := x - float64(x1)
	fy := y - float64(y1)

	q11 := data[y1][x1]
	q12 := data[y2][x1]
	q21 := data[y1][x2]
	q22 := data[y2][x2]

	r1 := q11 + fx*(q21-q11)
	r2 := q12 + fx*(q22-q12)

	return r1 + fy*(r2-r1)
}

// ResizeBilinear resizes a rows x cols matrix to height x width using
// half-pixel centres, the convention of tf.image.resize.
func ResizeBilinear(data [][]float64, height, width int) [][]float64 {
	out := make([][]float64, height)
	for i := range out {
		out[i] = make([]float64, width)
	}

	if len(data) == 0 || len(data[0]) == 0 || height <= 0 || width <= 0 {
		return out
	}

	scaleY := float64(len(data)) / float64(height)
	scaleX := float64(len(data[0])) / float64(width)

	for i := range height {
		srcY := (float64(i)+0.5)*scaleY - 0.5
		for j := range width {
			srcX := (float64(j)+0.5)*scaleX - 0.5
			out[i][j] = BilinearInterpolate(data, srcX, srcY)
		}
	}

	return out
}
