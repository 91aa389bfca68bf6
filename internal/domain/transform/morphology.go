package transform

// components labels 4-connected regions whose pixels equal want and calls
// visit with each region's pixel indices and whether it touches the border.
func components(mask []bool, h, w int, want bool, visit func(pixels []int, border bool)) {
	seen := make([]bool, len(mask))
	stack := make([]int, 0, 64)
	for start := range mask {
		if seen[start] || mask[start] != want {
			continue
		}
		seen[start] = true
		stack = append(stack[:0], start)
		var pixels []int
		border := false
		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			pixels = append(pixels, p)
			y, x := p/w, p%w
			if y == 0 || x == 0 || y == h-1 || x == w-1 {
				border = true
			}
			for _, q := range [4]int{p - w, p + w, p - 1, p + 1} {
				switch {
				case q == p-1 && x == 0, q == p+1 && x == w-1, q < 0, q >= len(mask):
					continue
				}
				if !seen[q] && mask[q] == want {
					seen[q] = true
					stack = append(stack, q)
				}
			}
		}
		visit(pixels, border)
	}
}

// removeSmallObjects clears foreground regions smaller than minSize.
func removeSmallObjects(mask []bool, h, w, minSize int) {
	components(mask, h, w, true, func(pixels []int, _ bool) {
		if len(pixels) < minSize {
			for _, p := range pixels {
				mask[p] = false
			}
		}
	})
}

// fillSmallHoles sets enclosed background regions of at most maxSize pixels.
// Background touching the image border is never a hole.
func fillSmallHoles(mask []bool, h, w, maxSize int) {
	components(mask, h, w, false, func(pixels []int, border bool) {
		if !border && len(pixels) <= maxSize {
			for _, p := range pixels {
				mask[p] = true
			}
		}
	})
}
