package engine

// RunLength is the number of aligned marks needed to win on a width×height board.
func RunLength(width, height int) int {
	if width < height {
		return width
	}
	return height
}

// NewBoard returns an empty board of width*height cells.
func NewBoard(width, height int) []Mark {
	return make([]Mark, width*height)
}

// WinningLine returns the first run of RunLength(width, height) cells all
// holding mark, or nil. Runs are every contiguous window, scanned rows first
// (row-major), then columns, then down-right diagonals, then up-right
// diagonals. When several runs complete at once the first one in that order
// is reported.
func WinningLine(board []Mark, width, height int, mark Mark) []int {
	if !mark.Valid() || width <= 0 || height <= 0 || len(board) != width*height {
		return nil
	}
	n := RunLength(width, height)

	// Each scan bounds the first cell of a window and steps along dir.
	type direction struct{ dr, dc int }
	scans := []struct {
		dir          direction
		rowLo, rowHi int
		colLo, colHi int
		byColumn     bool
	}{
		{direction{0, 1}, 0, height - 1, 0, width - n, false},
		{direction{1, 0}, 0, height - n, 0, width - 1, true},
		{direction{1, 1}, 0, height - n, 0, width - n, false},
		{direction{-1, 1}, n - 1, height - 1, 0, width - n, false},
	}

	line := make([]int, n)
	check := func(r, c int, d direction) bool {
		for k := 0; k < n; k++ {
			idx := (r+k*d.dr)*width + c + k*d.dc
			if board[idx] != mark {
				return false
			}
			line[k] = idx
		}
		return true
	}

	for _, scan := range scans {
		if scan.byColumn {
			for c := scan.colLo; c <= scan.colHi; c++ {
				for r := scan.rowLo; r <= scan.rowHi; r++ {
					if check(r, c, scan.dir) {
						return line
					}
				}
			}
			continue
		}
		for r := scan.rowLo; r <= scan.rowHi; r++ {
			for c := scan.colLo; c <= scan.colHi; c++ {
				if check(r, c, scan.dir) {
					return line
				}
			}
		}
	}
	return nil
}

// BoardFull reports whether every cell holds a mark.
func BoardFull(board []Mark) bool {
	for _, cell := range board {
		if cell == Empty {
			return false
		}
	}
	return true
}

// EmptyCells returns the indices of empty cells in ascending order.
func EmptyCells(board []Mark) []int {
	cells := make([]int, 0, len(board))
	for i, cell := range board {
		if cell == Empty {
			cells = append(cells, i)
		}
	}
	return cells
}

// CountMarks returns how many cells hold mark.
func CountMarks(board []Mark, mark Mark) int {
	count := 0
	for _, cell := range board {
		if cell == mark {
			count++
		}
	}
	return count
}
