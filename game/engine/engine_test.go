package engine

import (
	"reflect"
	"testing"
)

func boardWith(width, height int, mark Mark, cells ...int) []Mark {
	board := NewBoard(width, height)
	for _, c := range cells {
		board[c] = mark
	}
	return board
}

func TestWinningLine_EmptyBoard(t *testing.T) {
	for w := MinBoardSize; w <= MaxBoardSize; w++ {
		for h := MinBoardSize; h <= MaxBoardSize; h++ {
			board := NewBoard(w, h)
			if line := WinningLine(board, w, h, MarkX); line != nil {
				t.Fatalf("Expected no line on empty %dx%d board, got %v", w, h, line)
			}
			if line := WinningLine(board, w, h, MarkO); line != nil {
				t.Fatalf("Expected no line on empty %dx%d board, got %v", w, h, line)
			}
		}
	}
}

func TestWinningLine_Directions(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		cells         []int
		expected      []int
	}{
		{"3x3 top row", 3, 3, []int{0, 1, 2}, []int{0, 1, 2}},
		{"3x3 middle column", 3, 3, []int{1, 4, 7}, []int{1, 4, 7}},
		{"3x3 down diagonal", 3, 3, []int{0, 4, 8}, []int{0, 4, 8}},
		{"3x3 up diagonal", 3, 3, []int{6, 4, 2}, []int{6, 4, 2}},
		{"4x4 second row", 4, 4, []int{4, 5, 6, 7}, []int{4, 5, 6, 7}},
		{"4x4 column", 4, 4, []int{1, 5, 9, 13}, []int{1, 5, 9, 13}},
		{"5x3 row window at the right edge", 5, 3, []int{2, 3, 4}, []int{2, 3, 4}},
		{"5x3 full column", 5, 3, []int{4, 9, 14}, []int{4, 9, 14}},
		{"5x3 shifted down diagonal", 5, 3, []int{2, 8, 14}, []int{2, 8, 14}},
		{"5x3 up diagonal", 5, 3, []int{10, 6, 2}, []int{10, 6, 2}},
		{"3x5 column window", 3, 5, []int{7, 10, 13}, []int{7, 10, 13}},
		{"20x20 long diagonal", 20, 20, diagonal(20), diagonal(20)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			board := boardWith(tt.width, tt.height, MarkX, tt.cells...)
			line := WinningLine(board, tt.width, tt.height, MarkX)
			if !reflect.DeepEqual(line, tt.expected) {
				t.Errorf("Expected line %v, got %v", tt.expected, line)
			}
			if len(line) != RunLength(tt.width, tt.height) {
				t.Errorf("Expected line length %d, got %d", RunLength(tt.width, tt.height), len(line))
			}
			if other := WinningLine(board, tt.width, tt.height, MarkO); other != nil {
				t.Errorf("Expected no line for O, got %v", other)
			}
		})
	}
}

func diagonal(n int) []int {
	cells := make([]int, n)
	for i := range cells {
		cells[i] = i*n + i
	}
	return cells
}

func TestWinningLine_NoLine(t *testing.T) {
	t.Run("broken row", func(t *testing.T) {
		board := boardWith(4, 4, MarkX, 0, 1, 3)
		board[2] = MarkO
		if line := WinningLine(board, 4, 4, MarkX); line != nil {
			t.Errorf("Expected no line, got %v", line)
		}
	})

	t.Run("run shorter than min dimension", func(t *testing.T) {
		board := boardWith(5, 4, MarkX, 0, 1, 2)
		if line := WinningLine(board, 5, 4, MarkX); line != nil {
			t.Errorf("Expected no line for 3 marks on a 5x4 board, got %v", line)
		}
	})

	t.Run("mismatched board length", func(t *testing.T) {
		board := boardWith(3, 3, MarkX, 0, 1, 2)
		if line := WinningLine(board, 4, 3, MarkX); line != nil {
			t.Errorf("Expected nil for mismatched dimensions, got %v", line)
		}
	})
}

func TestWinningLine_TieBreakPrefersRows(t *testing.T) {
	board := boardWith(3, 3, MarkX, 0, 1, 2, 3, 6)
	line := WinningLine(board, 3, 3, MarkX)
	if !reflect.DeepEqual(line, []int{0, 1, 2}) {
		t.Errorf("Expected row to be reported before column, got %v", line)
	}

	board = boardWith(3, 3, MarkX, 0, 3, 6, 4, 8)
	line = WinningLine(board, 3, 3, MarkX)
	if !reflect.DeepEqual(line, []int{0, 3, 6}) {
		t.Errorf("Expected column to be reported before diagonal, got %v", line)
	}
}

func TestBoardFull(t *testing.T) {
	board := NewBoard(3, 3)
	if BoardFull(board) {
		t.Error("Empty board should not be full")
	}
	for i := range board {
		board[i] = MarkX
	}
	board[4] = Empty
	if BoardFull(board) {
		t.Error("Board with one empty cell should not be full")
	}
	board[4] = MarkO
	if !BoardFull(board) {
		t.Error("Board without empty cells should be full")
	}
}

func TestEmptyCells(t *testing.T) {
	board := boardWith(3, 3, MarkX, 0, 4, 8)
	got := EmptyCells(board)
	expected := []int{1, 2, 3, 5, 6, 7}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}
	if CountMarks(board, MarkX) != 3 {
		t.Errorf("Expected 3 X marks, got %d", CountMarks(board, MarkX))
	}
}

func TestSession_Clone(t *testing.T) {
	s := NewSession("s1", 3, 3, ModeVsLocalHuman, localPair(), testNow)
	s.WinningLine = []int{0, 1, 2}
	cp := s.Clone()
	cp.Board[0] = MarkO
	cp.WinningLine[0] = 7

	if s.Board[0] != Empty {
		t.Error("Clone should not share the board slice")
	}
	if s.WinningLine[0] != 0 {
		t.Error("Clone should not share the winning line slice")
	}
}

func TestSession_Lookups(t *testing.T) {
	s := NewSession("s1", 3, 3, ModeVsLocalHuman, localPair(), testNow)

	if p := s.Participant("alice"); p == nil || p.Mark != MarkX {
		t.Fatalf("Expected alice to hold X, got %+v", p)
	}
	if p := s.Opponent("alice"); p == nil || p.ID != "bob" {
		t.Errorf("Expected bob as alice's opponent, got %+v", p)
	}
	if p := s.Opponent("mallory"); p != nil {
		t.Errorf("Expected no opponent for unknown participant, got %+v", p)
	}
	if s.SideToMove().ID != "alice" {
		t.Errorf("Expected X (alice) to move first, got %s", s.SideToMove().ID)
	}
	if !s.InvitationAccepted {
		t.Error("Local sessions start accepted")
	}

	remote := NewSession("s2", 3, 3, ModeVsRemoteHuman, localPair(), testNow)
	if remote.InvitationAccepted {
		t.Error("Remote sessions start unaccepted")
	}
}
