// Command analyze prints quick, human-readable heuristics about the board
// presets in the configs directory: dimensions, the run needed to win, how
// many winning lines the board has, and the outcome split of random
// self-play games.
package main

import (
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/wricardo/mcp-training/gridduel/game/config"
	"github.com/wricardo/mcp-training/gridduel/game/engine"
)

// Outcomes counts finished self-play games by result.
type Outcomes struct {
	XWins int
	OWins int
	Draws int
	Moves int
}

func main() {
	configDir := flag.String("config-dir", "configs", "Directory containing board presets")
	games := flag.Int("games", 1000, "Random games to play per preset")
	seed := flag.Uint64("seed", uint64(time.Now().UnixNano()), "Random seed")
	flag.Parse()

	presets, err := config.NewManager(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading presets: %v\n", err)
		os.Exit(1)
	}
	infos, err := presets.ListPresets()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing presets: %v\n", err)
		os.Exit(1)
	}

	rng := rand.New(rand.NewPCG(*seed, *seed>>1))
	for _, info := range infos {
		fmt.Printf("\n=== Analyzing %s ===\n", info.ID)
		fmt.Printf("Name: %s\n", info.Name)
		fmt.Printf("Board: %d x %d (%d cells)\n", info.Width, info.Height, info.Width*info.Height)
		fmt.Printf("Run to win: %d\n", info.RunLength)
		fmt.Printf("Winning lines: %d\n", CountLines(info.Width, info.Height))

		out := SelfPlay(info.Width, info.Height, *games, rng)
		total := out.XWins + out.OWins + out.Draws
		if total == 0 {
			continue
		}
		fmt.Printf("Random play over %d games: X %.1f%%, O %.1f%%, draw %.1f%%, %.1f moves on average\n",
			total,
			percent(out.XWins, total), percent(out.OWins, total), percent(out.Draws, total),
			float64(out.Moves)/float64(total))
	}
}

func percent(n, total int) float64 {
	return 100 * float64(n) / float64(total)
}

// CountLines returns how many distinct runs of RunLength cells exist in a
// row, column or diagonal of a width x height board.
func CountLines(width, height int) int {
	k := engine.RunLength(width, height)
	if k <= 0 {
		return 0
	}
	fits := func(n int) int {
		if n < k {
			return 0
		}
		return n - k + 1
	}
	rows := height * fits(width)
	cols := width * fits(height)
	diagonals := 2 * fits(width) * fits(height)
	return rows + cols + diagonals
}

// SelfPlay plays n games of uniformly random moves and tallies the results.
func SelfPlay(width, height, n int, rng *rand.Rand) Outcomes {
	var out Outcomes
	participants := [2]engine.Participant{
		{ID: "x", DisplayName: "X", Mark: engine.MarkX, Kind: engine.KindBot},
		{ID: "o", DisplayName: "O", Mark: engine.MarkO, Kind: engine.KindBot},
	}

	for i := 0; i < n; i++ {
		sess := engine.NewSession("analyze", width, height, engine.ModeVsLocalHuman, participants, time.Time{})
		for !sess.Terminal() {
			cells := engine.EmptyCells(sess.Board)
			mover := sess.SideToMove()
			if err := sess.Apply(mover.ID, cells[rng.IntN(len(cells))]); err != nil {
				break
			}
			out.Moves++
		}

		switch sess.Status {
		case engine.StatusXWins:
			out.XWins++
		case engine.StatusOWins:
			out.OWins++
		case engine.StatusDraw:
			out.Draws++
		}
	}
	return out
}
