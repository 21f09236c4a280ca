package progress

import (
	"regexp"
	"strconv"
)

var (
	peersPattern      = regexp.MustCompile(`\((.*?)\)\[.*?\].*?received .*?peers: (\d+)`)
	pieceDonePattern  = regexp.MustCompile(`piece.*finished downloading`)
	firstPiecePattern = regexp.MustCompile(`piece: 0 finished downloading`)
)

// Stats accumulates what the btfs log has reported so far.
type Stats struct {
	// Peers holds the last peer count announced by each tracker.
	Peers      map[string]int
	Pieces     int
	FirstPiece bool
}

func (s Stats) TotalPeers() int {
	total := 0
	for _, n := range s.Peers {
		total += n
	}
	return total
}

type Parser struct {
	stats Stats
}

func NewParser() *Parser {
	return &Parser{stats: Stats{Peers: make(map[string]int)}}
}

func (p *Parser) Feed(line string) {
	if m := peersPattern.FindStringSubmatch(line); m != nil {
		if n, err := strconv.Atoi(m[2]); err == nil {
			p.stats.Peers[m[1]] = n
		}
	}
	if pieceDonePattern.MatchString(line) {
		p.stats.Pieces++
	}
	if firstPiecePattern.MatchString(line) {
		p.stats.FirstPiece = true
	}
}

// Stats returns a copy safe to keep after further Feed calls.
func (p *Parser) Stats() Stats {
	peers := make(map[string]int, len(p.stats.Peers))
	for k, v := range p.stats.Peers {
		peers[k] = v
	}
	return Stats{Peers: peers, Pieces: p.stats.Pieces, FirstPiece: p.stats.FirstPiece}
}
