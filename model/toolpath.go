package model

// ToolPath is an ordered, append-only sequence of moves bound to a tool
// table. The builder appends moves and then hands the path off with Seal;
// a sealed path is immutable and safe to share between goroutines.
type ToolPath struct {
	tools  *ToolTable
	moves  []Move
	sealed bool
}

// NewToolPath creates an empty path bound to tools. A nil table behaves as an
// empty one.
func NewToolPath(tools *ToolTable) *ToolPath {
	if tools == nil {
		tools = NewToolTable()
	}
	return &ToolPath{tools: tools}
}

// Add appends a move. Adding to a sealed path is a programming error.
func (p *ToolPath) Add(m Move) {
	if p.sealed {
		panic("model: add to sealed tool path")
	}
	p.moves = append(p.moves, m)
}

// Truncate drops every move from index n on. Truncating a sealed path is a
// programming error.
func (p *ToolPath) Truncate(n int) {
	if p.sealed {
		panic("model: truncate sealed tool path")
	}
	if n < 0 {
		n = 0
	}
	if n < len(p.moves) {
		clear(p.moves[n:])
		p.moves = p.moves[:n]
	}
}

// Seal marks the path immutable and returns it.
func (p *ToolPath) Seal() *ToolPath {
	p.sealed = true
	return p
}

// Sealed reports whether the path has been handed off.
func (p *ToolPath) Sealed() bool {
	return p.sealed
}

// Tools returns the tool table the path was built against.
func (p *ToolPath) Tools() *ToolTable {
	return p.tools
}

// Len returns the number of moves.
func (p *ToolPath) Len() int {
	if p == nil {
		return 0
	}
	return len(p.moves)
}

// At returns the i-th move.
func (p *ToolPath) At(i int) Move {
	return p.moves[i]
}

// Moves returns a copy of all moves in emission order.
func (p *ToolPath) Moves() []Move {
	if p == nil {
		return nil
	}
	out := make([]Move, len(p.moves))
	copy(out, p.moves)
	return out
}

// Duration returns the time at which the last move ends.
func (p *ToolPath) Duration() float64 {
	if p.Len() == 0 {
		return 0
	}
	return p.moves[len(p.moves)-1].EndTime()
}

// Bounds returns the box covering every move endpoint.
func (p *ToolPath) Bounds() Box {
	b := EmptyBox()
	for i := 0; i < p.Len(); i++ {
		b = b.Union(p.moves[i].Bounds())
	}
	return b
}

// CutBounds returns the box covering the endpoints of cutting moves only.
func (p *ToolPath) CutBounds() Box {
	b := EmptyBox()
	for i := 0; i < p.Len(); i++ {
		if p.moves[i].Kind == MoveCut {
			b = b.Union(p.moves[i].Bounds())
		}
	}
	return b
}
