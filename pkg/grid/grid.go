// Package grid implements the terminal grid store (C7): a sparse,
// absolute-row-indexed cache of the host's terminal contents, fed by
// snapshot/delta/history_backfill updates and queried by a renderer through
// a viewport/follow-tail window, per spec §3-§4.7.
package grid

import (
	"sort"
	"strings"
	"sync"

	"github.com/alidow/beach/pkg/wire"
)

// RowState describes whether a row's contents are known, requested, or
// untouched.
type RowState int

const (
	RowMissing RowState = iota
	RowPending
	RowLoaded
)

// Cell is a decoded terminal cell: a code point plus a style id and the
// sequence number that last wrote it.
type Cell struct {
	Char    rune
	StyleID uint32
	Seq     uint64
}

// Row is one absolute-indexed line of the grid.
type Row struct {
	Absolute  uint64
	State     RowState
	LatestSeq uint64
	Cells     []Cell
}

// StyleDefinition is one entry of the style table (spec §3).
type StyleDefinition struct {
	Fg    uint32
	Bg    uint32
	Attrs uint32
	Seq   uint64
}

// Snapshot is an immutable view handed to observers (spec §3 "Grid snapshot").
type Snapshot struct {
	BaseRow        uint64
	Cols           uint32
	Rows           []Row
	Styles         map[uint32]StyleDefinition
	FollowTail     bool
	HistoryTrimmed bool
	ViewportTop    uint64
	ViewportHeight int
	CursorRow      *uint32
	CursorCol      *uint32
}

// Store is the sparse row cache described in spec §4.7. It is not safe for
// concurrent use from more than one goroutine at a time except through its
// exported methods, which are individually mutex-guarded.
type Store struct {
	mu sync.RWMutex

	baseRow     uint64
	historyRows uint32
	cols        uint32

	rows   map[uint64]*Row
	styles map[uint32]StyleDefinition

	viewportTop    uint64
	viewportHeight int
	followTail     bool
	historyTrimmed bool

	cursorRow *uint32
	cursorCol *uint32
}

// New constructs an empty store.
func New() *Store {
	s := &Store{}
	s.reset()
	return s
}

// Reset clears all rows, styles, cursor, and watermarks (called on hello).
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

func (s *Store) reset() {
	s.baseRow = 0
	s.historyRows = 0
	s.cols = 0
	s.rows = make(map[uint64]*Row)
	s.styles = make(map[uint32]StyleDefinition)
	s.viewportTop = 0
	s.viewportHeight = 0
	s.followTail = false
	s.historyTrimmed = false
	s.cursorRow = nil
	s.cursorCol = nil
}

// SetBaseRow declares the absolute index of the first retained row. When n
// is above the current base (or the store is empty), rows with absolute < n
// are dropped and historyTrimmed is set if any were discarded (I2);
// otherwise only the base is updated and no rows are dropped.
func (s *Store) SetBaseRow(n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= s.baseRow && len(s.rows) > 0 {
		s.baseRow = n
		return
	}
	for abs := range s.rows {
		if abs < n {
			delete(s.rows, abs)
			s.historyTrimmed = true
		}
	}
	s.baseRow = n
}

// SetGridSize fixes the column count and the nominal retained history
// depth. Reducing history may evict the oldest loaded rows.
func (s *Store) SetGridSize(historyRows, cols uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cols = cols
	s.historyRows = historyRows
	if historyRows == 0 {
		return
	}
	var newest uint64
	for abs := range s.rows {
		if abs > newest {
			newest = abs
		}
	}
	for abs := range s.rows {
		if newest-abs >= uint64(historyRows) {
			delete(s.rows, abs)
			s.historyTrimmed = true
		}
	}
}

// ApplyUpdates applies each update in order. authoritative must be true for
// snapshot/history_backfill frames and false for delta frames (spec §4.7).
func (s *Store) ApplyUpdates(updates []wire.Update, authoritative bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range updates {
		s.applyOne(u, authoritative)
	}
}

func (s *Store) applyOne(u wire.Update, authoritative bool) {
	switch v := u.(type) {
	case wire.CellUpdate:
		s.writeCell(uint64(v.Row), v.Col, v.Seq, v.Cell, authoritative)
	case wire.RectUpdate:
		for row := v.RowLo; row < v.RowHi; row++ {
			for col := v.ColLo; col < v.ColHi; col++ {
				s.writeCell(uint64(row), col, v.Seq, v.Cell, authoritative)
			}
		}
	case wire.RowUpdate:
		s.writeRow(uint64(v.Row), 0, v.Seq, v.Cells, authoritative)
	case wire.RowSegmentUpdate:
		s.writeRow(uint64(v.Row), v.StartCol, v.Seq, v.Cells, authoritative)
	case wire.TrimUpdate:
		s.applyTrim(v)
	case wire.StyleUpdate:
		s.applyStyle(v)
	}
}

func (s *Store) rowFor(absolute uint64) *Row {
	r := s.rows[absolute]
	if r == nil {
		r = &Row{Absolute: absolute, State: RowMissing}
		s.rows[absolute] = r
	}
	return r
}

func (s *Store) writeCell(absolute uint64, col uint32, seq, cell uint64, authoritative bool) {
	r := s.rowFor(absolute)
	if int(col) >= len(r.Cells) {
		grown := make([]Cell, col+1)
		copy(grown, r.Cells)
		r.Cells = grown
	}
	existing := r.Cells[col]
	if authoritative || seq > existing.Seq {
		r.Cells[col] = Cell{Char: wire.CellCodePoint(cell), StyleID: wire.CellStyleID(cell), Seq: seq}
		if seq > r.LatestSeq {
			r.LatestSeq = seq
		}
	}
	if r.State == RowMissing || r.State == RowPending {
		r.State = RowLoaded
	}
}

func (s *Store) writeRow(absolute uint64, startCol uint32, seq uint64, cells []uint64, authoritative bool) {
	r := s.rowFor(absolute)
	needed := int(startCol) + len(cells)
	if needed > len(r.Cells) {
		grown := make([]Cell, needed)
		copy(grown, r.Cells)
		r.Cells = grown
	}
	for i, packed := range cells {
		col := int(startCol) + i
		cellSeq := seq + uint64(i)
		existing := r.Cells[col]
		if authoritative || cellSeq > existing.Seq {
			r.Cells[col] = Cell{Char: wire.CellCodePoint(packed), StyleID: wire.CellStyleID(packed), Seq: cellSeq}
			if cellSeq > r.LatestSeq {
				r.LatestSeq = cellSeq
			}
		}
	}
	r.State = RowLoaded
}

func (s *Store) applyTrim(v wire.TrimUpdate) {
	start := uint64(v.Start)
	end := start + uint64(v.Count)
	removed := false
	for abs := range s.rows {
		if abs >= start && abs < end {
			delete(s.rows, abs)
			removed = true
		}
	}
	if removed {
		s.historyTrimmed = true
	}
	if end > s.baseRow {
		s.baseRow = end
	}
}

func (s *Store) applyStyle(v wire.StyleUpdate) {
	existing, ok := s.styles[v.ID]
	if ok && existing.Seq >= v.Seq {
		return
	}
	s.styles[v.ID] = StyleDefinition{Fg: v.Fg, Bg: v.Bg, Attrs: v.Attrs, Seq: v.Seq}
}

// MarkPending flags the rows [start, start+count) as pending (requested but
// unfilled), used by the backfill controller before emitting a request.
func (s *Store) MarkPending(start uint64, count uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for abs := start; abs < start+uint64(count); abs++ {
		r := s.rowFor(abs)
		if r.State == RowMissing {
			r.State = RowPending
		}
	}
}

// ReleasePending reverts rows [start, start+count) that are still Pending
// back to Missing, leaving Loaded rows untouched. Used when an inflight
// backfill request completes without having filled every row it covered.
func (s *Store) ReleasePending(start uint64, count uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for abs := start; abs < start+uint64(count); abs++ {
		r, ok := s.rows[abs]
		if ok && r.State == RowPending {
			r.State = RowMissing
		}
	}
}

// RowState returns the state of the row at absolute, or RowMissing if it
// has never been touched.
func (s *Store) RowState(absolute uint64) RowState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rows[absolute]
	if !ok {
		return RowMissing
	}
	return r.State
}

// SetViewport clamps top to [baseRow, baseRow+rows.length] and records
// viewportHeight. Pure: does not mutate rows (I5).
func (s *Store) SetViewport(top uint64, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewportHeight = height
	s.viewportTop = s.clampViewportTop(top)
}

func (s *Store) clampViewportTop(top uint64) uint64 {
	lo := s.baseRow
	hi := s.baseRow + uint64(len(s.rows))
	if top < lo {
		return lo
	}
	if top > hi {
		return hi
	}
	return top
}

// SetFollowTail toggles follow-tail mode.
func (s *Store) SetFollowTail(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.followTail = on
}

// SetCursor records the cursor position for rendering overlays. A nil
// pointer clears that axis.
func (s *Store) SetCursor(row, col *uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursorRow = row
	s.cursorCol = col
}

// GetSnapshot returns an immutable view of the current state.
func (s *Store) GetSnapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]Row, 0, len(s.rows))
	for _, r := range s.rows {
		rows = append(rows, cloneRow(r))
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Absolute < rows[j].Absolute })

	styles := make(map[uint32]StyleDefinition, len(s.styles))
	for id, def := range s.styles {
		styles[id] = def
	}

	return Snapshot{
		BaseRow:        s.baseRow,
		Cols:           s.cols,
		Rows:           rows,
		Styles:         styles,
		FollowTail:     s.followTail,
		HistoryTrimmed: s.historyTrimmed,
		ViewportTop:    s.viewportTop,
		ViewportHeight: s.viewportHeight,
		CursorRow:      s.cursorRow,
		CursorCol:      s.cursorCol,
	}
}

func cloneRow(r *Row) Row {
	cells := make([]Cell, len(r.Cells))
	copy(cells, r.Cells)
	return Row{Absolute: r.Absolute, State: r.State, LatestSeq: r.LatestSeq, Cells: cells}
}

// VisibleRows computes the ordered sequence of rows the renderer should
// draw, per spec §4.7's three-way rule.
func (s *Store) VisibleRows(limit int) []Row {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.followTail && s.viewportHeight >= 1 {
		return s.tailRows(min(s.viewportHeight, limit))
	}
	if s.viewportHeight < 1 {
		return s.tailRows(min(limit, len(s.rows)))
	}
	return s.windowRows(s.viewportTop, min(s.viewportHeight, limit))
}

func (s *Store) tailRows(n int) []Row {
	if n <= 0 {
		return nil
	}
	absolutes := make([]uint64, 0, len(s.rows))
	for abs := range s.rows {
		absolutes = append(absolutes, abs)
	}
	sort.Slice(absolutes, func(i, j int) bool { return absolutes[i] > absolutes[j] })
	if len(absolutes) > n {
		absolutes = absolutes[:n]
	}
	out := make([]Row, len(absolutes))
	for i, abs := range absolutes {
		out[len(absolutes)-1-i] = cloneRow(s.rows[abs])
	}
	return out
}

func (s *Store) windowRows(top uint64, n int) []Row {
	if n <= 0 {
		return nil
	}
	out := make([]Row, 0, n)
	for i := 0; i < n; i++ {
		abs := top + uint64(i)
		r, ok := s.rows[abs]
		if !ok {
			out = append(out, Row{Absolute: abs, State: RowMissing})
			continue
		}
		out = append(out, cloneRow(r))
	}
	return out
}

// GetRowText returns the row's text with trailing whitespace trimmed, for
// diagnostics.
func (s *Store) GetRowText(absolute uint64) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rows[absolute]
	if !ok {
		return ""
	}
	var b strings.Builder
	for _, c := range r.Cells {
		if c.Char == 0 {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(c.Char)
	}
	return strings.TrimRight(b.String(), " \t")
}
