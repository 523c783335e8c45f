package wire

// UpdateTag is the single-byte discriminator for an Update variant (spec §6.3).
type UpdateTag byte

const (
	UpdateTagCell       UpdateTag = 0x01
	UpdateTagRect       UpdateTag = 0x02
	UpdateTagRow        UpdateTag = 0x03
	UpdateTagRowSegment UpdateTag = 0x04
	UpdateTagTrim       UpdateTag = 0x05
	UpdateTagStyle      UpdateTag = 0x06
)

// Update is the tagged sum type of the six update variants carried inside
// snapshot/delta/history_backfill frames (spec §3, §6.3).
type Update interface {
	Tag() UpdateTag
}

// CellUpdate sets one cell.
type CellUpdate struct {
	Row, Col uint32
	Seq      uint64
	Cell     uint64
}

func (CellUpdate) Tag() UpdateTag { return UpdateTagCell }

// RectUpdate fills the half-open rectangle rows[RowLo,RowHi) x cols[ColLo,ColHi)
// with a single cell value.
type RectUpdate struct {
	RowLo, RowHi uint32
	ColLo, ColHi uint32
	Seq          uint64
	Cell         uint64
}

func (RectUpdate) Tag() UpdateTag { return UpdateTagRect }

// RowUpdate replaces an entire row.
type RowUpdate struct {
	Row   uint32
	Seq   uint64
	Cells []uint64
}

func (RowUpdate) Tag() UpdateTag { return UpdateTagRow }

// RowSegmentUpdate replaces a contiguous slice of a row starting at StartCol.
type RowSegmentUpdate struct {
	Row      uint32
	StartCol uint32
	Seq      uint64
	Cells    []uint64
}

func (RowSegmentUpdate) Tag() UpdateTag { return UpdateTagRowSegment }

// TrimUpdate discards rows [Start, Start+Count) from the low end of history.
type TrimUpdate struct {
	Start, Count uint32
	Seq          uint64
}

func (TrimUpdate) Tag() UpdateTag { return UpdateTagTrim }

// StyleUpdate defines or updates a style table entry.
type StyleUpdate struct {
	ID    uint32
	Seq   uint64
	Fg    uint32
	Bg    uint32
	Attrs uint32
}

func (StyleUpdate) Tag() UpdateTag { return UpdateTagStyle }

func encodeUpdate(w *writer, u Update) error {
	switch v := u.(type) {
	case CellUpdate:
		if err := validateCell(v.Cell); err != nil {
			return err
		}
		w.byte(byte(UpdateTagCell))
		w.u32(v.Row)
		w.u32(v.Col)
		w.u64(v.Seq)
		w.u64(v.Cell)
	case RectUpdate:
		if err := validateCell(v.Cell); err != nil {
			return err
		}
		w.byte(byte(UpdateTagRect))
		w.u32(v.RowLo)
		w.u32(v.RowHi)
		w.u32(v.ColLo)
		w.u32(v.ColHi)
		w.u64(v.Seq)
		w.u64(v.Cell)
	case RowUpdate:
		for _, c := range v.Cells {
			if err := validateCell(c); err != nil {
				return err
			}
		}
		w.byte(byte(UpdateTagRow))
		w.u32(v.Row)
		w.u64(v.Seq)
		w.bytes32(v.Cells)
	case RowSegmentUpdate:
		for _, c := range v.Cells {
			if err := validateCell(c); err != nil {
				return err
			}
		}
		w.byte(byte(UpdateTagRowSegment))
		w.u32(v.Row)
		w.u32(v.StartCol)
		w.u64(v.Seq)
		w.bytes32(v.Cells)
	case TrimUpdate:
		w.byte(byte(UpdateTagTrim))
		w.u32(v.Start)
		w.u32(v.Count)
		w.u64(v.Seq)
	case StyleUpdate:
		w.byte(byte(UpdateTagStyle))
		w.u32(v.ID)
		w.u64(v.Seq)
		w.u32(v.Fg)
		w.u32(v.Bg)
		w.u32(v.Attrs)
	default:
		return newDecodeError("unsupported update type %T", u)
	}
	return nil
}

func decodeUpdate(r *reader) (Update, error) {
	tag, err := r.byte("update.tag")
	if err != nil {
		return nil, err
	}
	switch UpdateTag(tag) {
	case UpdateTagCell:
		row, err := r.u32("cell.row")
		if err != nil {
			return nil, err
		}
		col, err := r.u32("cell.col")
		if err != nil {
			return nil, err
		}
		seq, err := r.u64("cell.seq")
		if err != nil {
			return nil, err
		}
		cell, err := r.u64("cell.cell")
		if err != nil {
			return nil, err
		}
		if err := validateCell(cell); err != nil {
			return nil, err
		}
		return CellUpdate{Row: row, Col: col, Seq: seq, Cell: cell}, nil

	case UpdateTagRect:
		rowLo, err := r.u32("rect.rowLo")
		if err != nil {
			return nil, err
		}
		rowHi, err := r.u32("rect.rowHi")
		if err != nil {
			return nil, err
		}
		colLo, err := r.u32("rect.colLo")
		if err != nil {
			return nil, err
		}
		colHi, err := r.u32("rect.colHi")
		if err != nil {
			return nil, err
		}
		seq, err := r.u64("rect.seq")
		if err != nil {
			return nil, err
		}
		cell, err := r.u64("rect.cell")
		if err != nil {
			return nil, err
		}
		if err := validateCell(cell); err != nil {
			return nil, err
		}
		return RectUpdate{RowLo: rowLo, RowHi: rowHi, ColLo: colLo, ColHi: colHi, Seq: seq, Cell: cell}, nil

	case UpdateTagRow:
		row, err := r.u32("row.row")
		if err != nil {
			return nil, err
		}
		seq, err := r.u64("row.seq")
		if err != nil {
			return nil, err
		}
		cells, err := r.u64Slice("row.cells")
		if err != nil {
			return nil, err
		}
		for _, c := range cells {
			if err := validateCell(c); err != nil {
				return nil, err
			}
		}
		return RowUpdate{Row: row, Seq: seq, Cells: cells}, nil

	case UpdateTagRowSegment:
		row, err := r.u32("row_segment.row")
		if err != nil {
			return nil, err
		}
		startCol, err := r.u32("row_segment.startCol")
		if err != nil {
			return nil, err
		}
		seq, err := r.u64("row_segment.seq")
		if err != nil {
			return nil, err
		}
		cells, err := r.u64Slice("row_segment.cells")
		if err != nil {
			return nil, err
		}
		for _, c := range cells {
			if err := validateCell(c); err != nil {
				return nil, err
			}
		}
		return RowSegmentUpdate{Row: row, StartCol: startCol, Seq: seq, Cells: cells}, nil

	case UpdateTagTrim:
		start, err := r.u32("trim.start")
		if err != nil {
			return nil, err
		}
		count, err := r.u32("trim.count")
		if err != nil {
			return nil, err
		}
		seq, err := r.u64("trim.seq")
		if err != nil {
			return nil, err
		}
		return TrimUpdate{Start: start, Count: count, Seq: seq}, nil

	case UpdateTagStyle:
		id, err := r.u32("style.id")
		if err != nil {
			return nil, err
		}
		seq, err := r.u64("style.seq")
		if err != nil {
			return nil, err
		}
		fg, err := r.u32("style.fg")
		if err != nil {
			return nil, err
		}
		bg, err := r.u32("style.bg")
		if err != nil {
			return nil, err
		}
		attrs, err := r.u32("style.attrs")
		if err != nil {
			return nil, err
		}
		return StyleUpdate{ID: id, Seq: seq, Fg: fg, Bg: bg, Attrs: attrs}, nil

	default:
		return nil, errUnknownUpdateTag(tag)
	}
}

func encodeUpdates(w *writer, updates []Update) error {
	w.u32(uint32(len(updates)))
	for _, u := range updates {
		if err := encodeUpdate(w, u); err != nil {
			return err
		}
	}
	return nil
}

func decodeUpdates(r *reader) ([]Update, error) {
	n, err := r.u32("updates.count")
	if err != nil {
		return nil, err
	}
	// Each update is at least 1 byte (tag); bail early on an implausible
	// count rather than allocating based on untrusted input.
	if int(n) > r.remaining() {
		return nil, errLengthOverflow("updates.count", int(n), r.remaining())
	}
	if n == 0 {
		return nil, nil
	}
	updates := make([]Update, n)
	for i := range updates {
		u, err := decodeUpdate(r)
		if err != nil {
			return nil, err
		}
		updates[i] = u
	}
	return updates, nil
}
