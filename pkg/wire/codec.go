package wire

func encodeSyncConfig(w *writer, c SyncConfig) {
	w.u32(uint32(len(c.SnapshotBudgets)))
	for _, b := range c.SnapshotBudgets {
		w.byte(byte(b.Lane))
		w.u32(b.MaxUpdates)
	}
	w.u32(c.DeltaBudget)
	w.u32(c.HeartbeatMs)
	w.u32(c.InitialSnapshotLines)
}

func decodeSyncConfig(r *reader) (SyncConfig, error) {
	var c SyncConfig
	n, err := r.u32("config.budgets.count")
	if err != nil {
		return c, err
	}
	if int(n) > r.remaining() {
		return c, errLengthOverflow("config.budgets.count", int(n), r.remaining())
	}
	c.SnapshotBudgets = make([]SnapshotBudget, n)
	for i := range c.SnapshotBudgets {
		lane, err := r.byte("config.budgets.lane")
		if err != nil {
			return c, err
		}
		maxUpdates, err := r.u32("config.budgets.maxUpdates")
		if err != nil {
			return c, err
		}
		c.SnapshotBudgets[i] = SnapshotBudget{Lane: Lane(lane), MaxUpdates: maxUpdates}
	}
	if c.DeltaBudget, err = r.u32("config.deltaBudget"); err != nil {
		return c, err
	}
	if c.HeartbeatMs, err = r.u32("config.heartbeatMs"); err != nil {
		return c, err
	}
	if c.InitialSnapshotLines, err = r.u32("config.initialSnapshotLines"); err != nil {
		return c, err
	}
	return c, nil
}

// EncodeHostFrame serialises a host->client frame to its wire representation.
func EncodeHostFrame(f HostFrame) ([]byte, error) {
	w := newWriter()
	w.byte(byte(f.HostTag()))
	switch v := f.(type) {
	case Heartbeat:
		w.u64(v.Seq)
		w.u64(v.TimestampMs)
	case Hello:
		w.u64(v.Subscription)
		w.u64(v.MaxSeq)
		encodeSyncConfig(w, v.Config)
	case Grid:
		w.u32(v.ViewportRows)
		w.u32(v.Cols)
		w.u32(v.HistoryRows)
		w.u64(v.BaseRow)
	case Snapshot:
		w.u64(v.Subscription)
		w.byte(byte(v.Lane))
		w.u64(v.Watermark)
		w.bool8(v.HasMore)
		if err := encodeUpdates(w, v.Updates); err != nil {
			return nil, err
		}
	case SnapshotComplete:
		w.u64(v.Subscription)
		w.byte(byte(v.Lane))
	case Delta:
		w.u64(v.Subscription)
		w.u64(v.Watermark)
		w.bool8(v.HasMore)
		if err := encodeUpdates(w, v.Updates); err != nil {
			return nil, err
		}
	case HistoryBackfill:
		w.u64(v.Subscription)
		w.u64(v.RequestID)
		w.u64(v.StartRow)
		w.u32(v.Count)
		if err := encodeUpdates(w, v.Updates); err != nil {
			return nil, err
		}
		w.bool8(v.More)
	case InputAck:
		w.u64(v.Seq)
	case Shutdown:
		// no payload
	default:
		return nil, newDecodeError("unsupported host frame type %T", f)
	}
	return w.bytesOut(), nil
}

// DecodeHostFrame parses a host->client frame. It fails with a *DecodeError
// on truncated input, an unknown discriminator, or a length field exceeding
// the remaining buffer (spec §4.1).
func DecodeHostFrame(b []byte) (HostFrame, error) {
	r := newReader(b)
	tag, err := r.byte("frame.tag")
	if err != nil {
		return nil, err
	}
	switch HostFrameTag(tag) {
	case HostFrameHeartbeat:
		seq, err := r.u64("heartbeat.seq")
		if err != nil {
			return nil, err
		}
		ts, err := r.u64("heartbeat.timestampMs")
		if err != nil {
			return nil, err
		}
		return Heartbeat{Seq: seq, TimestampMs: ts}, nil

	case HostFrameHello:
		sub, err := r.u64("hello.subscription")
		if err != nil {
			return nil, err
		}
		maxSeq, err := r.u64("hello.maxSeq")
		if err != nil {
			return nil, err
		}
		cfg, err := decodeSyncConfig(r)
		if err != nil {
			return nil, err
		}
		return Hello{Subscription: sub, MaxSeq: maxSeq, Config: cfg}, nil

	case HostFrameGrid:
		viewportRows, err := r.u32("grid.viewportRows")
		if err != nil {
			return nil, err
		}
		cols, err := r.u32("grid.cols")
		if err != nil {
			return nil, err
		}
		historyRows, err := r.u32("grid.historyRows")
		if err != nil {
			return nil, err
		}
		baseRow, err := r.u64("grid.baseRow")
		if err != nil {
			return nil, err
		}
		return Grid{ViewportRows: viewportRows, Cols: cols, HistoryRows: historyRows, BaseRow: baseRow}, nil

	case HostFrameSnapshot:
		sub, err := r.u64("snapshot.subscription")
		if err != nil {
			return nil, err
		}
		lane, err := r.byte("snapshot.lane")
		if err != nil {
			return nil, err
		}
		watermark, err := r.u64("snapshot.watermark")
		if err != nil {
			return nil, err
		}
		hasMore, err := r.bool8("snapshot.hasMore")
		if err != nil {
			return nil, err
		}
		updates, err := decodeUpdates(r)
		if err != nil {
			return nil, err
		}
		return Snapshot{Subscription: sub, Lane: Lane(lane), Watermark: watermark, HasMore: hasMore, Updates: updates}, nil

	case HostFrameSnapshotComplete:
		sub, err := r.u64("snapshot_complete.subscription")
		if err != nil {
			return nil, err
		}
		lane, err := r.byte("snapshot_complete.lane")
		if err != nil {
			return nil, err
		}
		return SnapshotComplete{Subscription: sub, Lane: Lane(lane)}, nil

	case HostFrameDelta:
		sub, err := r.u64("delta.subscription")
		if err != nil {
			return nil, err
		}
		watermark, err := r.u64("delta.watermark")
		if err != nil {
			return nil, err
		}
		hasMore, err := r.bool8("delta.hasMore")
		if err != nil {
			return nil, err
		}
		updates, err := decodeUpdates(r)
		if err != nil {
			return nil, err
		}
		return Delta{Subscription: sub, Watermark: watermark, HasMore: hasMore, Updates: updates}, nil

	case HostFrameHistoryBackfill:
		sub, err := r.u64("history_backfill.subscription")
		if err != nil {
			return nil, err
		}
		reqID, err := r.u64("history_backfill.requestId")
		if err != nil {
			return nil, err
		}
		startRow, err := r.u64("history_backfill.startRow")
		if err != nil {
			return nil, err
		}
		count, err := r.u32("history_backfill.count")
		if err != nil {
			return nil, err
		}
		updates, err := decodeUpdates(r)
		if err != nil {
			return nil, err
		}
		more, err := r.bool8("history_backfill.more")
		if err != nil {
			return nil, err
		}
		return HistoryBackfill{Subscription: sub, RequestID: reqID, StartRow: startRow, Count: count, Updates: updates, More: more}, nil

	case HostFrameInputAck:
		seq, err := r.u64("input_ack.seq")
		if err != nil {
			return nil, err
		}
		return InputAck{Seq: seq}, nil

	case HostFrameShutdown:
		return Shutdown{}, nil

	default:
		return nil, errUnknownFrameTag(tag)
	}
}

// EncodeClientFrame serialises a client->host frame to its wire representation.
func EncodeClientFrame(f ClientFrame) ([]byte, error) {
	w := newWriter()
	w.byte(byte(f.ClientTag()))
	switch v := f.(type) {
	case Input:
		w.u64(v.Seq)
		w.bytes(v.Data)
	case Resize:
		w.u32(v.Cols)
		w.u32(v.Rows)
	case RequestBackfill:
		w.u64(v.Subscription)
		w.u64(v.RequestID)
		w.u64(v.StartRow)
		w.u32(v.Count)
	default:
		return nil, newDecodeError("unsupported client frame type %T", f)
	}
	return w.bytesOut(), nil
}

// DecodeClientFrame parses a client->host frame.
func DecodeClientFrame(b []byte) (ClientFrame, error) {
	r := newReader(b)
	tag, err := r.byte("frame.tag")
	if err != nil {
		return nil, err
	}
	switch ClientFrameTag(tag) {
	case ClientFrameInput:
		seq, err := r.u64("input.seq")
		if err != nil {
			return nil, err
		}
		data, err := r.bytes("input.data")
		if err != nil {
			return nil, err
		}
		return Input{Seq: seq, Data: data}, nil

	case ClientFrameResize:
		cols, err := r.u32("resize.cols")
		if err != nil {
			return nil, err
		}
		rows, err := r.u32("resize.rows")
		if err != nil {
			return nil, err
		}
		return Resize{Cols: cols, Rows: rows}, nil

	case ClientFrameRequestBackfill:
		sub, err := r.u64("request_backfill.subscription")
		if err != nil {
			return nil, err
		}
		reqID, err := r.u64("request_backfill.requestId")
		if err != nil {
			return nil, err
		}
		startRow, err := r.u64("request_backfill.startRow")
		if err != nil {
			return nil, err
		}
		count, err := r.u32("request_backfill.count")
		if err != nil {
			return nil, err
		}
		return RequestBackfill{Subscription: sub, RequestID: reqID, StartRow: startRow, Count: count}, nil

	default:
		return nil, errUnknownFrameTag(tag)
	}
}
