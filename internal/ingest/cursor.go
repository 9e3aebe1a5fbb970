package ingest

// EpochStart 是空序列的起始游标：2010-07-17T00:00:00Z（毫秒）。
const EpochStart int64 = 1279324800000

// ResolveCursor 返回下一次拉取的起点：已有数据时为 max(timestamp)+1ms，否则为 EpochStart。
func ResolveCursor(maxTimestamp int64, ok bool) int64 {
	if !ok {
		return EpochStart
	}
	return maxTimestamp + 1
}
