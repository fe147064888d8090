package sink

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Snapshot - снапшот таблицы приемника, снятый перед деплоем.
// Строки хранятся сжатыми (zstd), чтобы снапшоты больших таблиц
// не держали в памяти гигабайты текста.
type Snapshot struct {
	Table    string
	Columns  []string
	RowCount int
	TakenAt  time.Time

	compressed []byte
}

// NewSnapshot создает снапшот из содержимого таблицы
func NewSnapshot(table string, columns []string, rows [][]string) (*Snapshot, error) {
	payload, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot rows: %w", err)
	}

	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	if _, err := enc.Write(payload); err != nil {
		enc.Close()
		return nil, fmt.Errorf("failed to compress snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize snapshot: %w", err)
	}

	return &Snapshot{
		Table:      table,
		Columns:    append([]string(nil), columns...),
		RowCount:   len(rows),
		TakenAt:    time.Now(),
		compressed: buf.Bytes(),
	}, nil
}

// Rows распаковывает и возвращает строки снапшота
func (s *Snapshot) Rows() ([][]string, error) {
	dec, err := zstd.NewReader(bytes.NewReader(s.compressed))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer dec.Close()

	var rows [][]string
	if err := json.NewDecoder(dec).Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot rows: %w", err)
	}
	return rows, nil
}

// CompressedSize возвращает размер сжатых данных в байтах
func (s *Snapshot) CompressedSize() int {
	return len(s.compressed)
}
