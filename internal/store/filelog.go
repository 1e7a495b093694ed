package store

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/roach88/fpledger/internal/ir"
)

const (
	logFilePerm    = 0o600
	defaultBufSize = 64 * 1024
)

// FileLog is a BlockLog over a file of newline-delimited canonical records.
//
// Each Append writes one record plus '\n', flushes, and fsyncs before
// returning. A crash mid-write leaves a tail without the terminating
// newline; that tail is ignored on read and cut off before the next append.
// A newline-terminated record that fails to decode is corruption, not a torn
// write, and surfaces as ErrCorruptRecord.
type FileLog struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	buf    *bufio.Writer
	logger *slog.Logger

	size  int64 // bytes of complete records
	count int64 // number of complete records
}

// FileLogOption configures a FileLog.
type FileLogOption func(*FileLog)

// WithLogger sets the logger used for tail recovery warnings.
func WithLogger(l *slog.Logger) FileLogOption {
	return func(f *FileLog) {
		if l != nil {
			f.logger = l
		}
	}
}

// OpenFileLog opens or creates the log at path and scans it once to find the
// end of valid history.
func OpenFileLog(path string, opts ...FileLogOption) (*FileLog, error) {
	f := &FileLog{path: path, logger: slog.Default()}
	for _, opt := range opts {
		opt(f)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, logFilePerm)
	if err != nil {
		return nil, fmt.Errorf("open block log: %w", err)
	}
	f.file = file
	f.buf = bufio.NewWriterSize(file, defaultBufSize)

	scan, err := scanRecords(path)
	if err != nil {
		file.Close()
		return nil, err
	}
	f.size = scan.validSize
	f.count = int64(len(scan.blocks))
	if scan.tornBytes > 0 {
		f.logger.Warn("block log has a truncated trailing record; treating it as end of history",
			"path", path, "valid_records", f.count, "discarded_bytes", scan.tornBytes)
	}
	return f, nil
}

// Append writes b durably. b.Index must equal the number of stored records.
func (f *FileLog) Append(ctx context.Context, b ir.Block) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	record, err := ir.EncodeBlock(b)
	if err != nil {
		return fmt.Errorf("write block: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return ErrClosed
	}
	if b.Index != f.count {
		return fmt.Errorf("write block %d: %w (height %d)", b.Index, ErrIndexConflict, f.count)
	}
	if err := f.cutTornTail(); err != nil {
		return fmt.Errorf("write block %d: %w", b.Index, err)
	}

	record = append(record, '\n')
	if _, err := f.buf.Write(record); err != nil {
		f.rollback()
		return fmt.Errorf("write block %d: %w", b.Index, err)
	}
	if err := f.flushAndSync(); err != nil {
		f.rollback()
		return fmt.Errorf("write block %d: %w", b.Index, err)
	}

	f.size += int64(len(record))
	f.count++
	return nil
}

// cutTornTail truncates bytes past the last complete record.
func (f *FileLog) cutTornTail() error {
	info, err := f.file.Stat()
	if err != nil {
		return err
	}
	if info.Size() == f.size {
		return nil
	}
	f.logger.Warn("cutting truncated trailing record before append",
		"path", f.path, "discarded_bytes", info.Size()-f.size)
	if err := f.file.Truncate(f.size); err != nil {
		return fmt.Errorf("truncate torn tail: %w", err)
	}
	return f.file.Sync()
}

// rollback drops buffered bytes and any partial write.
func (f *FileLog) rollback() {
	f.buf.Reset(f.file)
	if err := f.file.Truncate(f.size); err != nil {
		f.logger.Error("failed to roll back partial block write", "path", f.path, "error", err)
	}
}

func (f *FileLog) flushAndSync() error {
	if err := f.buf.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	if err := f.file.Sync(); err != nil {
		return fmt.Errorf("fsync: %w", err)
	}
	return nil
}

// ReadAll re-reads the file and returns every complete record.
// Returns an empty slice (not nil) if the log is empty.
func (f *FileLog) ReadAll(ctx context.Context) ([]ir.Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil, ErrClosed
	}

	scan, err := scanRecords(f.path)
	if err != nil {
		return nil, err
	}
	if scan.tornBytes > 0 {
		f.logger.Warn("ignoring truncated trailing record",
			"path", f.path, "valid_records", len(scan.blocks), "discarded_bytes", scan.tornBytes)
	}
	return scan.blocks, nil
}

// Meta derives the chain summary from the last complete record.
func (f *FileLog) Meta(ctx context.Context) (ir.ChainMeta, error) {
	blocks, err := f.ReadAll(ctx)
	if err != nil {
		return ir.ChainMeta{}, err
	}
	return ir.MetaOf(blocks), nil
}

// Close flushes and closes the file. Safe to call more than once.
func (f *FileLog) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil
	}
	err := errors.Join(f.flushAndSync(), f.file.Close())
	f.file = nil
	return err
}

type scanResult struct {
	blocks    []ir.Block
	validSize int64
	tornBytes int64
}

func scanRecords(path string) (scanResult, error) {
	res := scanResult{blocks: []ir.Block{}}

	file, err := os.Open(path)
	if err != nil {
		return res, fmt.Errorf("read block log: %w", err)
	}
	defer file.Close()

	r := bufio.NewReaderSize(file, defaultBufSize)
	for {
		line, err := r.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			// Anything left without a newline is a torn write.
			res.tornBytes = int64(len(line))
			return res, nil
		}
		if err != nil {
			return res, fmt.Errorf("read block log: %w", err)
		}

		b, err := decodeRecord(int64(len(res.blocks)), bytes.TrimSuffix(line, []byte{'\n'}))
		if err != nil {
			return res, err
		}
		res.blocks = append(res.blocks, b)
		res.validSize += int64(len(line))
	}
}
