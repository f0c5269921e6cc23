// Package results appends measurement rows to CSV logs.
package results

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gocarina/gocsv"
)

// Row is one transfer measurement.
type Row struct {
	Protocol  string
	Variant   string
	FileName  string
	FileSize  int
	Iteration int // 1-based
	Elapsed   time.Duration
	// Throughput in bytes per second.
	Throughput float64
	// TimedOut is set when no acknowledgement arrived before the deadline.
	// It is not part of the CSV schema.
	TimedOut bool
}

// NewRow builds a Row, deriving the throughput from |size| and |elapsed|.
func NewRow(protocol, variant, name string, size, iteration int, elapsed time.Duration) Row {
	r := Row{
		Protocol:  protocol,
		Variant:   variant,
		FileName:  name,
		FileSize:  size,
		Iteration: iteration,
		Elapsed:   elapsed,
	}
	if elapsed > 0 {
		r.Throughput = float64(size) / elapsed.Seconds()
	}
	return r
}

// record is the CSV form of a Row.
type record struct {
	Protocol   string `csv:"protocol"`
	Variant    string `csv:"variant"`
	FileName   string `csv:"file_name"`
	FileSize   int    `csv:"file_size_bytes"`
	Iteration  int    `csv:"iteration"`
	Elapsed    string `csv:"elapsed_sec"`
	Throughput string `csv:"throughput_Bps"`
}

func newRecord(r Row) *record {
	return &record{
		Protocol:   r.Protocol,
		Variant:    r.Variant,
		FileName:   r.FileName,
		FileSize:   r.FileSize,
		Iteration:  r.Iteration,
		Elapsed:    strconv.FormatFloat(r.Elapsed.Seconds(), 'f', 6, 64),
		Throughput: strconv.FormatFloat(r.Throughput, 'f', 2, 64),
	}
}

// OverheadRow describes one message received by the subscriber.
type OverheadRow struct {
	ReceivedAt   time.Time
	Topic        string
	FileName     string
	QoS          byte
	Duplicate    bool
	Retained     bool
	PayloadBytes int
	HeaderBytes  int
	TotalBytes   int
	Ratio        float64
	AckTopic     string
}

type overheadRecord struct {
	ReceivedAt   string `csv:"received_at"`
	Topic        string `csv:"topic"`
	FileName     string `csv:"filename"`
	QoS          int    `csv:"qos"`
	Duplicate    bool   `csv:"dup"`
	Retained     bool   `csv:"retain"`
	PayloadBytes int    `csv:"payload_bytes"`
	HeaderBytes  int    `csv:"header_bytes_est"`
	TotalBytes   int    `csv:"app_total_bytes"`
	Ratio        string `csv:"app_over_file_ratio"`
	AckTopic     string `csv:"ack_topic"`
}

// TimeFormat is the layout of the received_at column.
const TimeFormat = "2006-01-02 15:04:05.000"

func newOverheadRecord(r OverheadRow) *overheadRecord {
	ratio := "inf"
	if !math.IsInf(r.Ratio, 0) {
		ratio = strconv.FormatFloat(r.Ratio, 'f', 6, 64)
	}
	return &overheadRecord{
		ReceivedAt:   r.ReceivedAt.Format(TimeFormat),
		Topic:        r.Topic,
		FileName:     r.FileName,
		QoS:          int(r.QoS),
		Duplicate:    r.Duplicate,
		Retained:     r.Retained,
		PayloadBytes: r.PayloadBytes,
		HeaderBytes:  r.HeaderBytes,
		TotalBytes:   r.TotalBytes,
		Ratio:        ratio,
		AckTopic:     r.AckTopic,
	}
}

// appender owns one append-only CSV destination. The header is written with
// the first batch appended to an empty file, so it appears exactly once no
// matter how many times the destination is reopened.
type appender struct {
	f          *os.File
	needHeader bool
}

func openAppender(path string) (*appender, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &appender{f: f, needHeader: info.Size() == 0}, nil
}

// write marshals |records|, a non-empty slice of tagged structs.
func (a *appender) write(records interface{}) error {
	var err error
	if a.needHeader {
		err = gocsv.Marshal(records, a.f)
	} else {
		err = gocsv.MarshalWithoutHeaders(records, a.f)
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", a.f.Name(), err)
	}
	a.needHeader = false
	return a.f.Sync()
}

func (a *appender) Close() error {
	return a.f.Close()
}

// File is a transfer result log.
type File struct {
	a *appender
}

// Open opens the transfer result log at |path| for appending, creating it
// and its directory as needed.
func Open(path string) (*File, error) {
	a, err := openAppender(path)
	if err != nil {
		return nil, err
	}
	return &File{a: a}, nil
}

// WriteRows appends |rows| and syncs the file. An empty batch writes
// nothing.
func (f *File) WriteRows(rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	records := make([]*record, 0, len(rows))
	for _, r := range rows {
		records = append(records, newRecord(r))
	}
	return f.a.write(records)
}

// Close closes the underlying file.
func (f *File) Close() error {
	return f.a.Close()
}

// OverheadLog is the subscriber's per-message log.
type OverheadLog struct {
	a *appender
}

// OpenOverheadLog opens the overhead log at |path| for appending.
func OpenOverheadLog(path string) (*OverheadLog, error) {
	a, err := openAppender(path)
	if err != nil {
		return nil, err
	}
	return &OverheadLog{a: a}, nil
}

// WriteOverhead appends one row. It is not safe for concurrent use.
func (l *OverheadLog) WriteOverhead(r OverheadRow) error {
	return l.a.write([]*overheadRecord{newOverheadRecord(r)})
}

// Close closes the underlying file.
func (l *OverheadLog) Close() error {
	return l.a.Close()
}

var _ io.Closer = &File{}
