package cdr

// Column names the analytics pipeline reads from a dataset.
const (
	ColCallDate    = "calldate"
	ColSource      = "src"
	ColDestination = "destination"
	ColDst         = "dst"
	ColDisposition = "disposition"
	ColDuration    = "duration"
	ColBillSec     = "billsec"
)

// RemoteSchema is the column layout returned by the remote CDR query.
// The pipeline only needs the six analytics columns; the rest are kept
// in Record.Fields for display and export.
var RemoteSchema = []string{
	"cdr_id", "calldate", "clid", "source", "src", "dst", "destination",
	"dcontext", "channel", "dstchannel", "lastapp", "lastdata",
	"duration", "billsec", "disposition", "amaflags",
}

// Disposition values tracked by the per-hour series
const (
	Answered = "ANSWERED"
	NoAnswer = "NO ANSWER"
	Failed   = "FAILED"
	Busy     = "BUSY"

	// Unknown is the bucket used for records without a disposition
	Unknown = "UNKNOWN"
)

// TrackedDispositions lists the known dispositions in display order
var TrackedDispositions = []string{Answered, NoAnswer, Failed, Busy}

// IsTracked reports whether d is one of the four known dispositions
func IsTracked(d string) bool {
	switch d {
	case Answered, NoAnswer, Failed, Busy:
		return true
	}
	return false
}

// Field identifies one of the analytics columns of a Record
type Field uint8

const (
	FieldCallDate Field = 1 << iota
	FieldSource
	FieldDestination
	FieldDisposition
	FieldDuration
	FieldBillSec
)

// Record represents one call event. Values are kept as the raw text of
// the input cell; numeric coercion is left to the consumer.
type Record struct {
	CallDate    string `json:"calldate"`
	Source      string `json:"src"`
	Destination string `json:"destination"`
	Disposition string `json:"disposition"`
	Duration    string `json:"duration"`
	BillSec     string `json:"billsec"`

	// Fields holds every column of the input row, including columns the
	// analytics do not read. It must not be modified.
	Fields map[string]string `json:"-"`

	present Field
}

// Has reports whether the field was present in the input row
func (r Record) Has(f Field) bool {
	return r.present&f != 0
}

// DisplayDestination returns the destination, the dst column, or "-"
func (r Record) DisplayDestination() string {
	if r.Destination != "" {
		return r.Destination
	}
	if dst := r.Fields[ColDst]; dst != "" {
		return dst
	}
	return "-"
}

// DurationSeconds returns duration as an integer, 0 when non-numeric
func (r Record) DurationSeconds() int {
	return IntOrZero(r.Duration)
}

// BillSeconds returns billsec as an integer, 0 when non-numeric
func (r Record) BillSeconds() int {
	return IntOrZero(r.BillSec)
}

// IsAnswered reports whether the call was answered
func (r Record) IsAnswered() bool {
	return r.Disposition == Answered
}
