package ofp

import (
	"fmt"
	"io"

	"github.com/netrack/ofswitch/internal/encoding"
)

// maxTableNameLen defines the maximum length of the table name.
const maxTableNameLen = 32

// Table defines a switch table number.
type Table uint8

// String returns a string representation of the table.
func (t Table) String() string {
	return fmt.Sprintf("Table(%d)", t)
}

const (
	// TableMax defines the last usable table number.
	TableMax Table = 0xfe

	// TableAll defines the wildcard table used for table config, flow
	// stats and flow deletes.
	TableAll Table = 0xff
)

// TableConfig defines the flags to configure the table. Reserved for
// future use.
type TableConfig uint32

const (
	// TableConfigDeprecatedMask defines the deprecated bits of the
	// table configuration.
	TableConfigDeprecatedMask TableConfig = 3
)

// TableMod is a message used to configure or modify behavior of a
// flow table.
//
// This switch has a single, fixed pipeline stage, so a TableMod is
// accepted and acknowledged but otherwise has no effect.
type TableMod struct {
	// The Table chooses the table to which the configuration change should
	// be applied. If the Table is TableAll, the configuration is applied
	// to all tables in the switch.
	Table Table

	// The config field is a bitmap that is provided for backward
	// compatibility with earlier version of the specification, it is
	// reserved for future use.
	Config TableConfig
}

// WriteTo implements io.WriterTo interface. It serializes the table
// modification message into the wire format.
func (t *TableMod) WriteTo(w io.Writer) (int64, error) {
	return encoding.WriteTo(w, t.Table, pad3{}, t.Config)
}

// ReadFrom implements io.ReaderFrom interface. It deserializes the
// table modification message from the wire format.
func (t *TableMod) ReadFrom(r io.Reader) (int64, error) {
	return encoding.ReadFrom(r, &t.Table, &defaultPad3, &t.Config)
}

// TableStats defines a multipart request body used to query information
// about tables presented within a switch.
type TableStats struct {
	// Table identifies a table within a switch. Lower numbered tables
	// are consulted first.
	Table Table

	// ActiveCount is a number of active entries.
	ActiveCount uint32

	// LookupCount is a number of packets looked up in table.
	LookupCount uint64

	// MatchedCount is a number of packets that hit table.
	MatchedCount uint64
}

// WriteTo implements io.WriterTo interface. It serializes the table
// statistics into the wire format.
func (t *TableStats) WriteTo(w io.Writer) (int64, error) {
	return encoding.WriteTo(w, t.Table, pad3{},
		t.ActiveCount, t.LookupCount, t.MatchedCount)
}

// ReadFrom implements io.ReaderFrom interface. It deserializes the
// table statistics from the wire format.
func (t *TableStats) ReadFrom(r io.Reader) (int64, error) {
	return encoding.ReadFrom(r, &t.Table, &defaultPad3,
		&t.ActiveCount, &t.LookupCount, &t.MatchedCount)
}
