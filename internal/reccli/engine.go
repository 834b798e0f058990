package reccli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/calvinalkan/reccore/internal/config"
	"github.com/calvinalkan/reccore/internal/datafile"
	"github.com/calvinalkan/reccore/internal/engine"
	"github.com/calvinalkan/reccore/internal/fs"
	"github.com/calvinalkan/reccore/internal/logicalschema"
)

// caller is the fixed lock-owner identity used for this process's one-shot
// lock/mutate/unlock sequences. reccorectl never holds a lock across two
// separate invocations, so a single constant identity is enough.
const caller engine.CallerID = "reccorectl"

// ErrNoPKColumns is returned when a command that opens the engine is run
// without --pk naming at least one primary-key column.
var ErrNoPKColumns = errors.New("reccorectl: --pk must name at least one column")

// openEngine opens the data file named by cfg.DataFile through the real
// filesystem, building a one-to-one logical schema over its physical fields
// and marking pkCols as the primary key, in the order given.
func openEngine(cfg config.Config, pkCols []string) (*engine.Engine, error) {
	if err := config.RequireDataFile(cfg); err != nil {
		return nil, err
	}

	if len(pkCols) == 0 {
		return nil, ErrNoPKColumns
	}

	real := fs.NewReal()

	probe, err := datafile.Open(real, cfg.DataFile)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", cfg.DataFile, err)
	}

	physical := probe.Schema()

	pkSet := make(map[string]bool, len(pkCols))
	for _, name := range pkCols {
		pkSet[strings.TrimSpace(name)] = true
	}

	columns := make([]logicalschema.Column, physical.FieldCount())

	for i := 0; i < physical.FieldCount(); i++ {
		length, lerr := physical.FieldLength(i)
		if lerr != nil {
			_ = probe.Close()

			return nil, lerr
		}

		name := physical.FieldName(i)
		columns[i] = logicalschema.Column{Name: name, Length: length, IsPK: pkSet[name]}
	}

	if err := probe.Close(); err != nil {
		return nil, fmt.Errorf("closing schema probe: %w", err)
	}

	schema := logicalschema.New(columns)

	e, err := engine.Open(real, cfg.DataFile, schema, nil, engine.Config{
		MaxLockCells:     cfg.MaxLockCells,
		LockExpiry:       cfg.LockExpiry(),
		LockRetryWait:    cfg.LockRetryWait(),
		WatchdogInterval: cfg.WatchdogInterval(),
		FindBlockSize:    cfg.FindBlockSize,
		Charset:          cfg.Charset,
	})
	if err != nil {
		return nil, fmt.Errorf("opening engine: %w", err)
	}

	return e, nil
}

// ErrMalformedAssignment is returned when a positional "col=value" argument
// has no '=' separator.
var ErrMalformedAssignment = errors.New("reccorectl: expected col=value")

// parseRow turns "col=value" positional arguments into an engine.Row.
func parseRow(args []string) (engine.Row, error) {
	row := make(engine.Row, len(args))

	for _, arg := range args {
		col, val, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMalformedAssignment, arg)
		}

		row[col] = val
	}

	return row, nil
}

// parseCriteria turns "col=value" positional arguments into an
// engine.Criteria slice aligned to schema's column order. Columns not
// mentioned stay nil (match-any).
func parseCriteria(schema *logicalschema.Schema, args []string) (engine.Criteria, error) {
	values := make(map[string]string, len(args))

	for _, arg := range args {
		col, val, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMalformedAssignment, arg)
		}

		values[col] = val
	}

	criteria := make(engine.Criteria, schema.ColumnCount())

	for i := 0; i < schema.ColumnCount(); i++ {
		name := schema.Column(i).Name
		if v, ok := values[name]; ok {
			vv := v
			criteria[i] = &vv
		}
	}

	return criteria, nil
}
