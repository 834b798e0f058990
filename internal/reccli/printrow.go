package reccli

import "github.com/calvinalkan/reccore/internal/engine"

// printRow prints row's columns in schema order, one "name=value" per line.
func printRow(o *IO, e *engine.Engine, row engine.Row) {
	schema := e.Schema()

	for i := 0; i < schema.ColumnCount(); i++ {
		name := schema.Column(i).Name
		o.Printf("%s=%s\n", name, row[name])
	}
}
