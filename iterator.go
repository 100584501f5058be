package sqlkit

import "context"

// ResultIterator steps through the rows of a Result.
//
//	it := res.Iterator()
//	for it.Next(ctx) {
//		row := it.Row()
//		...
//	}
//	if err := it.Err(); err != nil {
//		...
//	}
type ResultIterator struct {
	res     *Result
	row     *Row
	err     error
	key     int
	started bool
}

// Next advances to the next row. It returns false when the rows are
// exhausted or an error occurred.
func (it *ResultIterator) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}
	if !it.started {
		if it.err = it.res.rewind(ctx); it.err != nil {
			return false
		}
		it.started = true
		it.key = -1
	}
	it.row, it.err = it.res.Fetch(ctx)
	if it.err != nil || it.row == nil {
		it.row = nil
		return false
	}
	it.key++
	return true
}

// Row returns the current row.
func (it *ResultIterator) Row() *Row { return it.row }

// Key returns the zero based position of the current row.
func (it *ResultIterator) Key() int { return it.key }

// Err returns the error that stopped the iteration, if any.
func (it *ResultIterator) Err() error { return it.err }

// Rewind restarts the iteration from the first row.
func (it *ResultIterator) Rewind() {
	it.started = false
	it.row = nil
	it.err = nil
	it.key = 0
}
