package sqlkit

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"reflect"
	"slices"

	"github.com/go-openapi/inflect"
)

// Row is a fetched row. Modifications are tracked and can be written back
// with Update.
type Row struct {
	data     map[string]any
	orig     map[string]any
	modified map[string]bool
	result   *Result
}

func newRow(data map[string]any, r *Result) *Row {
	return &Row{data: data, result: r}
}

// Get returns the value of field, nil if the row has no such field.
func (r *Row) Get(field string) any {
	return r.data[field]
}

// Lookup returns the value of field and whether the row has it.
func (r *Row) Lookup(field string) (any, bool) {
	v, ok := r.data[field]
	return v, ok
}

// Has reports whether the row has field.
func (r *Row) Has(field string) bool {
	_, ok := r.data[field]
	return ok
}

// Set sets the value of field and marks it modified.
func (r *Row) Set(field string, v any) {
	r.track(field)
	r.data[field] = v
}

// Delete removes field from the row. Deleted fields are not written by
// Update.
func (r *Row) Delete(field string) {
	delete(r.data, field)
	delete(r.modified, field)
}

func (r *Row) track(field string) {
	if r.modified == nil {
		r.modified = make(map[string]bool)
		r.orig = make(map[string]any)
	}
	if !r.modified[field] {
		r.orig[field] = r.data[field]
	}
	r.modified[field] = true
}

// Len returns the number of fields.
func (r *Row) Len() int { return len(r.data) }

// Fields returns the field names in order.
func (r *Row) Fields() []string {
	return slices.Sorted(maps.Keys(r.data))
}

// Data returns a copy of the row data.
func (r *Row) Data() map[string]any {
	return maps.Clone(r.data)
}

// All returns an iterator over the fields and values in field order.
func (r *Row) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		for _, k := range r.Fields() {
			if !yield(k, r.data[k]) {
				return
			}
		}
	}
}

// Modified returns the modified fields in order.
func (r *Row) Modified() []string {
	var fields []string
	for k := range r.modified {
		if _, ok := r.data[k]; ok {
			fields = append(fields, k)
		}
	}
	slices.Sort(fields)
	return fields
}

// Equal reports whether both rows hold the same data.
func (r *Row) Equal(o *Row) bool {
	if r == nil || o == nil {
		return r == o
	}
	return reflect.DeepEqual(r.data, o.data)
}

// String implements fmt.Stringer.
func (r *Row) String() string {
	return fmt.Sprint(r.data)
}

// Update writes the modified fields back to the source table, matching the
// row by its primary key. It returns the number of affected rows.
func (r *Row) Update(ctx context.Context) (int64, error) {
	fields := r.Modified()
	if len(fields) == 0 {
		return 0, nil
	}
	table, pk, err := r.identity(ctx)
	if err != nil {
		return 0, err
	}
	key, ok := r.data[pk]
	if r.modified[pk] {
		key, ok = r.orig[pk], true
	}
	if !ok {
		return 0, argErrorf("update row", "primary key %q was not fetched", pk)
	}
	values := make(map[string]any, len(fields))
	for _, f := range fields {
		values[f] = r.data[f]
	}
	stmt := r.result.conn.Update(table, values).Where(pk, key).Limit(1)
	n, err := stmt.AffectedRows(ctx)
	if err != nil {
		return 0, err
	}
	r.modified, r.orig = nil, nil
	return n, nil
}

// identity returns the source table and primary key of a row that can be
// written back.
func (r *Row) identity(ctx context.Context) (table, pk string, err error) {
	if r.result == nil {
		return "", "", argErrorf("update row", "row is not bound to a table")
	}
	table, ok := r.result.source.(string)
	if !ok || r.result.tableName() == "" {
		return "", "", argErrorf("update row", "row does not come from a single table")
	}
	pk, err = r.result.PrimaryKey(ctx)
	if err != nil {
		return "", "", err
	}
	if pk == noPrimaryKey {
		return "", "", fmt.Errorf("%w: %s", ErrNoPrimaryKey, table)
	}
	return table, pk, nil
}

// Referenced fetches the row of table this row references through its
// "<singular table>_id" field, e.g. "author_id" for table "authors". It
// returns nil if the field is missing or nil.
func (r *Row) Referenced(ctx context.Context, table string) (*Row, error) {
	if r.result == nil {
		return nil, argErrorf("referenced", "row is not bound to a connection")
	}
	v := r.data[inflect.Singularize(table)+"_id"]
	if v == nil {
		return nil, nil
	}
	conn := r.result.conn
	pk, err := conn.PrimaryKey(ctx, table)
	if err != nil {
		return nil, err
	}
	if pk == noPrimaryKey {
		return nil, fmt.Errorf("%w: %s", ErrNoPrimaryKey, table)
	}
	res := conn.Select("*", table).Where(pk, v).Limit(1)
	defer res.Close()
	return res.Fetch(ctx)
}
