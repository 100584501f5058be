// Package sqlkit builds SQL statements with a fluent API and runs them
// through a pluggable driver.
//
// A Connection wraps a dialect.Driver. Statements are rendered lazily:
// builder calls only record state, and the SQL is produced and executed on
// the first fetch or Run. Any modification after execution discards the
// result set, so the next fetch executes the statement again.
//
//	conn, err := sqlkit.Open(ctx, sqlkit.Config{Driver: "sqlite", Database: "app.db"})
//	if err != nil {
//		return err
//	}
//	defer conn.Close(ctx)
//
//	res := conn.Select("id, name", "users").
//		Where("active").
//		Where("age > %i", 18).
//		Order("name", sqlkit.Desc).
//		Limit(10)
//	for row, err := range res.All(ctx) {
//		if err != nil {
//			return err
//		}
//		fmt.Println(row.Get("name"))
//	}
//
// # Conditions
//
// Where accepts a field and an optional value, a template with type
// modifiers, or a map of fields to values:
//
//	Where("active")                 // (active)
//	Where("deleted_at", nil)        // (deleted_at IS NULL)
//	Where("id", []int{1, 2})        // (id IN (1, 2))
//	Where("id", sub)                // (id IN (SELECT ...))
//	Where("age > %i AND name = %s", 18, "Bob")
//
// The modifiers are %b (bool), %i (int), %f (float), %s (text), %bin
// (binary), %d (datetime), %a (array), %sub (sub-query) and %l (literal).
// A bare % escapes the value by its Go type.
//
// Columns are written bare ("name", "users.name") or with the ':' sigil
// inside expressions ("COUNT(:id)", ":users.id = :posts.user_id"). Both
// forms are quoted by the driver and get the table prefix.
//
// # Conditional building
//
// If, Else and End disable the builder calls of a branch:
//
//	conn.Select("*", "users").
//		If(onlyActive).Where("active").End()
package sqlkit
