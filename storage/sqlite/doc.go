// Package sqlite is a storage backend over a single SQLite table of JSON
// documents. Condition trees compile to parameterized SQL over
// json_extract, so filtering, sorting and paging happen in the database.
// It uses the pure Go modernc.org/sqlite driver.
package sqlite
