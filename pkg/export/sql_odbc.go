//go:build odbc

package export

// The ODBC driver needs cgo and unixODBC, so it is only linked with -tags odbc.
import _ "github.com/alexbrainman/odbc"
