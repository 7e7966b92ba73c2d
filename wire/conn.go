package wire

import "net"

// Conn is a live bidirectional byte stream to a remote client. The broker
// owns a Conn for the lifetime of its owner's registration.
type Conn struct {
	net.Conn
}

// NewConn wraps an accepted net.Conn as a Conn.
func NewConn(c net.Conn) Conn { return Conn{Conn: c} }

// Clone returns a second reference to the same underlying socket. Rust's
// TcpStream::try_clone duplicates the file descriptor so both references can
// be read and written independently; net.Conn already documents itself safe
// for concurrent use by multiple goroutines, so Clone here is just a second
// value sharing the same connection rather than an OS-level duplication.
func (c Conn) Clone() Conn { return c }
