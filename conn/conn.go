package conn

import (
	"bufio"
	"net"

	"github.com/hashicorp/go-msgpack/codec"
)

// Conn is one pooled connection to a peer, used unidirectionally: the
// dialing side writes, the accepting side reads.
type Conn struct {
	target string
	conn   net.Conn
	w      *bufio.Writer
	enc    *codec.Encoder
}

// Release closes the underlying connection.
func (c *Conn) Release() error {
	return c.conn.Close()
}

// EncodeMsg serializes a message with the wire codec. Envelope
// signatures are computed over these bytes.
func EncodeMsg(msg interface{}) ([]byte, error) {
	var buf []byte
	enc := codec.NewEncoderBytes(&buf, &codec.MsgpackHandle{})
	if err := enc.Encode(msg); err != nil {
		return nil, err
	}
	return buf, nil
}

// DecodeMsg parses bytes produced by EncodeMsg into msg, which must be
// a pointer.
func DecodeMsg(data []byte, msg interface{}) error {
	dec := codec.NewDecoderBytes(data, &codec.MsgpackHandle{})
	return dec.Decode(msg)
}
