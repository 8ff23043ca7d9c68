package server

import (
	"bufio"
	"errors"
	"io"
	"net"

	"github.com/mongowire/mongowired/internal/dispatch"
	"github.com/mongowire/mongowired/internal/wire"
	"github.com/sirupsen/logrus"
)

// conn is one accepted TCP connection, read frame-by-frame and routed
// through dispatcher until the peer closes or a fatal disposition fires.
type conn struct {
	nc         net.Conn
	id         int64
	dispatcher *dispatch.Dispatcher
	log        *logrus.Entry
}

func (c *conn) serve() {
	defer c.nc.Close()
	reader := bufio.NewReader(c.nc)

	for {
		f, err := wire.ReadFrame(reader)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return
			}
			c.log.WithError(err).Warn("frame read failed, closing connection")
			return
		}

		opLog := c.log.WithField("op_code", wire.Opcode(f.Header.OpCode).String())
		result := c.dispatcher.Dispatch(f, opLog, c.id)

		if result.Response != nil {
			if _, err := c.nc.Write(result.Response); err != nil {
				c.log.WithError(err).Warn("write response failed, closing connection")
				return
			}
		}
		if result.Fatal {
			return
		}
	}
}
