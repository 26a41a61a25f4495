package cache

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

// replyType enumerates the subset of RESP types the provider reads.
type replyType byte

const (
	replySimpleString replyType = '+'
	replyBulkString   replyType = '$'
	replyInteger      replyType = ':'
	replyNil          replyType = '_'
)

type respReply struct {
	typ  replyType
	data []byte
}

func (r respReply) isOK() bool {
	return r.typ == replySimpleString && strings.EqualFold(string(r.data), "OK")
}

// respError is an error reply sent by the server. It is never retried.
type respError string

func (e respError) Error() string { return "valkey: " + string(e) }

// respConn wraps a network connection with RESP2 framing.
type respConn struct {
	conn         net.Conn
	reader       *bufio.Reader
	writer       *bufio.Writer
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func newRESPConn(conn net.Conn, readTimeout, writeTimeout time.Duration) *respConn {
	return &respConn{
		conn:         conn,
		reader:       bufio.NewReader(conn),
		writer:       bufio.NewWriter(conn),
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

func (rc *respConn) close() {
	_ = rc.conn.Close()
}

// do writes one command and reads its reply.
func (rc *respConn) do(command string, args ...string) (respReply, error) {
	if err := rc.write(command, args...); err != nil {
		return respReply{}, err
	}
	return rc.read()
}

func (rc *respConn) write(command string, args ...string) error {
	if err := rc.conn.SetWriteDeadline(time.Now().Add(rc.writeTimeout)); err != nil {
		return err
	}
	fmt.Fprintf(rc.writer, "*%d\r\n", len(args)+1)
	for _, part := range append([]string{command}, args...) {
		fmt.Fprintf(rc.writer, "$%d\r\n%s\r\n", len(part), part)
	}
	return rc.writer.Flush()
}

func (rc *respConn) read() (respReply, error) {
	if err := rc.conn.SetReadDeadline(time.Now().Add(rc.readTimeout)); err != nil {
		return respReply{}, err
	}
	prefix, err := rc.reader.ReadByte()
	if err != nil {
		return respReply{}, err
	}
	line, err := rc.readLine()
	if err != nil {
		return respReply{}, err
	}
	switch prefix {
	case '+':
		return respReply{typ: replySimpleString, data: line}, nil
	case '-':
		return respReply{}, respError(line)
	case ':':
		return respReply{typ: replyInteger, data: line}, nil
	case '$':
		size, err := strconv.Atoi(string(line))
		if err != nil {
			return respReply{}, fmt.Errorf("invalid bulk length %q: %w", line, err)
		}
		if size < 0 {
			return respReply{typ: replyNil}, nil
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(rc.reader, buf); err != nil {
			return respReply{}, err
		}
		if buf[size] != '\r' || buf[size+1] != '\n' {
			return respReply{}, errors.New("invalid bulk string termination")
		}
		return respReply{typ: replyBulkString, data: buf[:size]}, nil
	default:
		return respReply{}, fmt.Errorf("unexpected RESP prefix %q", prefix)
	}
}

func (rc *respConn) readLine() ([]byte, error) {
	line, err := rc.reader.ReadString('\n')
	if err != nil {
		return nil, err
	}
	return []byte(strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")), nil
}
