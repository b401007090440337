package redisstub

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
)

// Options configures the stub.
type Options struct {
	Password string
}

// Server speaks enough RESP2 for the journal's Redis store: connection
// setup, XADD with MAXLEN trimming and XLEN. Unknown commands, HELLO
// included, get an error reply and the connection stays open.
type Server struct {
	opts     Options
	listener net.Listener
	addr     string

	mu        sync.Mutex
	streams   map[string]*stream
	failXAdd  string
	commands  []string
	closed    chan struct{}
	closeOnce sync.Once
}

type stream struct {
	seq     int64
	entries []streamEntry
}

type streamEntry struct {
	id     string
	values map[string]string
}

// Start listens on a loopback port and serves connections until Close.
func Start(opts Options) (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	server := &Server{
		opts:     opts,
		listener: ln,
		addr:     ln.Addr().String(),
		streams:  make(map[string]*stream),
		closed:   make(chan struct{}),
	}
	go server.serve()
	return server, nil
}

func (s *Server) Addr() string {
	return s.addr
}

func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.listener.Close()
	})
	return nil
}

// StreamLen returns the number of entries currently held by name.
func (s *Server) StreamLen(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.streams[name]; ok {
		return len(st.entries)
	}
	return 0
}

// StreamValues returns copies of the field maps stored in name, oldest first.
func (s *Server) StreamValues(name string) []map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streams[name]
	if !ok {
		return nil
	}
	out := make([]map[string]string, 0, len(st.entries))
	for _, entry := range st.entries {
		values := make(map[string]string, len(entry.values))
		for k, v := range entry.values {
			values[k] = v
		}
		out = append(out, values)
	}
	return out
}

// FailXAdd makes every following XADD reply with msg. An empty msg restores
// normal behaviour.
func (s *Server) FailXAdd(msg string) {
	s.mu.Lock()
	s.failXAdd = msg
	s.mu.Unlock()
}

// Commands returns the upper-cased command names received so far.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func (s *Server) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
			}
			continue
		}
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)
	authed := s.opts.Password == ""
	for {
		args, err := readArray(reader)
		if err != nil {
			return
		}
		if len(args) == 0 {
			continue
		}
		cmd := strings.ToUpper(args[0])
		s.mu.Lock()
		s.commands = append(s.commands, cmd)
		s.mu.Unlock()

		switch cmd {
		case "PING":
			err = writeSimpleString(writer, "PONG")
		case "AUTH":
			password := ""
			switch len(args) {
			case 2:
				password = args[1]
			case 3:
				password = args[2]
			}
			if s.opts.Password != "" && password == s.opts.Password {
				authed = true
				err = writeSimpleString(writer, "OK")
			} else {
				err = writeError(writer, "WRONGPASS invalid username-password pair")
			}
		case "SELECT":
			err = writeSimpleString(writer, "OK")
		default:
			if !authed {
				err = writeError(writer, "NOAUTH Authentication required.")
				break
			}
			err = s.dispatch(writer, cmd, args[1:])
		}
		if err != nil {
			return
		}
	}
}

func (s *Server) dispatch(w *bufio.Writer, cmd string, args []string) error {
	switch cmd {
	case "XADD":
		return s.handleXAdd(w, args)
	case "XLEN":
		if len(args) != 1 {
			return writeError(w, "ERR wrong number of arguments for 'xlen' command")
		}
		return writeInteger(w, int64(s.StreamLen(args[0])))
	default:
		return writeError(w, fmt.Sprintf("ERR unknown command '%s'", strings.ToLower(cmd)))
	}
}

func (s *Server) handleXAdd(w *bufio.Writer, args []string) error {
	if len(args) < 4 {
		return writeError(w, "ERR wrong number of arguments for 'xadd' command")
	}
	name := args[0]
	idx := 1
	maxLen := int64(-1)
options:
	for idx < len(args) {
		switch strings.ToUpper(args[idx]) {
		case "NOMKSTREAM":
			idx++
			continue
		case "MAXLEN":
			idx++
			if idx < len(args) && (args[idx] == "~" || args[idx] == "=") {
				idx++
			}
			if idx >= len(args) {
				return writeError(w, "ERR syntax error")
			}
			n, err := strconv.ParseInt(args[idx], 10, 64)
			if err != nil || n < 0 {
				return writeError(w, "ERR value is not an integer or out of range")
			}
			maxLen = n
			idx++
			continue
		}
		break options
	}
	if idx >= len(args) {
		return writeError(w, "ERR syntax error")
	}
	if args[idx] != "*" {
		return writeError(w, "ERR only auto-generated ids are supported")
	}
	fields := args[idx+1:]
	if len(fields) == 0 || len(fields)%2 != 0 {
		return writeError(w, "ERR wrong number of arguments for 'xadd' command")
	}

	s.mu.Lock()
	if msg := s.failXAdd; msg != "" {
		s.mu.Unlock()
		return writeError(w, msg)
	}
	st, ok := s.streams[name]
	if !ok {
		st = &stream{}
		s.streams[name] = st
	}
	st.seq++
	id := fmt.Sprintf("%d-0", st.seq)
	values := make(map[string]string, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		values[fields[i]] = fields[i+1]
	}
	st.entries = append(st.entries, streamEntry{id: id, values: values})
	if maxLen >= 0 && int64(len(st.entries)) > maxLen {
		st.entries = append([]streamEntry(nil), st.entries[int64(len(st.entries))-maxLen:]...)
	}
	s.mu.Unlock()
	return writeBulkString(w, id)
}

func readArray(r *bufio.Reader) ([]string, error) {
	prefix, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if prefix != '*' {
		return nil, fmt.Errorf("unexpected prefix %q", prefix)
	}
	length, err := readLength(r)
	if err != nil {
		return nil, err
	}
	args := make([]string, 0, length)
	for i := 0; i < length; i++ {
		arg, err := readBulkString(r)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	return args, nil
}

func readLength(r *bufio.Reader) (int, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return 0, err
	}
	line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
	return strconv.Atoi(line)
}

func readBulkString(r *bufio.Reader) (string, error) {
	prefix, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	if prefix != '$' {
		return "", fmt.Errorf("unexpected prefix %q", prefix)
	}
	length, err := readLength(r)
	if err != nil {
		return "", err
	}
	if length < 0 {
		return "", nil
	}
	buf := make([]byte, length+2)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf[:length]), nil
}

func writeSimpleString(w *bufio.Writer, value string) error {
	if _, err := fmt.Fprintf(w, "+%s\r\n", value); err != nil {
		return err
	}
	return w.Flush()
}

func writeBulkString(w *bufio.Writer, value string) error {
	if _, err := fmt.Fprintf(w, "$%d\r\n%s\r\n", len(value), value); err != nil {
		return err
	}
	return w.Flush()
}

func writeInteger(w *bufio.Writer, value int64) error {
	if _, err := fmt.Fprintf(w, ":%d\r\n", value); err != nil {
		return err
	}
	return w.Flush()
}

func writeError(w *bufio.Writer, msg string) error {
	if _, err := fmt.Fprintf(w, "-%s\r\n", msg); err != nil {
		return err
	}
	return w.Flush()
}
