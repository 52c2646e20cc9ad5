// Package redistest runs a minimal in-process RESP server for exercising
// endpoints without a live redis.
package redistest

import (
	"net"
	"strings"
	"sync"

	"github.com/mgtv-tech/redis-ferry/pkg/redis/proto"
)

// Server accepts connections and answers commands with canned replies.
// Every received command is recorded in arrival order, in one list shared
// by all connections.
type Server struct {
	ln net.Listener

	mu       sync.Mutex
	commands [][]string
	replies  map[string]string // upper-case command name -> raw RESP reply
	closed   bool
	conns    []net.Conn
}

func NewServer() (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s := &Server{
		ln: ln,
		replies: map[string]string{
			"PING": "+PONG\r\n",
		},
	}
	go s.acceptLoop()
	return s, nil
}

func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.Addr())
	return host
}

func (s *Server) Port() int {
	addr := s.ln.Addr().(*net.TCPAddr)
	return addr.Port
}

// Reply sets the raw RESP reply returned for a command name. Unset commands
// reply +OK.
func (s *Server) Reply(cmd string, raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[strings.ToUpper(cmd)] = raw
}

// Commands returns every command received so far, as upper-cased name plus
// argument strings.
func (s *Server) Commands() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.commands))
	copy(out, s.commands)
	return out
}

// CommandNames returns just the command names, in arrival order.
func (s *Server) CommandNames() []string {
	cmds := s.Commands()
	names := make([]string, 0, len(cmds))
	for _, c := range cmds {
		names = append(names, c[0])
	}
	return names
}

// DropConnections closes every live connection, simulating a dead peer.
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		c.Close()
	}
	s.conns = nil
}

func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.ln.Close()
	s.DropConnections()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer conn.Close()
	reader := proto.NewReader(conn, 0)
	for {
		reply, err := reader.ReadReply()
		if err != nil {
			return
		}
		if reply.Kind != proto.RespArray || len(reply.Array) == 0 {
			return
		}
		cmd := make([]string, 0, len(reply.Array))
		for i, a := range reply.Array {
			v := string(a.Bulk)
			if i == 0 {
				v = strings.ToUpper(v)
			}
			cmd = append(cmd, v)
		}

		s.mu.Lock()
		s.commands = append(s.commands, cmd)
		raw, ok := s.replies[cmd[0]]
		s.mu.Unlock()
		if !ok {
			raw = "+OK\r\n"
		}
		if _, err := conn.Write([]byte(raw)); err != nil {
			return
		}
	}
}
