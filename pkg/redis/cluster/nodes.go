package cluster

import (
	"bufio"
	"io"
	"net"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/mgtv-tech/redis-ferry/pkg/errors"
)

// Node is one entry of a nodes.conf-style cluster description
// (also the line format of CLUSTER NODES).
type Node struct {
	Id     string
	Host   string
	Port   int
	Master bool
	Self   bool
	Ranges []SlotRange
}

type SlotRange struct {
	Left  int
	Right int
}

func (n *Node) Addr() string {
	return net.JoinHostPort(n.Host, strconv.Itoa(n.Port))
}

// ParseNodes reads a nodes.conf-style description :
//
//	id host:port@cport flags master-id ping-sent pong-recv epoch link-state slots...
//
// Slot ranges are N or N-M. Migrating/importing markers ([N-<-id] / [N->-id])
// describe an unstable slot : strict mode rejects the whole description,
// otherwise the marker is skipped.
func ParseNodes(r io.Reader, strict bool) ([]*Node, error) {
	var nodes []*Node
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "vars ") {
			continue
		}
		node, err := parseNodeLine(line, strict)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	if len(nodes) == 0 {
		return nil, errors.Errorf("%w : empty cluster description", errors.ErrConfig)
	}
	return nodes, nil
}

func parseNodeLine(line string, strict bool) (*Node, error) {
	fields := strings.Fields(line)
	if len(fields) < 8 {
		return nil, errors.Errorf("%w : short node line %q", errors.ErrConfig, line)
	}

	node := &Node{Id: fields[0]}

	addr := fields[1]
	if at := strings.IndexByte(addr, '@'); at >= 0 {
		addr = addr[:at]
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, errors.Errorf("%w : bad address %q", errors.ErrConfig, fields[1])
	}
	if host == "" {
		host = "127.0.0.1"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, errors.Errorf("%w : bad port %q", errors.ErrConfig, portStr)
	}
	node.Host = host
	node.Port = port

	for _, flag := range strings.Split(fields[2], ",") {
		switch flag {
		case "master":
			node.Master = true
		case "myself":
			node.Self = true
		}
	}

	for _, f := range fields[8:] {
		if strings.HasPrefix(f, "[") {
			if strict {
				return nil, errors.Errorf("%w : slot migration in progress : %s", errors.ErrConfig, f)
			}
			continue
		}
		lo, hi, err := parseSlotRange(f)
		if err != nil {
			return nil, err
		}
		node.Ranges = append(node.Ranges, SlotRange{Left: lo, Right: hi})
	}

	return node, nil
}

func parseSlotRange(f string) (int, int, error) {
	if dash := strings.IndexByte(f, '-'); dash >= 0 {
		lo, err1 := strconv.Atoi(f[:dash])
		hi, err2 := strconv.Atoi(f[dash+1:])
		if err1 != nil || err2 != nil || lo > hi || lo < 0 || hi >= NumSlots {
			return 0, 0, errors.Errorf("%w : bad slot range %q", errors.ErrConfig, f)
		}
		return lo, hi, nil
	}
	n, err := strconv.Atoi(f)
	if err != nil || n < 0 || n >= NumSlots {
		return 0, 0, errors.Errorf("%w : bad slot %q", errors.ErrConfig, f)
	}
	return n, n, nil
}

// SlotMap is the total function slot -> owning master, immutable once built.
type SlotMap struct {
	owners  [NumSlots]*Node
	masters []*Node
}

// BuildSlotMap retains the master nodes and verifies every slot is covered
// exactly once; a gap or an overlap is a fatal configuration error.
func BuildSlotMap(nodes []*Node) (*SlotMap, error) {
	m := &SlotMap{}
	for _, node := range nodes {
		if !node.Master {
			continue
		}
		m.masters = append(m.masters, node)
		for _, r := range node.Ranges {
			for s := r.Left; s <= r.Right; s++ {
				if m.owners[s] != nil {
					return nil, errors.Errorf("%w : slot %d owned by both %s and %s",
						errors.ErrConfig, s, m.owners[s].Addr(), node.Addr())
				}
				m.owners[s] = node
			}
		}
	}
	for s := 0; s < NumSlots; s++ {
		if m.owners[s] == nil {
			return nil, errors.Errorf("%w : slot %d is not assigned", errors.ErrConfig, s)
		}
	}
	slices.SortFunc(m.masters, func(a, b *Node) int {
		if len(a.Ranges) == 0 || len(b.Ranges) == 0 {
			return len(a.Ranges) - len(b.Ranges)
		}
		return a.Ranges[0].Left - b.Ranges[0].Left
	})
	return m, nil
}

func (m *SlotMap) Owner(key []byte) *Node {
	return m.owners[Slot(key)]
}

func (m *SlotMap) OwnerOfSlot(slot uint16) *Node {
	return m.owners[slot]
}

// Masters returns the owning nodes ordered by their first slot range.
func (m *SlotMap) Masters() []*Node {
	return m.masters
}
